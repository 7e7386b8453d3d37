// Package flow decides when the producer may write and when the consumer may
// read a shared ring, using nothing but polled loads and stores of header
// fields in the region.
//
// Three disciplines are provided:
//
//   - VariantCounter: an occupancy counter guarded by a two-flag spinlock.
//   - VariantPeterson: the same counter guarded by Peterson's lock (two flags
//     plus a turn field), which is the strictly correct alternative.
//   - VariantIndices: a lock-free single-producer/single-consumer ring with a
//     write index and a read index, one slot left empty to tell full from empty.
//
// A Control is bound to one Side and must be used by one goroutine only; the
// peer builds its own Control over the same region.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srediag/shm-bbuf/pkg/shm"
)

const (
	// MinCapacity and MaxCapacity bound bufferCapacity.
	MinCapacity = 1
	MaxCapacity = 1000
	// MaxValue is the upper bound of produced values; the lower bound is 0.
	MaxValue = 3000
)

// Header field indices shared by every variant.
const (
	FieldCapacity = 0
	FieldTotal    = 1
)

// Header field indices of the counter variants.
const (
	FieldOccupancy    = 2
	FieldProducerLock = 3
	FieldConsumerLock = 4
	// FieldTurn only exists in the Peterson header.
	FieldTurn = 5
)

// Header field indices of the index variant.
const (
	FieldWriteIndex = 2
	FieldReadIndex  = 3
)

// ErrInvariant is returned when a shared field is observed outside its range,
// which means the peer broke the protocol or the region is not ours.
var ErrInvariant = errors.New("flow control invariant violated")

// ErrNotReady is returned before Init or Load.
var ErrNotReady = errors.New("flow control header not initialized")

// Variant selects a flow control discipline.
type Variant int

const (
	VariantCounter Variant = iota
	VariantPeterson
	VariantIndices
)

var variantNames = []string{"counter", "peterson", "indices"}

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variantNames[v]
}

// HeaderFields returns the number of int32 header fields of the variant.
func (v Variant) HeaderFields() int {
	switch v {
	case VariantCounter:
		return 5
	case VariantPeterson:
		return 6
	default:
		return 4
	}
}

// RingSlots returns the number of physical ring slots a buffer of capacity
// items needs. The index variant keeps one extra slot empty.
func (v Variant) RingSlots(capacity int) int {
	if v == VariantIndices {
		return capacity + 1
	}
	return capacity
}

// ParseVariant accepts the names printed by Variant.String.
func ParseVariant(s string) (Variant, error) {
	for i, name := range variantNames {
		if strings.EqualFold(s, name) {
			return Variant(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown flow variant %q", shm.ErrInvalidArgument, s)
}

// Side tells a Control which role it plays.
type Side int

const (
	SideProducer Side = iota
	SideConsumer
)

func (s Side) String() string {
	if s == SideProducer {
		return "producer"
	}
	return "consumer"
}

func (s Side) other() Side {
	return 1 - s
}

// Control is the shared state machine of one side of the buffer.
type Control interface {
	Variant() Variant
	Side() Side
	// Init writes capacity, total and the initial state of the variant. Only
	// the producer calls it, before the consumer attaches.
	Init(capacity, total int) error
	// Load reads capacity and total written by the producer. Only the
	// consumer calls it.
	Load() error
	Capacity() int
	Total() int
	// CanProduce reports whether a slot is free right now.
	CanProduce() bool
	// CanConsume reports whether an item is ready right now.
	CanConsume() bool
	// WaitProduce polls until CanProduce holds and returns the number of polls.
	// ctx bounds the whole wait, including any lock wait of the counter
	// variants.
	WaitProduce(ctx context.Context) (int, error)
	// WaitConsume polls until CanConsume holds and returns the number of polls.
	WaitConsume(ctx context.Context) (int, error)
	// Write stores v in the next free slot without publishing it. The caller
	// must have seen CanProduce.
	Write(v int32) (slot int, err error)
	// Publish hands the written slot to the consumer. The counter variants take
	// the lock here without a context: a peer that dies with its flag raised
	// leaves Publish and Release spinning.
	Publish() error
	// Read returns the next ready slot without releasing it. The caller must
	// have seen CanConsume.
	Read() (v int32, slot int, err error)
	// Release hands the read slot back to the producer.
	Release() error
}

// Option configures a Control.
type Option func(*options)

type options struct {
	spinner *Spinner
}

// WithSpinner sets the spinner used for every busy-wait of the Control.
func WithSpinner(s *Spinner) Option {
	return func(o *options) {
		o.spinner = s
	}
}

// New returns the Control of side for variant over layout. The layout must
// have exactly variant.HeaderFields() header fields.
func New(variant Variant, layout *shm.Layout, side Side, opts ...Option) (Control, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.spinner == nil {
		o.spinner = NewSpinner(nil)
	}
	if layout.HeaderFields() != variant.HeaderFields() {
		return nil, fmt.Errorf("%w: %s needs %d header fields, layout has %d",
			shm.ErrInvalidArgument, variant, variant.HeaderFields(), layout.HeaderFields())
	}
	b, err := newBase(layout, side, o.spinner)
	if err != nil {
		return nil, err
	}
	switch variant {
	case VariantCounter, VariantPeterson:
		return newCounter(b, variant == VariantPeterson)
	case VariantIndices:
		return newIndices(b)
	default:
		return nil, fmt.Errorf("%w: unknown flow variant %d", shm.ErrInvalidArgument, int(variant))
	}
}

// ValidateArgs checks capacity and total against their ranges.
func ValidateArgs(capacity, total int) error {
	if capacity < MinCapacity || capacity > MaxCapacity {
		return fmt.Errorf("%w: buffer size must be between %d and %d, got %d",
			shm.ErrInvalidArgument, MinCapacity, MaxCapacity, capacity)
	}
	if total < 1 {
		return fmt.Errorf("%w: item count must be greater than 0, got %d", shm.ErrInvalidArgument, total)
	}
	return nil
}

// base holds the fields every variant shares.
type base struct {
	layout   *shm.Layout
	side     Side
	spin     *Spinner
	capField shm.Word
	totField shm.Word
	capacity int
	total    int
	ring     int
}

func newBase(layout *shm.Layout, side Side, spin *Spinner) (*base, error) {
	capField, err := layout.Field(FieldCapacity)
	if err != nil {
		return nil, err
	}
	totField, err := layout.Field(FieldTotal)
	if err != nil {
		return nil, err
	}
	return &base{layout: layout, side: side, spin: spin, capField: capField, totField: totField}, nil
}

func (b *base) Side() Side {
	return b.side
}

func (b *base) Capacity() int {
	return b.capacity
}

func (b *base) Total() int {
	return b.total
}

func (b *base) init(v Variant, capacity, total int) error {
	if b.side != SideProducer {
		return fmt.Errorf("%w: only the producer initializes the header", shm.ErrInvalidArgument)
	}
	if err := ValidateArgs(capacity, total); err != nil {
		return err
	}
	ring := v.RingSlots(capacity)
	if ring > b.layout.SlotCount() {
		return fmt.Errorf("%w: %d ring slots do not fit in %d", shm.ErrResourceCreation, ring, b.layout.SlotCount())
	}
	b.capField.Store(int32(capacity))
	b.totField.Store(int32(total))
	b.capacity, b.total, b.ring = capacity, total, ring
	return nil
}

func (b *base) load(v Variant) error {
	capacity := int(b.capField.Load())
	total := int(b.totField.Load())
	if err := ValidateArgs(capacity, total); err != nil {
		return fmt.Errorf("%w: header holds capacity %d, count %d: %w", shm.ErrResourceAttach, capacity, total, err)
	}
	ring := v.RingSlots(capacity)
	if ring > b.layout.SlotCount() {
		return fmt.Errorf("%w: %d ring slots do not fit in %d", shm.ErrResourceAttach, ring, b.layout.SlotCount())
	}
	b.capacity, b.total, b.ring = capacity, total, ring
	return nil
}

func (b *base) ready() error {
	if b.ring == 0 {
		return ErrNotReady
	}
	return nil
}

func (b *base) field(i int) shm.Word {
	w, err := b.layout.Field(i)
	if err != nil {
		// New checked the field count against the variant.
		panic(err)
	}
	return w
}
