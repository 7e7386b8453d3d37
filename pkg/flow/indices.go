package flow

import (
	"context"
	"fmt"

	"github.com/srediag/shm-bbuf/pkg/shm"
)

// Indices is the lock-free SPSC discipline. writeIndex is stored only by the
// producer and readIndex only by the consumer, so no field has two writers.
// With more than one producer or consumer the scheme is unsound.
//
// The ring has capacity+1 physical slots, so writeIndex and readIndex range
// over [0, capacity], not [0, capacity), and a run of capacity 5 visits slots
// 0 to 5 before wrapping. The ring is full when
// readIndex == (writeIndex+1) mod ring and empty when the indices are equal.
//
// A slot must be visible to the consumer before the index that publishes it.
// The slot is written with an ordinary store and the index with an atomic
// store; the reader loads the index atomically before touching the slot. Go's
// memory model orders the two through the atomic pair. A plain store of the
// index would let a weakly ordered CPU expose the new index before the payload.
type Indices struct {
	*base
	write shm.Word
	read  shm.Word
}

func newIndices(b *base) (*Indices, error) {
	return &Indices{
		base:  b,
		write: b.field(FieldWriteIndex),
		read:  b.field(FieldReadIndex),
	}, nil
}

func (x *Indices) Variant() Variant {
	return VariantIndices
}

// Init writes the header with both indices at slot 0.
func (x *Indices) Init(capacity, total int) error {
	if err := x.init(VariantIndices, capacity, total); err != nil {
		return err
	}
	x.write.Store(0)
	x.read.Store(0)
	return nil
}

func (x *Indices) Load() error {
	return x.load(VariantIndices)
}

func (x *Indices) CanProduce() bool {
	if x.ring == 0 {
		return false
	}
	return x.read.Load() != (x.write.Load()+1)%int32(x.ring)
}

func (x *Indices) CanConsume() bool {
	if x.ring == 0 {
		return false
	}
	return x.read.Load() != x.write.Load()
}

func (x *Indices) WaitProduce(ctx context.Context) (int, error) {
	if err := x.ready(); err != nil {
		return 0, err
	}
	return x.spin.Until(ctx, x.CanProduce)
}

func (x *Indices) WaitConsume(ctx context.Context) (int, error) {
	if err := x.ready(); err != nil {
		return 0, err
	}
	return x.spin.Until(ctx, x.CanConsume)
}

// Write stores v at writeIndex.
func (x *Indices) Write(v int32) (int, error) {
	if err := x.ready(); err != nil {
		return 0, err
	}
	w, err := x.index(x.write)
	if err != nil {
		return 0, err
	}
	return w, x.layout.WriteSlot(w, v)
}

// Publish stores writeIndex+1, releasing the slot written before it.
func (x *Indices) Publish() error {
	if err := x.ready(); err != nil {
		return err
	}
	w, err := x.index(x.write)
	if err != nil {
		return err
	}
	x.write.Store(int32((w + 1) % x.ring))
	return nil
}

// Read returns the slot at readIndex.
func (x *Indices) Read() (int32, int, error) {
	if err := x.ready(); err != nil {
		return 0, 0, err
	}
	r, err := x.index(x.read)
	if err != nil {
		return 0, 0, err
	}
	v, err := x.layout.ReadSlot(r)
	return v, r, err
}

// Release stores readIndex+1, handing the slot back to the producer.
func (x *Indices) Release() error {
	if err := x.ready(); err != nil {
		return err
	}
	r, err := x.index(x.read)
	if err != nil {
		return err
	}
	x.read.Store(int32((r + 1) % x.ring))
	return nil
}

func (x *Indices) index(w shm.Word) (int, error) {
	i := int(w.Load())
	if i < 0 || i >= x.ring {
		return 0, fmt.Errorf("%w: index %d outside [0, %d)", ErrInvariant, i, x.ring)
	}
	return i, nil
}
