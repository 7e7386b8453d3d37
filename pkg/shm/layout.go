package shm

import (
	"fmt"

	internalshm "github.com/srediag/shm-bbuf/internal/shm"
)

const wordSize = 4

// Word is one int32 cell of a region. Load and Store are atomic, which in Go
// is what makes a store by one process visible to a polling loop in the other.
type Word = internalshm.Word

// Layout maps header field and ring slot indices to byte offsets. It does no
// synchronization of its own: header fields are read and written with atomic
// 32-bit accesses, slots with ordinary ones.
type Layout struct {
	mem          []byte
	headerFields int
	slots        int
}

// NewLayout returns the view of mem with headerFields int32 header fields and
// as many int32 ring slots as fit in the remainder.
func NewLayout(mem []byte, headerFields int) (*Layout, error) {
	if headerFields <= 0 {
		return nil, fmt.Errorf("%w: %d header fields", ErrInvalidArgument, headerFields)
	}
	if !internalshm.Aligned(mem) {
		return nil, fmt.Errorf("%w: region is not word aligned", ErrInvalidArgument)
	}
	headerBytes := headerFields * wordSize
	if len(mem) < headerBytes {
		return nil, fmt.Errorf("%w: region of %d bytes cannot hold a %d byte header", ErrInvalidArgument, len(mem), headerBytes)
	}
	return &Layout{
		mem:          mem,
		headerFields: headerFields,
		slots:        (len(mem) - headerBytes) / wordSize,
	}, nil
}

// HeaderFields returns the number of header fields.
func (l *Layout) HeaderFields() int {
	return l.headerFields
}

// HeaderBytes returns the size of the header.
func (l *Layout) HeaderBytes() int {
	return l.headerFields * wordSize
}

// SlotCount returns floor((size - headerBytes) / 4).
func (l *Layout) SlotCount() int {
	return l.slots
}

// Field returns header field i, bounds checked once so that the caller can poll
// it without further checks.
func (l *Layout) Field(i int) (Word, error) {
	if i < 0 || i >= l.headerFields {
		return Word{}, &BoundsError{Kind: "header", Index: i, Limit: l.headerFields}
	}
	return internalshm.WordAt(l.mem, i*wordSize), nil
}

// ReadHeaderField returns header field i.
func (l *Layout) ReadHeaderField(i int) (int32, error) {
	w, err := l.Field(i)
	if err != nil {
		return 0, err
	}
	return w.Load(), nil
}

// WriteHeaderField sets header field i.
func (l *Layout) WriteHeaderField(i int, v int32) error {
	w, err := l.Field(i)
	if err != nil {
		return err
	}
	w.Store(v)
	return nil
}

// ReadSlot returns ring slot i.
func (l *Layout) ReadSlot(i int) (int32, error) {
	if i < 0 || i >= l.slots {
		return 0, &BoundsError{Kind: "slot", Index: i, Limit: l.slots}
	}
	return l.slot(i).LoadPlain(), nil
}

// WriteSlot sets ring slot i.
func (l *Layout) WriteSlot(i int, v int32) error {
	if i < 0 || i >= l.slots {
		return &BoundsError{Kind: "slot", Index: i, Limit: l.slots}
	}
	l.slot(i).StorePlain(v)
	return nil
}

func (l *Layout) slot(i int) Word {
	return internalshm.WordAt(l.mem, (l.headerFields+i)*wordSize)
}
