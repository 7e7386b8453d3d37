package flow

import (
	"fmt"

	"github.com/srediag/shm-bbuf/pkg/shm"
)

// Snapshot is one unsynchronized read of every header field of a variant.
// Fields the variant does not have are -1.
type Snapshot struct {
	Variant      Variant
	Capacity     int
	Total        int
	Occupancy    int
	ProducerLock int
	ConsumerLock int
	Turn         int
	WriteIndex   int
	ReadIndex    int
}

// ReadSnapshot reads the header of variant from layout.
func ReadSnapshot(v Variant, layout *shm.Layout) (Snapshot, error) {
	if layout.HeaderFields() != v.HeaderFields() {
		return Snapshot{}, fmt.Errorf("%w: %s needs %d header fields, layout has %d",
			shm.ErrInvalidArgument, v, v.HeaderFields(), layout.HeaderFields())
	}
	s := Snapshot{Variant: v, Occupancy: -1, ProducerLock: -1, ConsumerLock: -1, Turn: -1, WriteIndex: -1, ReadIndex: -1}
	read := func(i int) int {
		x, _ := layout.ReadHeaderField(i)
		return int(x)
	}
	s.Capacity = read(FieldCapacity)
	s.Total = read(FieldTotal)
	switch v {
	case VariantCounter, VariantPeterson:
		s.Occupancy = read(FieldOccupancy)
		s.ProducerLock = read(FieldProducerLock)
		s.ConsumerLock = read(FieldConsumerLock)
		if v == VariantPeterson {
			s.Turn = read(FieldTurn)
		}
	case VariantIndices:
		s.WriteIndex = read(FieldWriteIndex)
		s.ReadIndex = read(FieldReadIndex)
	}
	return s, nil
}

// Check verifies the range invariants of the snapshot.
func (s Snapshot) Check() error {
	if s.Capacity < MinCapacity || s.Capacity > MaxCapacity {
		return fmt.Errorf("%w: capacity %d", ErrInvariant, s.Capacity)
	}
	if s.Total < 1 {
		return fmt.Errorf("%w: item count %d", ErrInvariant, s.Total)
	}
	switch s.Variant {
	case VariantCounter, VariantPeterson:
		if s.Occupancy < 0 || s.Occupancy > s.Capacity {
			return fmt.Errorf("%w: occupancy %d outside [0, %d]", ErrInvariant, s.Occupancy, s.Capacity)
		}
	case VariantIndices:
		ring := s.Variant.RingSlots(s.Capacity)
		if s.WriteIndex < 0 || s.WriteIndex >= ring || s.ReadIndex < 0 || s.ReadIndex >= ring {
			return fmt.Errorf("%w: indices %d/%d outside [0, %d)", ErrInvariant, s.WriteIndex, s.ReadIndex, ring)
		}
	}
	return nil
}

func (s Snapshot) String() string {
	switch s.Variant {
	case VariantCounter:
		return fmt.Sprintf("bufSize = %d, itemCnt = %d, occupancy = %d, locks = %d/%d",
			s.Capacity, s.Total, s.Occupancy, s.ProducerLock, s.ConsumerLock)
	case VariantPeterson:
		return fmt.Sprintf("bufSize = %d, itemCnt = %d, occupancy = %d, locks = %d/%d, turn = %d",
			s.Capacity, s.Total, s.Occupancy, s.ProducerLock, s.ConsumerLock, s.Turn)
	default:
		return fmt.Sprintf("bufSize = %d, itemCnt = %d, in = %d, out = %d",
			s.Capacity, s.Total, s.WriteIndex, s.ReadIndex)
	}
}
