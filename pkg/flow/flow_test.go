package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/shm-bbuf/pkg/shm"
)

// pair builds the producer and consumer Controls of v over one heap region.
// pair builds both sides over one heap region. opts follow the default yield
// spinner, so a WithSpinner among them replaces it.
func pair(t testing.TB, v Variant, size int, opts ...Option) (Control, Control, *shm.Layout) {
	region := shm.NewHeapRegion(size)
	pl, err := region.Layout(v.HeaderFields())
	require.NoError(t, err)
	cl, err := region.Layout(v.HeaderFields())
	require.NoError(t, err)
	p, err := New(v, pl, SideProducer, append([]Option{WithSpinner(YieldSpinner())}, opts...)...)
	require.NoError(t, err)
	c, err := New(v, cl, SideConsumer, append([]Option{WithSpinner(YieldSpinner())}, opts...)...)
	require.NoError(t, err)
	return p, c, pl
}

func produce(c Control, v int32) (int, error) {
	slot, err := c.Write(v)
	if err != nil {
		return 0, err
	}
	return slot, c.Publish()
}

func consume(c Control) (int32, int, error) {
	v, slot, err := c.Read()
	if err != nil {
		return 0, 0, err
	}
	return v, slot, c.Release()
}

type FlowTestSuite struct {
	suite.Suite
	variant Variant
}

func (s *FlowTestSuite) TestInitAndLoad() {
	p, c, layout := pair(s.T(), s.variant, shm.DefaultSize)
	s.Require().NoError(p.Init(5, 10))
	s.Require().NoError(c.Load())
	s.Equal(5, c.Capacity())
	s.Equal(10, c.Total())
	s.Equal(s.variant, c.Variant())
	s.Equal(SideConsumer, c.Side())

	snap, err := ReadSnapshot(s.variant, layout)
	s.Require().NoError(err)
	s.NoError(snap.Check())
	s.Equal(5, snap.Capacity)
	s.Equal(10, snap.Total)
	if s.variant == VariantIndices {
		s.Equal(0, snap.WriteIndex)
		s.Equal(0, snap.ReadIndex)
	} else {
		s.Equal(0, snap.Occupancy)
		s.Equal(0, snap.ProducerLock)
		s.Equal(0, snap.ConsumerLock)
	}
}

func (s *FlowTestSuite) TestFillAndDrain() {
	p, c, layout := pair(s.T(), s.variant, shm.DefaultSize)
	s.Require().NoError(p.Init(5, 12))
	s.Require().NoError(c.Load())

	s.False(c.CanConsume())
	ring := s.variant.RingSlots(5)
	for round := 0; round < 3; round++ {
		for i := 0; i < 5; i++ {
			s.Require().True(p.CanProduce())
			slot, err := produce(p, int32(100*round+i))
			s.Require().NoError(err)
			s.Equal((round*5+i)%ring, slot)
		}
		s.False(p.CanProduce(), "a buffer of 5 holds exactly 5 items")

		snap, err := ReadSnapshot(s.variant, layout)
		s.Require().NoError(err)
		s.NoError(snap.Check())
		if s.variant != VariantIndices {
			s.Equal(5, snap.Occupancy)
		} else if round == 0 {
			// six slots for capacity 5: the write index reaches capacity itself
			s.Equal(5, snap.WriteIndex)
			s.Equal(0, snap.ReadIndex)
		}

		for i := 0; i < 5; i++ {
			s.Require().True(c.CanConsume())
			v, slot, err := consume(c)
			s.Require().NoError(err)
			s.Equal(int32(100*round+i), v)
			s.Equal((round*5+i)%ring, slot)
		}
		s.False(c.CanConsume())
		s.True(p.CanProduce())
	}
}

func (s *FlowTestSuite) TestCapacityOne() {
	p, c, _ := pair(s.T(), s.variant, shm.DefaultSize)
	s.Require().NoError(p.Init(1, 3))
	s.Require().NoError(c.Load())
	for i := 0; i < 3; i++ {
		s.Require().True(p.CanProduce())
		_, err := produce(p, int32(i))
		s.Require().NoError(err)
		s.False(p.CanProduce())
		s.Require().True(c.CanConsume())
		v, _, err := consume(c)
		s.Require().NoError(err)
		s.Equal(int32(i), v)
		s.False(c.CanConsume())
	}
}

func (s *FlowTestSuite) TestNotReady() {
	p, c, _ := pair(s.T(), s.variant, shm.DefaultSize)
	_, err := p.Write(1)
	s.ErrorIs(err, ErrNotReady)
	s.ErrorIs(p.Publish(), ErrNotReady)
	_, _, err = c.Read()
	s.ErrorIs(err, ErrNotReady)
	s.ErrorIs(c.Release(), ErrNotReady)
	_, err = c.WaitConsume(context.Background())
	s.ErrorIs(err, ErrNotReady)
	s.False(p.CanProduce())
	s.False(c.CanConsume())

	// the consumer finds an empty header
	s.ErrorIs(c.Load(), shm.ErrResourceAttach)
	// only the producer writes it
	s.ErrorIs(c.Init(5, 5), shm.ErrInvalidArgument)
}

func (s *FlowTestSuite) TestInitRejectsArguments() {
	p, _, _ := pair(s.T(), s.variant, shm.DefaultSize)
	s.ErrorIs(p.Init(0, 1), shm.ErrInvalidArgument)
	s.ErrorIs(p.Init(1001, 1), shm.ErrInvalidArgument)
	s.ErrorIs(p.Init(5, 0), shm.ErrInvalidArgument)
	s.NoError(p.Init(1000, 1))
}

func (s *FlowTestSuite) TestRingMustFit() {
	// 64 bytes leave at most 11 slots after the header
	p, _, _ := pair(s.T(), s.variant, 64)
	s.ErrorIs(p.Init(100, 1), shm.ErrResourceCreation)
}

func (s *FlowTestSuite) TestWaitHonoursContext() {
	p, c, _ := pair(s.T(), s.variant, shm.DefaultSize)
	s.Require().NoError(p.Init(2, 4))
	s.Require().NoError(c.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	polls, err := c.WaitConsume(ctx)
	s.ErrorIs(err, context.Canceled)
	s.Equal(1, polls, "a paced spinner looks at ctx after every poll")

	polls, err = p.WaitProduce(ctx)
	s.NoError(err, "a free slot is found on the first poll")
	s.Equal(1, polls)
}

// TestConcurrentFIFO runs both sides in goroutines with many items. A missing
// release/acquire pair between slot and index would show up here as a stale
// or out of order value.
func (s *FlowTestSuite) TestConcurrentFIFO() {
	const items = 20000
	p, c, layout := pair(s.T(), s.variant, shm.DefaultSize)
	s.Require().NoError(p.Init(7, items))
	s.Require().NoError(c.Load())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var wg sync.WaitGroup
	var perr, cerr error
	got := make([]int32, 0, items)
	done := make(chan struct{})

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < items; i++ {
			if _, perr = p.WaitProduce(ctx); perr != nil {
				return
			}
			if _, perr = produce(p, int32(i%(MaxValue+1))); perr != nil {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < items; i++ {
			if _, cerr = c.WaitConsume(ctx); cerr != nil {
				return
			}
			v, _, err := consume(c)
			if err != nil {
				cerr = err
				return
			}
			got = append(got, v)
		}
	}()

	// a third party only ever observes the header within its ranges
	var checkErr error
observe:
	for {
		select {
		case <-done:
			break observe
		default:
		}
		if snap, err := ReadSnapshot(s.variant, layout); err != nil || snap.Check() != nil {
			checkErr = errors.Join(err, snap.Check())
			break
		}
		time.Sleep(50 * time.Microsecond)
	}
	wg.Wait()

	s.Require().NoError(perr)
	s.Require().NoError(cerr)
	s.Require().NoError(checkErr)
	s.Require().Len(got, items)
	for i, v := range got {
		if !s.Equal(int32(i%(MaxValue+1)), v, "item %d", i) {
			break
		}
	}
}

func TestCounterFlow(t *testing.T) {
	suite.Run(t, &FlowTestSuite{variant: VariantCounter})
}

func TestPetersonFlow(t *testing.T) {
	suite.Run(t, &FlowTestSuite{variant: VariantPeterson})
}

func TestIndicesFlow(t *testing.T) {
	suite.Run(t, &FlowTestSuite{variant: VariantIndices})
}

func TestVariantNames(t *testing.T) {
	for _, v := range []Variant{VariantCounter, VariantPeterson, VariantIndices} {
		got, err := ParseVariant(v.String())
		assert.NoError(t, err)
		assert.Equal(t, v, got)
	}
	got, err := ParseVariant("INDICES")
	assert.NoError(t, err)
	assert.Equal(t, VariantIndices, got)

	_, err = ParseVariant("semaphore")
	assert.ErrorIs(t, err, shm.ErrInvalidArgument)
	assert.Equal(t, "Variant(9)", Variant(9).String())

	assert.Equal(t, 5, VariantCounter.HeaderFields())
	assert.Equal(t, 6, VariantPeterson.HeaderFields())
	assert.Equal(t, 4, VariantIndices.HeaderFields())
	assert.Equal(t, 5, VariantCounter.RingSlots(5))
	assert.Equal(t, 6, VariantIndices.RingSlots(5))
}

func TestNewRejectsLayout(t *testing.T) {
	layout, err := shm.NewHeapRegion(shm.DefaultSize).Layout(4)
	require.NoError(t, err)
	_, err = New(VariantCounter, layout, SideProducer)
	assert.ErrorIs(t, err, shm.ErrInvalidArgument)
	_, err = ReadSnapshot(VariantPeterson, layout)
	assert.ErrorIs(t, err, shm.ErrInvalidArgument)
}

func TestValidateArgs(t *testing.T) {
	assert.NoError(t, ValidateArgs(1, 1))
	assert.NoError(t, ValidateArgs(1000, 1<<20))
	assert.ErrorIs(t, ValidateArgs(0, 10), shm.ErrInvalidArgument)
	assert.ErrorIs(t, ValidateArgs(1001, 10), shm.ErrInvalidArgument)
	assert.ErrorIs(t, ValidateArgs(5, 0), shm.ErrInvalidArgument)
	assert.ErrorIs(t, ValidateArgs(5, -3), shm.ErrInvalidArgument)
}

func TestSnapshotCheck(t *testing.T) {
	ok := Snapshot{Variant: VariantCounter, Capacity: 5, Total: 1, Occupancy: 5}
	assert.NoError(t, ok.Check())
	bad := ok
	bad.Occupancy = 6
	assert.ErrorIs(t, bad.Check(), ErrInvariant)
	bad.Occupancy = -1
	assert.ErrorIs(t, bad.Check(), ErrInvariant)

	idx := Snapshot{Variant: VariantIndices, Capacity: 5, Total: 1, WriteIndex: 5, ReadIndex: 0}
	assert.NoError(t, idx.Check())
	idx.WriteIndex = 6
	assert.ErrorIs(t, idx.Check(), ErrInvariant)

	assert.ErrorIs(t, Snapshot{Variant: VariantIndices, Capacity: 0, Total: 1}.Check(), ErrInvariant)
	assert.Contains(t, ok.String(), "occupancy = 5")
	assert.Contains(t, Snapshot{Variant: VariantIndices, Capacity: 5, Total: 2, WriteIndex: 3}.String(), "in = 3")
}
