package flow

import (
	"context"
	"fmt"

	"github.com/srediag/shm-bbuf/pkg/shm"
)

// Counter is the occupancy counter discipline. Each side keeps its own slot
// cursor; the only shared mutable state is occupancy and the lock fields.
//
// With peterson unset the lock is the two-flag protocol: raise own flag, look
// at the other one, and if it is raised lower own flag, wait for the other to
// drop and start over. It has no turn field. With plain stores that may sit in
// a store buffer, both sides can raise their flags, each read the other's as
// still low, and enter together. Header fields are accessed with Go's
// sequentially consistent atomics, which closes that window, but the protocol
// can still livelock when both sides keep backing off in step. Peterson's lock
// is offered as the alternative without either problem.
type Counter struct {
	*base
	peterson  bool
	occupancy shm.Word
	own       shm.Word
	other     shm.Word
	turn      shm.Word
	cursor    int
	// lockSpin paces the lock waits, which run inside the polls of spin.
	lockSpin *Spinner
}

func newCounter(b *base, peterson bool) (*Counter, error) {
	c := &Counter{
		base:      b,
		peterson:  peterson,
		occupancy: b.field(FieldOccupancy),
		lockSpin:  b.spin.nested(),
	}
	prod, cons := b.field(FieldProducerLock), b.field(FieldConsumerLock)
	if b.side == SideProducer {
		c.own, c.other = prod, cons
	} else {
		c.own, c.other = cons, prod
	}
	if peterson {
		c.turn = b.field(FieldTurn)
	}
	return c, nil
}

func (c *Counter) Variant() Variant {
	if c.peterson {
		return VariantPeterson
	}
	return VariantCounter
}

// Init writes the header with occupancy 0 and both lock flags lowered.
func (c *Counter) Init(capacity, total int) error {
	if err := c.init(c.Variant(), capacity, total); err != nil {
		return err
	}
	c.own.Store(0)
	c.other.Store(0)
	if c.peterson {
		c.turn.Store(int32(SideProducer))
	}
	c.occupancy.Store(0)
	c.cursor = 0
	return nil
}

func (c *Counter) Load() error {
	if err := c.load(c.Variant()); err != nil {
		return err
	}
	c.cursor = 0
	return nil
}

// lock takes the two-flag or Peterson lock. It only fails when ctx ends the
// wait, and then leaves its own flag lowered.
func (c *Counter) lock(ctx context.Context) error {
	if c.peterson {
		return c.lockPeterson(ctx)
	}
	for {
		c.own.Store(1)
		if c.other.Load() == 0 {
			return nil
		}
		c.own.Store(0)
		if _, err := c.lockSpin.Until(ctx, func() bool { return c.other.Load() == 0 }); err != nil {
			return err
		}
	}
}

func (c *Counter) lockPeterson(ctx context.Context) error {
	yield := int32(c.side.other())
	c.own.Store(1)
	c.turn.Store(yield)
	_, err := c.lockSpin.Until(ctx, func() bool {
		return c.other.Load() == 0 || c.turn.Load() != yield
	})
	if err != nil {
		c.own.Store(0)
	}
	return err
}

func (c *Counter) unlock() {
	c.own.Store(0)
}

func (c *Counter) readOccupancy(ctx context.Context) (int, error) {
	if err := c.lock(ctx); err != nil {
		return 0, err
	}
	v := c.occupancy.Load()
	c.unlock()
	return int(v), nil
}

// Occupancy reads occupancy under the lock.
func (c *Counter) Occupancy() int {
	// a background lock wait cannot fail
	v, _ := c.readOccupancy(context.Background())
	return v
}

// SetOccupancy writes occupancy under the lock.
func (c *Counter) SetOccupancy(v int) {
	_ = c.lock(context.Background())
	c.occupancy.Store(int32(v))
	c.unlock()
}

// adjust adds delta to occupancy as one locked read-modify-write.
func (c *Counter) adjust(delta int32) error {
	_ = c.lock(context.Background())
	v := c.occupancy.Load() + delta
	if v < 0 || int(v) > c.capacity {
		c.unlock()
		return fmt.Errorf("%w: occupancy %d outside [0, %d]", ErrInvariant, v, c.capacity)
	}
	c.occupancy.Store(v)
	c.unlock()
	return nil
}

func (c *Counter) CanProduce() bool {
	return c.ring > 0 && c.Occupancy() < c.capacity
}

func (c *Counter) CanConsume() bool {
	return c.ring > 0 && c.Occupancy() > 0
}

// wait polls occupancy until ok holds. ctx also bounds every lock wait.
func (c *Counter) wait(ctx context.Context, ok func(occupancy int) bool) (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	var lockErr error
	polls, err := c.spin.Until(ctx, func() bool {
		n, err := c.readOccupancy(ctx)
		if err != nil {
			lockErr = err
			return true
		}
		return ok(n)
	})
	if err == nil {
		err = lockErr
	}
	return polls, err
}

func (c *Counter) WaitProduce(ctx context.Context) (int, error) {
	return c.wait(ctx, func(n int) bool { return n < c.capacity })
}

func (c *Counter) WaitConsume(ctx context.Context) (int, error) {
	return c.wait(ctx, func(n int) bool { return n > 0 })
}

// Write stores v at the producer cursor.
func (c *Counter) Write(v int32) (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return c.cursor, c.layout.WriteSlot(c.cursor, v)
}

// Publish moves the producer cursor and counts the item in occupancy.
func (c *Counter) Publish() error {
	if err := c.ready(); err != nil {
		return err
	}
	c.cursor = (c.cursor + 1) % c.ring
	return c.adjust(1)
}

// Read returns the slot at the consumer cursor.
func (c *Counter) Read() (int32, int, error) {
	if err := c.ready(); err != nil {
		return 0, 0, err
	}
	v, err := c.layout.ReadSlot(c.cursor)
	return v, c.cursor, err
}

// Release moves the consumer cursor and decrements occupancy.
func (c *Counter) Release() error {
	if err := c.ready(); err != nil {
		return err
	}
	c.cursor = (c.cursor + 1) % c.ring
	return c.adjust(-1)
}
