package role

import (
	"context"
	"errors"
	"fmt"

	"github.com/srediag/shm-bbuf/pkg/flow"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

// Consumer reads every item the producer announced in the header.
type Consumer struct {
	*runner
}

// NewConsumer reads capacity and total from the header the producer wrote in
// region. config.Flow must match the producer's.
func NewConsumer(region *shm.Region, config *Config, opts ...Option) (*Consumer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	r, err := newRunner(region, config, flow.SideConsumer, opts)
	if err != nil {
		return nil, err
	}
	if err := r.ctl.Load(); err != nil {
		return nil, err
	}
	roleLogger.Infof("consumer attached to %s: flow %s, capacity %d, total %d",
		region.Name(), config.Flow, r.ctl.Capacity(), r.ctl.Total())
	return &Consumer{runner: r}, nil
}

// Run consumes every item and then removes the region. A failed removal is
// logged and returned wrapped in shm.ErrTeardown after all items were
// consumed; callers may treat it as a warning.
func (c *Consumer) Run(ctx context.Context) error {
	ctx, span := c.start(ctx)
	defer span.End()
	if err := ctx.Err(); err != nil {
		return c.fail(span, err)
	}

	for item := 0; item < c.ctl.Total(); item++ {
		polls, err := c.ctl.WaitConsume(ctx)
		if err != nil {
			return c.fail(span, fmt.Errorf("wait for item %d: %w", item, err))
		}
		v, slot, err := c.ctl.Read()
		if err != nil {
			return c.fail(span, fmt.Errorf("read item %d: %w", item, err))
		}
		e := Event{Side: flow.SideConsumer, Item: item, Value: v, Slot: slot, Polls: polls}
		c.reporter.Report(e)
		if err := c.ctl.Release(); err != nil {
			return c.fail(span, fmt.Errorf("release item %d: %w", item, err))
		}
		c.count(ctx, e)
	}
	roleLogger.Debugf("consumer done, %d items", c.ctl.Total())

	if err := c.region.Remove(); err != nil {
		span.RecordError(err)
		roleLogger.Warnf("consumer: %v", err)
		return err
	}
	return nil
}

// IsTeardown reports whether err only means the region could not be removed.
func IsTeardown(err error) bool {
	return errors.Is(err, shm.ErrTeardown)
}
