package role

import (
	"context"
	"fmt"

	"github.com/srediag/shm-bbuf/pkg/flow"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

// Producer writes Config.Total values into the ring.
type Producer struct {
	*runner
	gen *Generator
}

// NewProducer checks capacity and total, then writes the header of
// config.Flow into region. The consumer may attach once it returns.
func NewProducer(region *shm.Region, config *Config, opts ...Option) (*Producer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := flow.ValidateArgs(config.Capacity, config.Total); err != nil {
		return nil, err
	}
	r, err := newRunner(region, config, flow.SideProducer, opts)
	if err != nil {
		return nil, err
	}
	if err := r.ctl.Init(config.Capacity, config.Total); err != nil {
		return nil, err
	}
	roleLogger.Infof("producer ready on %s: flow %s, capacity %d, total %d, seed %d",
		region.Name(), config.Flow, config.Capacity, config.Total, config.Seed)
	return &Producer{runner: r, gen: NewGenerator(config.Seed)}, nil
}

// Run produces every item. It only returns early when ctx is done or the
// header is found corrupted.
func (p *Producer) Run(ctx context.Context) error {
	ctx, span := p.start(ctx)
	defer span.End()
	if err := ctx.Err(); err != nil {
		return p.fail(span, err)
	}

	for item := 0; item < p.ctl.Total(); item++ {
		polls, err := p.ctl.WaitProduce(ctx)
		if err != nil {
			return p.fail(span, fmt.Errorf("wait for a free slot for item %d: %w", item, err))
		}
		v := p.gen.Next()
		slot, err := p.ctl.Write(v)
		if err != nil {
			return p.fail(span, fmt.Errorf("write item %d: %w", item, err))
		}
		e := Event{Side: flow.SideProducer, Item: item, Value: v, Slot: slot, Polls: polls}
		p.reporter.Report(e)
		if err := p.ctl.Publish(); err != nil {
			return p.fail(span, fmt.Errorf("publish item %d: %w", item, err))
		}
		p.count(ctx, e)
	}
	roleLogger.Debugf("producer done, %d items", p.ctl.Total())
	return nil
}
