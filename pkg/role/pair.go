package role

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/srediag/shm-bbuf/pkg/shm"
)

// PairResult is what RunPair observed.
type PairResult struct {
	Produced []Event
	Consumed []Event
}

// RunPair runs a producer and a consumer over one process-local region on a
// pool of two workers and checks that the consumer saw exactly what the
// producer wrote. Every event is also passed to the reporters in opts.
func RunPair(ctx context.Context, config *Config, opts ...Option) (*PairResult, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	region := shm.NewHeapRegion(config.Size)

	rec := NewRecorder(2 * config.Total)
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	opts = append(opts[:len(opts):len(opts)], WithReporter(Reporters(o.reporter, rec)))

	producer, err := NewProducer(region, config, opts...)
	if err != nil {
		return nil, err
	}
	consumer, err := NewConsumer(region, config, opts...)
	if err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(2, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var perr, cerr error
	wg.Add(2)
	submit := func(run func(context.Context) error, errp *error) error {
		return pool.Submit(func() {
			defer wg.Done()
			if *errp = run(ctx); *errp != nil {
				// the peer would spin forever
				cancel()
			}
		})
	}
	if err := submit(producer.Run, &perr); err != nil {
		return nil, err
	}
	if err := submit(consumer.Run, &cerr); err != nil {
		wg.Done()
		cancel()
		wg.Wait()
		return nil, err
	}
	wg.Wait()

	if err := errors.Join(perr, cerr); err != nil {
		return nil, err
	}
	res := &PairResult{}
	res.Produced, res.Consumed = Split(rec.Drain())
	if err := VerifyFIFO(res.Produced, res.Consumed); err != nil {
		return res, fmt.Errorf("pair run: %w", err)
	}
	return res, nil
}
