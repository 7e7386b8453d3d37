package cli

import (
	"context"
	"io"

	"github.com/srediag/shm-bbuf/pkg/role"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

// Consumer is the body of the consumer command. It takes no arguments,
// attaches to the region the producer created, consumes every item and
// removes the region. A region that cannot be removed is reported but is not
// a failure.
func Consumer(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	const prog = "consumer"
	if len(args) != 0 {
		return Fail(stderr, prog, shm.ErrInvalidArgument)
	}
	config, err := role.ConfigFromEnv()
	if err != nil {
		return Fail(stderr, prog, err)
	}
	reg, metrics, err := Instruments()
	if err != nil {
		return Fail(stderr, prog, err)
	}

	region, err := shm.Attach(ctx, shm.AttachOptions{Name: config.Name, Dir: config.Dir})
	if err != nil {
		return Fail(stderr, prog, err)
	}
	defer region.Close()

	trace := role.NewTraceWriter(stdout)
	consumer, err := role.NewConsumer(region, config, role.WithReporter(trace), role.WithMetrics(metrics))
	if err != nil {
		return Fail(stderr, prog, err)
	}
	if snap, err := consumer.Snapshot(); err == nil {
		trace.Println("Consumer reading:", snap)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := StartHealth(ctx, reg, region, consumer); err != nil {
		return Fail(stderr, prog, err)
	}

	if err := consumer.Run(ctx); err != nil {
		if role.IsTeardown(err) {
			// every item was consumed
			Fail(stderr, prog, err)
			return 0
		}
		return Fail(stderr, prog, err)
	}
	return 0
}
