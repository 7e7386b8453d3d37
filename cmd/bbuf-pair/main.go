// Command bbuf-pair runs the producer and the consumer in one process over a
// heap region and checks that every item arrives in order.
//
//	bbuf-pair <capacity> <count> <seed>
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/srediag/shm-bbuf/internal/cli"
	"github.com/srediag/shm-bbuf/pkg/role"
)

const prog = "bbuf-pair"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	config, err := role.ConfigFromEnv()
	if err != nil {
		return cli.Fail(stderr, prog, err)
	}
	if err := config.ParseProducerArgs(args); err != nil {
		return cli.Fail(stderr, prog, err)
	}
	_, metrics, err := cli.Instruments()
	if err != nil {
		return cli.Fail(stderr, prog, err)
	}
	trace := role.NewTraceWriter(stdout)
	res, err := role.RunPair(ctx, config, role.WithReporter(trace), role.WithMetrics(metrics))
	if err != nil {
		return cli.Fail(stderr, prog, err)
	}
	trace.Println(fmt.Sprintf("FIFO verified: %d items, flow %s", len(res.Consumed), config.Flow))
	return 0
}
