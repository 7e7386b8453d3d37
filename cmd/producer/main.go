// Command producer creates the shared region, writes the header and produces
// <count> seeded random values into a ring of <capacity> slots.
//
//	producer <capacity> <count> <seed>
//
// The region name, size and flow control come from the BBUF_* environment.
// When BBUF_CONSUMER names the consumer binary, the producer launches it after
// the header is written and waits for it. The consumer gets
// BBUF_CONSUMER_HEALTH_ADDR as its health address, never the producer's.
package main

import (
	"context"
	"os"

	"github.com/srediag/shm-bbuf/internal/cli"
)

func main() {
	os.Exit(cli.Producer(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
