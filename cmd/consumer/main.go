// Command consumer attaches to the region a producer created, consumes every
// item announced in its header and removes the region.
//
// It takes no arguments; the region name and flow control come from the
// BBUF_* environment and must match the producer's.
package main

import (
	"context"
	"os"

	"github.com/srediag/shm-bbuf/internal/cli"
)

func main() {
	os.Exit(cli.Consumer(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
