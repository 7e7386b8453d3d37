// Package cli holds what the producer, consumer and bbuf-pair binaries share.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/shm-bbuf/pkg/health"
	"github.com/srediag/shm-bbuf/pkg/role"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

// Fail prints err for prog on w and returns the exit code 1.
func Fail(w io.Writer, prog string, err error) int {
	fmt.Fprintf(w, "%s: %v\n", prog, err)
	return 1
}

// Instruments returns a fresh registry with the role metrics registered.
func Instruments() (*prometheus.Registry, *role.Metrics, error) {
	reg := prometheus.NewRegistry()
	m, err := role.NewMetrics(reg)
	if err != nil {
		return nil, nil, err
	}
	return reg, m, nil
}

// StartHealth serves /live, /ready and /metrics on the address in
// BBUF_HEALTH_ADDR until ctx is done. It does nothing when the variable is
// unset.
func StartHealth(ctx context.Context, reg *prometheus.Registry, region *shm.Region, r health.SnapshotReader) error {
	addr := os.Getenv(health.EnvAddr)
	if addr == "" {
		return nil
	}
	checks := health.New(reg)
	if path := region.Path(); path != "" {
		checks.WatchRegion(path)
	}
	checks.WatchHeader(r)
	_, err := health.Serve(ctx, addr, checks.Mux())
	return err
}
