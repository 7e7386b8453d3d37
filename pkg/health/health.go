// Package health serves liveness, readiness and metrics of a running role.
//
// Liveness holds while the region stays mapped by this process. Readiness holds
// while the header the role reads satisfies its range invariants. Both are
// exported as prometheus gauges next to the role metrics on /metrics.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srediag/shm-bbuf/internal/logger"
	"github.com/srediag/shm-bbuf/pkg/flow"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

// EnvAddr names the variable holding the listen address of the endpoint.
const EnvAddr = "BBUF_HEALTH_ADDR"

// MaxGoroutines fails liveness when the process leaks goroutines.
const MaxGoroutines = 256

var healthLogger = logger.New("health", nil)

// SnapshotReader is implemented by role.Producer and role.Consumer.
type SnapshotReader interface {
	Snapshot() (flow.Snapshot, error)
}

// Checks is the set of health checks of one process.
type Checks struct {
	healthcheck.Handler
	reg *prometheus.Registry
}

// New returns Checks whose results are also gauges in reg.
func New(reg *prometheus.Registry) *Checks {
	h := healthcheck.NewMetricsHandler(reg, "bbuf")
	h.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(MaxGoroutines))
	return &Checks{Handler: h, reg: reg}
}

// WatchRegion adds a liveness check failing once path is no longer mapped.
func (c *Checks) WatchRegion(path string) {
	c.AddLivenessCheck("region", RegionMapped(path))
}

// WatchHeader adds a readiness check on the header read through r.
func (c *Checks) WatchHeader(r SnapshotReader) {
	c.AddReadinessCheck("header", HeaderValid(r))
}

// RegionMapped checks that this process maps path.
func RegionMapped(path string) healthcheck.Check {
	return func() error {
		if !shm.IsMapped(path) {
			return fmt.Errorf("region %s is not mapped", path)
		}
		return nil
	}
}

// HeaderValid checks the header invariants seen through r.
func HeaderValid(r SnapshotReader) healthcheck.Check {
	return func() error {
		snap, err := r.Snapshot()
		if err != nil {
			return err
		}
		return snap.Check()
	}
}

// Mux returns the mux serving /live, /ready and /metrics.
func (c *Checks) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/live", c.Handler)
	mux.Handle("/ready", c.Handler)
	mux.Handle("/metrics", promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}))
	return mux
}

// Serve listens on addr and serves h until ctx is done. It returns once the
// listener is bound; serving errors are logged.
func Serve(ctx context.Context, addr string, h http.Handler) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			healthLogger.Errorf("serve %s: %v", ln.Addr(), err)
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	healthLogger.Infof("serving /live /ready /metrics on %s", ln.Addr())
	return ln.Addr(), nil
}
