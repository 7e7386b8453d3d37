// Package role runs the producer and the consumer of the bounded buffer.
//
// The producer creates the region, writes the header and then produces the
// agreed number of seeded random values. The consumer attaches, reads the
// header, consumes the same number of values in order and removes the region.
// Both sides only ever busy-wait on the header; see package flow.
package role

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/shm-bbuf/internal/logger"
	"github.com/srediag/shm-bbuf/pkg/flow"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

const instrumentationName = "github.com/srediag/shm-bbuf/pkg/role"

var roleLogger = logger.New("role", nil)

// Option configures a Producer or a Consumer.
type Option func(*options)

type options struct {
	reporter Reporter
	metrics  *Metrics
	tracer   trace.Tracer
	meter    metric.Meter
	spinner  *flow.Spinner
}

// WithReporter sets the Reporter receiving every item.
func WithReporter(r Reporter) Option {
	return func(o *options) {
		o.reporter = r
	}
}

// WithMetrics sets the prometheus counters updated per item.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer sets the tracer that records one span per Run.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithMeter sets the meter recording the polls-per-item histogram.
func WithMeter(m metric.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithSpinner overrides the pacing named by Config.Spin.
func WithSpinner(s *flow.Spinner) Option {
	return func(o *options) {
		o.spinner = s
	}
}

// runner is the part of a role that does not depend on its side.
type runner struct {
	side     flow.Side
	region   *shm.Region
	ctl      flow.Control
	layout   *shm.Layout
	reporter Reporter
	metrics  *Metrics
	tracer   trace.Tracer
	polls    metric.Int64Histogram
}

func newRunner(region *shm.Region, config *Config, side flow.Side, opts []Option) (*runner, error) {
	if region == nil {
		return nil, fmt.Errorf("%w: nil region", shm.ErrInvalidArgument)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.spinner == nil {
		s, err := config.Spinner()
		if err != nil {
			return nil, err
		}
		o.spinner = s
	}
	if o.reporter == nil {
		o.reporter = Reporters()
	}
	if o.tracer == nil {
		o.tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	if o.meter == nil {
		o.meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	polls, err := o.meter.Int64Histogram("bbuf.spin.polls",
		metric.WithDescription("Flow state polls spent waiting for one item."),
		metric.WithUnit("{poll}"))
	if err != nil {
		return nil, err
	}

	layout, err := region.Layout(config.Flow.HeaderFields())
	if err != nil {
		return nil, err
	}
	ctl, err := flow.New(config.Flow, layout, side, flow.WithSpinner(o.spinner))
	if err != nil {
		return nil, err
	}
	return &runner{
		side:     side,
		region:   region,
		ctl:      ctl,
		layout:   layout,
		reporter: o.reporter,
		metrics:  o.metrics,
		tracer:   o.tracer,
		polls:    polls,
	}, nil
}

func (r *runner) start(ctx context.Context) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "bbuf."+r.side.String(), trace.WithAttributes(
		attribute.String("bbuf.region", r.region.Name()),
		attribute.String("bbuf.flow", r.ctl.Variant().String()),
		attribute.Int("bbuf.capacity", r.ctl.Capacity()),
		attribute.Int("bbuf.total", r.ctl.Total()),
	))
}

func (r *runner) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	roleLogger.Errorf("%s: %v", r.side, err)
	return err
}

func (r *runner) count(ctx context.Context, e Event) {
	r.metrics.item(r.side, e.Polls)
	r.polls.Record(ctx, int64(e.Polls), metric.WithAttributes(attribute.String("side", r.side.String())))
}

// Snapshot reads the header as the peer currently sees it. It fails with
// shm.ErrRegionClosed once the region is gone.
func (r *runner) Snapshot() (flow.Snapshot, error) {
	var snap flow.Snapshot
	err := r.region.Inspect(func() error {
		var err error
		snap, err = flow.ReadSnapshot(r.ctl.Variant(), r.layout)
		return err
	})
	return snap, err
}

// Region returns the region the role runs over.
func (r *runner) Region() *shm.Region {
	return r.region
}

// Capacity returns the buffer capacity in items.
func (r *runner) Capacity() int {
	return r.ctl.Capacity()
}

// Total returns the number of items of the run.
func (r *runner) Total() int {
	return r.ctl.Total()
}
