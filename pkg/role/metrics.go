package role

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/shm-bbuf/pkg/flow"
)

// Metrics counts items and polls of both roles.
type Metrics struct {
	Produced prometheus.Counter
	Consumed prometheus.Counter
	// Polls counts reads of the flow state while waiting, by side.
	Polls *prometheus.CounterVec
}

// NewMetrics creates the role metrics and registers them with reg unless reg
// is nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Produced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bbuf",
			Name:      "items_produced_total",
			Help:      "Total number of items written to the ring.",
		}),
		Consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bbuf",
			Name:      "items_consumed_total",
			Help:      "Total number of items read from the ring.",
		}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bbuf",
			Name:      "spin_polls_total",
			Help:      "Total number of flow state polls spent waiting.",
		}, []string{"side"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Produced, m.Consumed, m.Polls} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) item(side flow.Side, polls int) {
	if m == nil {
		return
	}
	if side == flow.SideProducer {
		m.Produced.Inc()
	} else {
		m.Consumed.Inc()
	}
	m.Polls.WithLabelValues(side.String()).Add(float64(polls))
}
