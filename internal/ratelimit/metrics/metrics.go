package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected      *prometheus.CounterVec
	StoreFailures prometheus.Counter
	Degraded      prometheus.Gauge
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carebook_ratelimit_rejected_total",
			Help: "Requests rejected with 429 by endpoint class",
		}, []string{"class"}),
		StoreFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "carebook_ratelimit_store_failures_total",
			Help: "Failed checks against the shared bucket store",
		}),
		Degraded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "carebook_ratelimit_degraded",
			Help: "1 while limits are enforced by the in-process fallback",
		}),
	}
}

func (m *Metrics) IncRejected(class string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(class).Inc()
}

func (m *Metrics) IncStoreFailure() {
	if m == nil {
		return
	}
	m.StoreFailures.Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}
