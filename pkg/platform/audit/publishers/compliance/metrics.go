package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsEmitted   prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "carebook_audit_compliance_events_total",
			Help: "Compliance audit events persisted",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "carebook_audit_compliance_failures_total",
			Help: "Compliance audit writes that failed and aborted the caller",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "carebook_audit_compliance_persist_seconds",
			Help:    "Latency of compliance audit writes",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}
}

func (m *Metrics) IncEventsEmitted()                  { m.EventsEmitted.Inc() }
func (m *Metrics) IncPersistFailures()                { m.PersistFailures.Inc() }
func (m *Metrics) ObservePersistDuration(sec float64) { m.PersistDuration.Observe(sec) }
