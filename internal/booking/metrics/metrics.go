package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for slot claims and booking lifecycle changes.
type Metrics struct {
	Claims         *prometheus.CounterVec
	ClaimDuration  prometheus.Histogram
	Transitions    *prometheus.CounterVec
	SlotsReclaimed prometheus.Counter
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Claims: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carebook_booking_claims_total",
			Help: "Slot claims by outcome",
		}, []string{"outcome"}),
		ClaimDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "carebook_booking_claim_seconds",
			Help:    "Time spent inside the slot transaction",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carebook_booking_transitions_total",
			Help: "Booking status changes by target status",
		}, []string{"status"}),
		SlotsReclaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "carebook_booking_slots_reclaimed_total",
			Help: "Claims that overwrote a cancelled booking",
		}),
	}
}

func (m *Metrics) IncClaim(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Claims.WithLabelValues(outcome).Inc()
	m.ClaimDuration.Observe(seconds)
}

func (m *Metrics) IncReclaimed() {
	if m == nil {
		return
	}
	m.SlotsReclaimed.Inc()
}

func (m *Metrics) IncTransition(status string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status).Inc()
}
