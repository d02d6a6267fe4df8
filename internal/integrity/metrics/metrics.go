package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for fingerprint publication, ledger calls and verification.
type Metrics struct {
	LedgerCalls         *prometheus.CounterVec
	LedgerCallDuration  *prometheus.HistogramVec
	LedgerBreakerOpen   prometheus.Gauge
	Verifications       *prometheus.CounterVec
	Approvals           *prometheus.CounterVec
	TamperDetectedTotal prometheus.Counter
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LedgerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carebook_integrity_ledger_calls_total",
			Help: "Ledger calls by operation and outcome category",
		}, []string{"op", "outcome"}),
		LedgerCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carebook_integrity_ledger_call_seconds",
			Help:    "Ledger call latency by operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		LedgerBreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "carebook_integrity_ledger_breaker_open",
			Help: "1 while the ledger circuit breaker is open",
		}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carebook_integrity_verifications_total",
			Help: "Verification results by status",
		}, []string{"status"}),
		Approvals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carebook_integrity_approvals_total",
			Help: "Record approval attempts by outcome",
		}, []string{"outcome"}),
		TamperDetectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "carebook_integrity_tamper_detected_total",
			Help: "Verifications whose recomputed fingerprint diverged from the ledger",
		}),
	}
}

func (m *Metrics) ObserveLedgerCall(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.LedgerCalls.WithLabelValues(op, outcome).Inc()
	m.LedgerCallDuration.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.LedgerBreakerOpen.Set(1)
		return
	}
	m.LedgerBreakerOpen.Set(0)
}

func (m *Metrics) IncVerification(status string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(status).Inc()
	if status == "tampered" {
		m.TamperDetectedTotal.Inc()
	}
}

func (m *Metrics) IncApproval(outcome string) {
	if m == nil {
		return
	}
	m.Approvals.WithLabelValues(outcome).Inc()
}
