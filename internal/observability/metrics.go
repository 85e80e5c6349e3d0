package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the workflow service.
type Metrics struct {
	StatusTransitions  *prometheus.CounterVec
	TriggerOutcomes    *prometheus.CounterVec
	VerificationResult *prometheus.CounterVec
	IdempotentInserts  *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	RequestErrors      *prometheus.CounterVec
}

// NewMetrics registers all collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clearance_profile_status_transitions_total",
			Help: "Profile status transitions committed, by from and to state",
		}, []string{"from", "to"}),
		TriggerOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clearance_trigger_outcomes_total",
			Help: "Reactive trigger invocations by event type and result",
		}, []string{"event_type", "result"}),
		VerificationResult: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clearance_verification_results_total",
			Help: "Verification code issue and validate outcomes",
		}, []string{"operation", "result"}),
		IdempotentInserts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clearance_idempotent_inserts_total",
			Help: "Deterministic-key inserts by kind and whether the record was created",
		}, []string{"kind", "outcome"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clearance_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
		RequestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clearance_http_request_errors_total",
			Help: "HTTP requests that ended in a domain error, by code",
		}, []string{"method", "route", "code"}),
	}
}

// RecordTransition counts a committed status change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

// RecordTrigger counts a trigger handler result.
func (m *Metrics) RecordTrigger(eventType, result string) {
	if m == nil {
		return
	}
	m.TriggerOutcomes.WithLabelValues(eventType, result).Inc()
}

// RecordVerification counts a verification operation outcome.
func (m *Metrics) RecordVerification(operation, result string) {
	if m == nil {
		return
	}
	m.VerificationResult.WithLabelValues(operation, result).Inc()
}

// RecordInsert counts an idempotent insert.
func (m *Metrics) RecordInsert(kind string, created bool) {
	if m == nil {
		return
	}
	outcome := "existing"
	if created {
		outcome = "created"
	}
	m.IdempotentInserts.WithLabelValues(kind, outcome).Inc()
}

// RecordRequest observes request latency.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, statusLabel(status)).Observe(duration.Seconds())
}

// RecordError counts a request error by domain code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.RequestErrors.WithLabelValues(method, route, code).Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
