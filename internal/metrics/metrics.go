// Package metrics exposes Prometheus collectors for admission checks and
// credit acquisitions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements ratelimit.Observer, credit.Observer and
// messaging.EventObserver.
type Metrics struct {
	registry *prometheus.Registry

	checks        *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec

	acquisitions    *prometheus.CounterVec
	acquireAttempts prometheus.Histogram

	auditEvents *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, including Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return NewWithRegistry(reg)
}

// NewWithRegistry creates the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_limiter_checks_total",
				Help: "Total number of sliding window admission checks by outcome",
			},
			[]string{"outcome"},
		),

		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credit_limiter_check_duration_seconds",
				Help:    "Duration of admission checks including the store round trip",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 16), // 50µs to ~1.6s
			},
			[]string{"outcome"},
		),

		acquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_limiter_acquisitions_total",
				Help: "Total number of credit acquisitions by outcome",
			},
			[]string{"outcome"},
		),

		acquireAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "credit_limiter_acquire_attempts",
				Help:    "Admission checks made per credit acquisition",
				Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100},
			},
		),

		auditEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_limiter_audit_events_total",
				Help: "Decision events delivered to the audit consumer by outcome",
			},
			[]string{"topic", "outcome"},
		),
	}
}

// ObserveCheck records one admission check.
func (m *Metrics) ObserveCheck(outcome string, elapsed time.Duration) {
	m.checks.WithLabelValues(outcome).Inc()
	m.checkDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveAcquire records one credit acquisition.
func (m *Metrics) ObserveAcquire(outcome string, attempts int) {
	m.acquisitions.WithLabelValues(outcome).Inc()
	m.acquireAttempts.Observe(float64(attempts))
}

// ObserveEvent records one delivered audit event.
func (m *Metrics) ObserveEvent(topic, outcome string) {
	m.auditEvents.WithLabelValues(topic, outcome).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
