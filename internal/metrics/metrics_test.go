package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/serroba/credit-limiter/internal/credit"
	"github.com/serroba/credit-limiter/internal/messaging"
	"github.com/serroba/credit-limiter/internal/metrics"
	"github.com/serroba/credit-limiter/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time checks.
var (
	_ ratelimit.Observer      = (*metrics.Metrics)(nil)
	_ credit.Observer         = (*metrics.Metrics)(nil)
	_ messaging.EventObserver = (*metrics.Metrics)(nil)
)

func TestMetrics_ObserveCheck(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.ObserveCheck(ratelimit.OutcomeGranted, time.Millisecond)
	m.ObserveCheck(ratelimit.OutcomeGranted, time.Millisecond)
	m.ObserveCheck(ratelimit.OutcomeDenied, time.Millisecond)

	count, err := testutil.GatherAndCount(m.Registry(), "credit_limiter_checks_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per outcome")

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var granted float64

	for _, mf := range families {
		if mf.GetName() != "credit_limiter_checks_total" {
			continue
		}

		for _, metric := range mf.GetMetric() {
			if metric.GetLabel()[0].GetValue() == ratelimit.OutcomeGranted {
				granted = metric.GetCounter().GetValue()
			}
		}
	}

	assert.InDelta(t, 2.0, granted, 0)
}

func TestMetrics_ObserveAcquire(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.ObserveAcquire(credit.OutcomeDenied, 3)

	count, err := testutil.GatherAndCount(m.Registry(),
		"credit_limiter_acquisitions_total", "credit_limiter_acquire_attempts")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_ObserveEvent(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.ObserveEvent("credit.decisions", messaging.EventHandled)
	m.ObserveEvent("credit.decisions", messaging.EventHandled)
	m.ObserveEvent("credit.decisions", messaging.EventFailed)

	count, err := testutil.GatherAndCount(m.Registry(), "credit_limiter_audit_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per outcome")
}

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()
	m.ObserveCheck(ratelimit.OutcomeGranted, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "credit_limiter_checks_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
