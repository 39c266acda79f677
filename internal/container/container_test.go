package container_test

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/samber/do"
	"github.com/serroba/credit-limiter/internal/audit"
	auditstore "github.com/serroba/credit-limiter/internal/audit/store"
	"github.com/serroba/credit-limiter/internal/container"
	"github.com/serroba/credit-limiter/internal/ratelimit"
	"github.com/serroba/credit-limiter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(backend string) *container.Options {
	return &container.Options{
		LogFormat:        "json",
		Backend:          backend,
		KeyPrefix:        "credits:",
		RedisAddr:        "localhost:6379",
		SweepSchedule:    "@every 1m",
		AuditStore:       container.AuditStoreLog,
		APIWindowSeconds: 1,
		APILimit:         100,
	}
}

func newInjector(t *testing.T, opts *container.Options) *do.Injector {
	t.Helper()

	injector := do.New()
	do.ProvideValue(injector, opts)
	container.LoggerPackage(injector)
	container.RedisPackage(injector)
	container.PostgresPackage(injector)
	container.WindowStorePackage(injector)
	container.SweeperPackage(injector)
	container.MetricsPackage(injector)
	container.LimiterPackage(injector)
	container.RequesterPackage(injector)
	container.PublisherGroupPackage(injector)
	container.AuditPackage(injector)
	container.HTTPPackage(injector)

	t.Cleanup(func() { _ = injector.Shutdown() })

	return injector
}

func serve(t *testing.T, injector *do.Injector, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	router := do.MustInvoke[*chi.Mux](injector)
	_ = do.MustInvoke[huma.API](injector)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func TestOptions_Validate(t *testing.T) {
	require.NoError(t, testOptions(container.BackendMemory).Validate())

	opts := testOptions("etcd")
	assert.ErrorContains(t, opts.Validate(), "unknown backend")

	opts = testOptions(container.BackendRedis)
	opts.AuditStore = "s3"
	assert.ErrorContains(t, opts.Validate(), "unknown audit store")

	opts = testOptions(container.BackendRedis)
	opts.AuditStore = container.AuditStoreSQLite
	assert.ErrorContains(t, opts.Validate(), "database path")
}

func TestAuditStorePackage_SQLite(t *testing.T) {
	opts := testOptions(container.BackendMemory)
	opts.AuditStore = container.AuditStoreSQLite
	opts.SQLitePath = filepath.Join(t.TempDir(), "decisions.db")

	injector := newInjector(t, opts)
	container.AuditStorePackage(injector)

	s := do.MustInvoke[audit.Store](injector)
	decision := audit.NewDecision(audit.ModeCheck, "user:1",
		ratelimit.WindowSpec{WindowSeconds: 1, Limit: 5}, true, 4, 1, time.Now())

	require.NoError(t, s.SaveDecision(context.Background(), decision))
	assert.IsType(t, &auditstore.SQLite{}, s)
}

func TestConsumerHTTPPackage(t *testing.T) {
	get := func(t *testing.T, injector *do.Injector, path string) *httptest.ResponseRecorder {
		t.Helper()

		rec := httptest.NewRecorder()
		do.MustInvoke[*container.ConsumerRouter](injector).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		return rec
	}

	t.Run("serves decisions from a readable store", func(t *testing.T) {
		opts := testOptions(container.BackendMemory)
		opts.AuditStore = container.AuditStoreSQLite
		opts.SQLitePath = filepath.Join(t.TempDir(), "decisions.db")

		injector := newInjector(t, opts)
		container.AuditStorePackage(injector)
		container.ConsumerHTTPPackage(injector)

		decision := audit.NewDecision(audit.ModeCheck, "user:1",
			ratelimit.WindowSpec{WindowSeconds: 1, Limit: 5}, true, 4, 1, time.Now())
		require.NoError(t, do.MustInvoke[audit.Store](injector).SaveDecision(context.Background(), decision))

		rec := get(t, injector, "/audit/user:1")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), decision.ID)
		assert.Equal(t, http.StatusOK, get(t, injector, "/metrics").Code)
	})

	t.Run("omits the query API for the log store", func(t *testing.T) {
		injector := newInjector(t, testOptions(container.BackendMemory))
		container.AuditStorePackage(injector)
		container.ConsumerHTTPPackage(injector)

		assert.Equal(t, http.StatusNotFound, get(t, injector, "/audit/user:1").Code)
		assert.Equal(t, http.StatusOK, get(t, injector, "/metrics").Code)
	})
}

func TestHTTPPackage_MemoryBackend(t *testing.T) {
	injector := newInjector(t, testOptions(container.BackendMemory))

	t.Run("check consumes credits", func(t *testing.T) {
		body := `{"windowSeconds":60,"limit":1}`

		first := serve(t, injector, http.MethodPost, "/credits/user:1/check", body)
		second := serve(t, injector, http.MethodPost, "/credits/user:1/check", body)

		assert.Equal(t, http.StatusOK, first.Code)
		assert.Contains(t, first.Body.String(), `"granted":true`)
		assert.NotEmpty(t, first.Header().Get("X-RateLimit-Remaining"))
		assert.Contains(t, second.Body.String(), `"granted":false`)
	})

	t.Run("health reports the backend", func(t *testing.T) {
		rec := serve(t, injector, http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"backend":"memory"`)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("metrics expose check outcomes", func(t *testing.T) {
		rec := serve(t, injector, http.MethodGet, "/metrics", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "credit_limiter_checks_total")
	})

	t.Run("memory backend gets a scheduled sweeper", func(t *testing.T) {
		ws := do.MustInvoke[*container.WindowStore](injector)

		assert.NotNil(t, ws.Sweepable)
		assert.NotNil(t, do.MustInvoke[*store.Sweeper](injector))
	})
}

func TestHTTPPackage_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	opts := testOptions(container.BackendRedis)
	opts.RedisAddr = mr.Addr()
	injector := newInjector(t, opts)

	rec := serve(t, injector, http.MethodPost, "/credits/user:1/check", `{"windowSeconds":60,"limit":5}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"remaining":4`)

	members, err := mr.ZMembers("credits:user:1")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	ws := do.MustInvoke[*container.WindowStore](injector)
	assert.Nil(t, ws.Sweepable)
}

func TestHTTPPackage_RadixBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	opts := testOptions(container.BackendRadix)
	opts.RedisAddr = mr.Addr()
	opts.RedisDB = 2
	injector := newInjector(t, opts)

	rec := serve(t, injector, http.MethodPost, "/credits/user:1/check", `{"windowSeconds":60,"limit":5}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"remaining":4`)

	members, err := mr.DB(2).ZMembers("credits:user:1")
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.False(t, mr.Exists("credits:user:1"), "database 0 must stay empty")
}

func TestRedisTLSConfig(t *testing.T) {
	opts := testOptions(container.BackendRadix)
	assert.Nil(t, container.RedisTLSConfig(opts))

	opts.RedisTLS = true
	cfg := container.RedisTLSConfig(opts)
	require.NotNil(t, cfg)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	opts.RedisInsecureSkipVerify = true
	assert.True(t, container.RedisTLSConfig(opts).InsecureSkipVerify)
}

func TestHTTPPackage_APIGuard(t *testing.T) {
	opts := testOptions(container.BackendMemory)
	opts.APIWindowSeconds = 60
	opts.APILimit = 2
	injector := newInjector(t, opts)

	codes := make([]int, 0, 3)
	for range 3 {
		rec := serve(t, injector, http.MethodPost, "/credits/k/check", `{"windowSeconds":60,"limit":100}`)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
