package container

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/samber/do"
	"github.com/serroba/credit-limiter/internal/audit"
	"github.com/serroba/credit-limiter/internal/credit"
	"github.com/serroba/credit-limiter/internal/handlers"
	"github.com/serroba/credit-limiter/internal/health"
	"github.com/serroba/credit-limiter/internal/metrics"
	"github.com/serroba/credit-limiter/internal/middleware"
	"github.com/serroba/credit-limiter/internal/ratelimit"
	"go.uber.org/zap"
)

// HTTPPackage provides the router and the huma API with every route registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*chi.Mux, error) {
		router := chi.NewMux()
		router.Use(chimiddleware.RealIP, chimiddleware.Recoverer)
		router.Method("GET", "/metrics", do.MustInvoke[*metrics.Metrics](i).Handler())

		return router, nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)
		limiter := do.MustInvoke[*ratelimit.SlidingWindowLimiter](i)
		ws := do.MustInvoke[*WindowStore](i)

		api := humachi.New(router, huma.DefaultConfig("Credit Limiter", "1.0.0"))

		guard := ratelimit.WindowSpec{
			WindowSeconds: int64(opts.APIWindowSeconds),
			Limit:         int64(opts.APILimit),
		}
		if err := guard.Validate(); err != nil {
			return nil, err
		}

		api.UseMiddleware(middleware.RateLimiter(api, limiter, guard, logger))

		health.RegisterRoutes(api, health.NewHandler(ws.Backend, ws.Health))
		handlers.RegisterRoutes(api, handlers.NewCreditHandler(
			limiter,
			do.MustInvoke[*credit.Requester](i),
			do.MustInvoke[*audit.Recorder](i),
			time.Duration(opts.AcquireTimeoutSeconds)*time.Second,
			logger,
		))

		return api, nil
	})
}

// ConsumerRouter is the audit consumer's HTTP surface.
type ConsumerRouter struct {
	*chi.Mux
}

// ConsumerHTTPPackage provides the consumer router: metrics always, and the
// audit query API when the configured store can read decisions back.
func ConsumerHTTPPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*ConsumerRouter, error) {
		logger := do.MustInvoke[*zap.Logger](i)

		router := chi.NewMux()
		router.Use(chimiddleware.Recoverer)
		router.Method("GET", "/metrics", do.MustInvoke[*metrics.Metrics](i).Handler())

		if reader, ok := do.MustInvoke[audit.Store](i).(audit.Reader); ok {
			api := humachi.New(router, huma.DefaultConfig("Credit Limiter Audit", "1.0.0"))
			handlers.RegisterAuditRoutes(api, handlers.NewAuditHandler(reader, logger))
		}

		return &ConsumerRouter{Mux: router}, nil
	})
}
