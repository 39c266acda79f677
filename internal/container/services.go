package container

import (
	"github.com/samber/do"
	"github.com/serroba/credit-limiter/internal/credit"
	"github.com/serroba/credit-limiter/internal/metrics"
	"github.com/serroba/credit-limiter/internal/ratelimit"
	"go.uber.org/zap"
)

// MetricsPackage provides the Prometheus metrics and registry.
func MetricsPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*metrics.Metrics, error) {
		return metrics.New(), nil
	})
}

// LimiterPackage provides the sliding window limiter over the configured store.
func LimiterPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*ratelimit.SlidingWindowLimiter, error) {
		ws := do.MustInvoke[*WindowStore](i)

		return ratelimit.NewSlidingWindowLimiter(ws.Store,
			ratelimit.WithLogger(do.MustInvoke[*zap.Logger](i)),
			ratelimit.WithObserver(do.MustInvoke[*metrics.Metrics](i)),
		)
	})
}

// RequesterPackage provides the credit requester.
func RequesterPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*credit.Requester, error) {
		return credit.NewRequester(
			do.MustInvoke[*ratelimit.SlidingWindowLimiter](i),
			do.MustInvoke[*zap.Logger](i),
			do.MustInvoke[*metrics.Metrics](i),
		), nil
	})
}
