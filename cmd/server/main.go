package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/go-chi/chi/v5"
	"github.com/samber/do"
	"github.com/serroba/credit-limiter/internal/container"
	"github.com/serroba/credit-limiter/internal/credit"
	"github.com/serroba/credit-limiter/internal/demo"
	"github.com/serroba/credit-limiter/internal/ratelimit"
	"github.com/serroba/credit-limiter/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func registerPackages(injector *do.Injector, options *container.Options) {
	do.ProvideValue(injector, options)
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
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, options *container.Options) {
		injector := do.New()
		registerPackages(injector, options)

		var server *http.Server

		hooks.OnStart(func() {
			logger := do.MustInvoke[*zap.Logger](injector)

			if err := options.Validate(); err != nil {
				logger.Fatal("invalid configuration", zap.Error(err))
			}

			router := do.MustInvoke[*chi.Mux](injector)

			// Invoke API to trigger route registration
			_ = do.MustInvoke[huma.API](injector)

			sweeper := do.MustInvoke[*store.Sweeper](injector)
			if err := sweeper.Start(context.Background()); err != nil {
				logger.Fatal("sweeper failed", zap.Error(err))
			}

			server = &http.Server{
				Addr:              fmt.Sprintf(":%d", options.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			logger.Info("server starting",
				zap.Int("port", options.Port),
				zap.String("backend", options.Backend),
				zap.Bool("audit", options.Audit),
			)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("server failed", zap.Error(err))
			}
		})

		hooks.OnStop(func() {
			logger := do.MustInvoke[*zap.Logger](injector)
			logger.Info("shutting down")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if server != nil {
				if err := server.Shutdown(ctx); err != nil {
					logger.Error("server shutdown error", zap.Error(err))
				}
			}

			if err := injector.Shutdown(); err != nil {
				logger.Error("service shutdown error", zap.Error(err))
			}

			logger.Info("shutdown complete")
		})
	})

	cli.Root().AddCommand(demoCommand())

	cli.Run()
}

func demoCommand() *cobra.Command {
	cfg := demo.DefaultConfig()

	var waitMs int

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Request credits in a loop and print each decision",
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, options *container.Options) {
			injector := do.New()
			registerPackages(injector, options)

			defer func() { _ = injector.Shutdown() }()

			cfg.Wait = time.Duration(waitMs) * time.Millisecond

			err := demo.Run(cmd.Context(), cmd.OutOrStdout(),
				do.MustInvoke[*ratelimit.SlidingWindowLimiter](injector),
				do.MustInvoke[*credit.Requester](injector),
				cfg,
			)
			if err != nil {
				do.MustInvoke[*zap.Logger](injector).Error("demo failed", zap.Error(err))
			}
		}),
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Key, "key", cfg.Key, "credit key")
	flags.IntVar(&cfg.Iterations, "iterations", cfg.Iterations, "number of requests")
	flags.Int64Var(&cfg.Window.WindowSeconds, "window", cfg.Window.WindowSeconds, "window in seconds")
	flags.Int64Var(&cfg.Window.Limit, "limit", cfg.Window.Limit, "credits per window")
	flags.BoolVar(&cfg.Acquire, "acquire", false, "print grants instead of remaining credits")
	flags.IntVar(&waitMs, "wait-ms", 0, "wait between attempts while denied, with --acquire")
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "retries after the first attempt, -1 for no cap")
	flags.BoolVar(&cfg.Color, "color", false, "color grants green and denials red")

	return cmd
}
