package container

import (
	"cmp"
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/credit-limiter/internal/health"
	"github.com/serroba/credit-limiter/internal/ratelimit"
	"github.com/serroba/credit-limiter/internal/store"
	"go.uber.org/zap"
)

const connectTimeout = 5 * time.Second

// RedisClient closes the go-redis client when the injector shuts down.
type RedisClient struct {
	*redis.Client
}

func (c *RedisClient) Shutdown() error {
	return c.Close()
}

// PostgresPool closes the pgx pool when the injector shuts down.
type PostgresPool struct {
	*pgxpool.Pool
}

func (p *PostgresPool) Shutdown() error {
	p.Close()

	return nil
}

// WindowStore is the configured ratelimit.Store with its health check and,
// for backends without native key expiry, the target for the sweeper.
type WindowStore struct {
	Backend   string
	Store     ratelimit.Store
	Health    health.Checker
	Sweepable store.Sweepable
	shutdown  func() error
}

func (w *WindowStore) Shutdown() error {
	if w.shutdown == nil {
		return nil
	}

	return w.shutdown()
}

// RedisPackage provides the go-redis client shared by the window store and
// the audit stream.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*RedisClient, error) {
		opts := do.MustInvoke[*Options](i)

		return &RedisClient{Client: redis.NewClient(&redis.Options{
			Addr:      opts.RedisAddr,
			Password:  opts.RedisPassword,
			DB:        opts.RedisDB,
			TLSConfig: RedisTLSConfig(opts),
		})}, nil
	})
}

// RedisTLSConfig returns the TLS settings both Redis clients dial with,
// nil when TLS is off.
func RedisTLSConfig(opts *Options) *tls.Config {
	if !opts.RedisTLS {
		return nil
	}

	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.RedisInsecureSkipVerify, //nolint:gosec // opt-in for self-signed managed Redis
	}
}

func radixConfig(opts *Options) store.RadixConfig {
	return store.RadixConfig{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
		TLS:      RedisTLSConfig(opts),
	}
}

// PostgresPackage provides the pgx pool.
func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*PostgresPool, error) {
		opts := do.MustInvoke[*Options](i)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		return &PostgresPool{Pool: pool}, nil
	})
}

// WindowStorePackage provides the window store selected by Options.Backend.
func WindowStorePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*WindowStore, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		ws, err := newWindowStore(i, opts)
		if err != nil {
			return nil, err
		}

		logger.Info("window store ready", zap.String("backend", ws.Backend))

		return ws, nil
	})
}

func newWindowStore(i *do.Injector, opts *Options) (*WindowStore, error) {
	prefix := cmp.Or(opts.KeyPrefix, store.DefaultKeyPrefix)

	switch opts.Backend {
	case BackendRedis:
		client := do.MustInvoke[*RedisClient](i)

		return &WindowStore{
			Backend: BackendRedis,
			Store:   store.NewRedisWindowStore(client.Client, prefix),
			Health:  health.NewRedisChecker(client.Client),
		}, nil
	case BackendRadix:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		client, err := store.NewRadixPool(ctx, radixConfig(opts))
		if err != nil {
			return nil, fmt.Errorf("connect radix: %w", err)
		}

		s := store.NewRadixWindowStore(client, prefix)

		return &WindowStore{Backend: BackendRadix, Store: s, Health: s, shutdown: s.Shutdown}, nil
	case BackendPostgres:
		pool := do.MustInvoke[*PostgresPool](i)
		s := store.NewPostgresWindowStore(pool.Pool, prefix)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		if err := s.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure window schema: %w", err)
		}

		return &WindowStore{Backend: BackendPostgres, Store: s, Health: s, Sweepable: s}, nil
	case BackendMemory:
		s := store.NewWindowMemoryStore()

		return &WindowStore{
			Backend:   BackendMemory,
			Store:     s,
			Health:    health.CheckerFunc(func(context.Context) error { return nil }),
			Sweepable: s,
		}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}

// SweeperPackage provides the idle window sweeper. Backends with native
// expiry get a sweeper with no schedule.
func SweeperPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*store.Sweeper, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		ws := do.MustInvoke[*WindowStore](i)

		schedule := opts.SweepSchedule
		if ws.Sweepable == nil {
			schedule = ""
		}

		return store.NewSweeper(ws.Sweepable, schedule, logger), nil
	})
}
