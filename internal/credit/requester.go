// Package credit turns sliding window admission checks into grant decisions,
// optionally waiting and retrying while the window is full.
package credit

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/serroba/credit-limiter/internal/ratelimit"
	"go.uber.org/zap"
)

// Unlimited disables the retry cap.
const Unlimited = -1

// Acquire outcomes reported to an Observer.
const (
	OutcomeGranted   = "granted"
	OutcomeDenied    = "denied"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

var errDenied = errors.New("credit denied")

// Observer receives the outcome of every acquisition.
type Observer interface {
	ObserveAcquire(outcome string, attempts int)
}

type nopObserver struct{}

func (nopObserver) ObserveAcquire(string, int) {}

// Outcome describes how an acquisition ended.
type Outcome struct {
	Granted   bool
	Attempts  int
	Remaining int64 // result of the last check
}

// AcquireOption configures a single acquisition.
type AcquireOption func(*acquireConfig)

type acquireConfig struct {
	waitInterval time.Duration
	maxRetries   int
}

// WithWaitInterval makes Acquire wait d between attempts while denied.
// Zero, the default, makes a single attempt.
func WithWaitInterval(d time.Duration) AcquireOption {
	return func(c *acquireConfig) {
		c.waitInterval = d
	}
}

// WithMaxRetries caps the retries after the first attempt. Negative means Unlimited.
func WithMaxRetries(n int) AcquireOption {
	return func(c *acquireConfig) {
		if n < 0 {
			n = Unlimited
		}

		c.maxRetries = n
	}
}

// Requester grants credits on top of a ratelimit.Checker. It keeps no state
// between calls; concurrent requesters coordinate only through the store.
type Requester struct {
	checker  ratelimit.Checker
	logger   *zap.Logger
	observer Observer
}

// NewRequester creates a new credit requester.
func NewRequester(checker ratelimit.Checker, logger *zap.Logger, observer Observer) *Requester {
	if observer == nil {
		observer = nopObserver{}
	}

	return &Requester{
		checker:  checker,
		logger:   logger,
		observer: observer,
	}
}

// Acquire reports whether a credit was granted for key.
func (r *Requester) Acquire(
	ctx context.Context, key string, spec ratelimit.WindowSpec, opts ...AcquireOption,
) (bool, error) {
	outcome, err := r.Request(ctx, key, spec, opts...)
	if err != nil {
		return false, err
	}

	return outcome.Granted, nil
}

// Request is Acquire with details about the attempts made. Store errors,
// invalid parameters and cancellation of ctx end the loop with an error;
// a denial never does.
func (r *Requester) Request(
	ctx context.Context, key string, spec ratelimit.WindowSpec, opts ...AcquireOption,
) (*Outcome, error) {
	cfg := acquireConfig{maxRetries: Unlimited}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := r.logger.With(zap.String("key", key))
	outcome := &Outcome{}

	attempt := func() (int64, error) {
		if err := ctx.Err(); err != nil {
			return 0, backoff.Permanent(err)
		}

		outcome.Attempts++
		log.Debug("credit state", zap.Stringer("state", StateChecking), zap.Int("attempt", outcome.Attempts))

		remaining, err := r.checker.CheckAndConsume(ctx, key, spec)
		if err != nil {
			return 0, backoff.Permanent(err)
		}

		outcome.Remaining = remaining

		if remaining < 0 {
			return remaining, errDenied
		}

		return remaining, nil
	}

	_, err := backoff.Retry(ctx, attempt, r.retryOptions(cfg, log)...)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}

	switch {
	case err == nil:
		outcome.Granted = true
		log.Debug("credit state", zap.Stringer("state", StateGranted), zap.Int("attempts", outcome.Attempts))
		r.observer.ObserveAcquire(OutcomeGranted, outcome.Attempts)

		return outcome, nil
	case errors.Is(err, errDenied):
		log.Debug("credit state", zap.Stringer("state", StateDenied), zap.Int("attempts", outcome.Attempts))
		r.observer.ObserveAcquire(OutcomeDenied, outcome.Attempts)

		return outcome, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.observer.ObserveAcquire(OutcomeCancelled, outcome.Attempts)

		return outcome, err
	default:
		r.observer.ObserveAcquire(OutcomeError, outcome.Attempts)

		return outcome, err
	}
}

func (r *Requester) retryOptions(cfg acquireConfig, log *zap.Logger) []backoff.RetryOption {
	if cfg.waitInterval <= 0 {
		return []backoff.RetryOption{backoff.WithMaxTries(1)}
	}

	var maxTries uint // zero lets backoff retry forever
	if cfg.maxRetries != Unlimited {
		maxTries = uint(cfg.maxRetries) + 1
	}

	return []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(cfg.waitInterval)),
		backoff.WithMaxTries(maxTries),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(_ error, wait time.Duration) {
			log.Debug("credit state", zap.Stringer("state", StateWaiting), zap.Duration("wait", wait))
		}),
	}
}
