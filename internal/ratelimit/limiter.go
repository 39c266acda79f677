package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jaevor/go-nanoid"
	"go.uber.org/zap"
)

const memberIDLength = 12

// Check outcomes reported to an Observer.
const (
	OutcomeGranted = "granted"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
)

// Checker performs a single sliding window admission check.
type Checker interface {
	// CheckAndConsume returns limit - count - 1: non-negative when a credit
	// was issued, negative when denied.
	CheckAndConsume(ctx context.Context, key string, spec WindowSpec) (remaining int64, err error)
}

// Observer receives the outcome and latency of every admission check.
type Observer interface {
	ObserveCheck(outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveCheck(string, time.Duration) {}

// Option configures a SlidingWindowLimiter.
type Option func(*SlidingWindowLimiter)

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindowLimiter) {
		l.now = now
	}
}

// WithMemberID overrides the generator of the unique suffix appended to each entry.
func WithMemberID(newID func() string) Option {
	return func(l *SlidingWindowLimiter) {
		l.newID = newID
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *SlidingWindowLimiter) {
		l.logger = logger
	}
}

// WithObserver sets the check observer, typically Prometheus metrics.
func WithObserver(observer Observer) Option {
	return func(l *SlidingWindowLimiter) {
		l.observer = observer
	}
}

// SlidingWindowLimiter implements rate limiting using a sliding window algorithm.
// The check itself runs inside the store; the limiter holds no per-key state and
// needs no locking.
type SlidingWindowLimiter struct {
	store    Store
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
	observer Observer
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
func NewSlidingWindowLimiter(store Store, opts ...Option) (*SlidingWindowLimiter, error) {
	l := &SlidingWindowLimiter{
		store:    store,
		now:      time.Now,
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.newID == nil {
		gen, err := nanoid.Standard(memberIDLength)
		if err != nil {
			return nil, fmt.Errorf("member id generator: %w", err)
		}

		l.newID = gen
	}

	return l, nil
}

func (l *SlidingWindowLimiter) CheckAndConsume(ctx context.Context, key string, spec WindowSpec) (int64, error) {
	start := time.Now()

	if err := validate(key, spec); err != nil {
		l.observer.ObserveCheck(OutcomeInvalid, time.Since(start))

		return 0, err
	}

	nowMicros := l.now().UnixMicro()
	entry := Entry{
		TimestampMicros: nowMicros,
		Member:          strconv.FormatInt(nowMicros, 10) + "-" + l.newID(),
	}

	count, err := l.store.Admit(ctx, key, entry, spec)
	if err != nil {
		l.observer.ObserveCheck(OutcomeError, time.Since(start))
		l.logger.Error("admission check failed",
			zap.String("key", key),
			zap.Int64("window_seconds", spec.WindowSeconds),
			zap.Int64("limit", spec.Limit),
			zap.Error(err),
		)

		if errors.Is(err, ErrStoreUnavailable) {
			return 0, err
		}

		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	remaining := spec.Limit - count - 1

	outcome := OutcomeGranted
	if remaining < 0 {
		outcome = OutcomeDenied
	}

	l.observer.ObserveCheck(outcome, time.Since(start))
	l.logger.Debug("admission check",
		zap.String("key", key),
		zap.String("outcome", outcome),
		zap.Int64("count", count),
		zap.Int64("remaining", remaining),
	)

	return remaining, nil
}

func validate(key string, spec WindowSpec) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	return spec.Validate()
}

// Compile-time check.
var _ Checker = (*SlidingWindowLimiter)(nil)
