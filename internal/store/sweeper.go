package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweepable is a window store that needs help expiring idle keys.
type Sweepable interface {
	Sweep(ctx context.Context, nowMicros int64) (int64, error)
}

// Sweeper runs Sweep on a cron schedule. Stores with native TTLs do not need one.
type Sweeper struct {
	target   Sweepable
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a sweeper for target. Schedule accepts standard cron
// expressions and descriptors such as "@every 1m".
func NewSweeper(target Sweepable, schedule string, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		target:   target,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Start schedules the sweep. An empty schedule disables it.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping sweeper")

		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("window sweeper started", zap.String("schedule", s.schedule))

	return nil
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) {
	removed, err := s.target.Sweep(ctx, s.now().UnixMicro())
	if err != nil {
		s.logger.Error("window sweep failed", zap.Error(err))

		return
	}

	if removed > 0 {
		s.logger.Info("window sweep completed", zap.Int64("removed", removed))
	}
}

// IsRunning reports whether the schedule is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Shutdown stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
	}

	return nil
}
