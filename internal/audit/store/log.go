package store

import (
	"context"

	"github.com/serroba/credit-limiter/internal/audit"
	"go.uber.org/zap"
)

// Log is an audit.Store that writes decisions to the log only.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a new logging decision store.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) SaveDecision(_ context.Context, decision *audit.Decision) error {
	l.logger.Info("credit decision received",
		zap.String("id", decision.ID),
		zap.String("key", decision.Key),
		zap.String("mode", decision.Mode),
		zap.Bool("granted", decision.Granted),
		zap.Int64("remaining", decision.Remaining),
		zap.Int("attempts", decision.Attempts),
		zap.Time("decidedAt", decision.DecidedAt),
	)

	return nil
}

// Compile-time check.
var _ audit.Store = (*Log)(nil)
