package audit

import (
	"context"

	"github.com/serroba/credit-limiter/internal/messaging"
	"go.uber.org/zap"
)

// Recorder publishes decisions. Failures are logged and never surface to callers.
type Recorder struct {
	publish messaging.Publish[Decision]
	logger  *zap.Logger
}

// NewRecorder creates a recorder over a typed publish function.
func NewRecorder(publish messaging.Publish[Decision], logger *zap.Logger) *Recorder {
	return &Recorder{publish: publish, logger: logger}
}

// Record publishes the decision.
func (r *Recorder) Record(ctx context.Context, decision *Decision) {
	if err := r.publish(ctx, decision); err != nil {
		r.logger.Warn("failed to publish credit decision",
			zap.String("id", decision.ID),
			zap.String("key", decision.Key),
			zap.Error(err),
		)
	}
}
