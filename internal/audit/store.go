package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/serroba/credit-limiter/internal/messaging"
)

// Store defines the interface for persisting credit decisions.
type Store interface {
	SaveDecision(ctx context.Context, decision *Decision) error
}

// Reader reads persisted decisions back.
type Reader interface {
	CountByKey(ctx context.Context, key string) (int64, error)
	Since(ctx context.Context, key string, t time.Time) ([]*Decision, error)
}

// NewHandler returns a consumer handler persisting each decision to store.
func NewHandler(store Store) messaging.Handler[Decision] {
	return func(ctx context.Context, decision *Decision) error {
		if err := store.SaveDecision(ctx, decision); err != nil {
			return fmt.Errorf("save decision %s: %w", decision.ID, err)
		}

		return nil
	}
}
