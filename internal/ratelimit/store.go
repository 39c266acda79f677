package ratelimit

import (
	"context"
)

// Store defines the interface for sliding window storage.
type Store interface {
	// Admit runs one indivisible admission sequence for key: drop entries
	// scored at or below spec.ClearBefore(entry.TimestampMicros), count the
	// rest, insert entry when that count is below spec.Limit, and refresh the
	// key's expiry to spec.WindowSeconds. It returns the count observed
	// before the insert.
	Admit(ctx context.Context, key string, entry Entry, spec WindowSpec) (count int64, err error)
}
