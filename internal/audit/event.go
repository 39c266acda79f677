package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/serroba/credit-limiter/internal/ratelimit"
)

// TopicDecisions is the stream credit decisions are published to.
const TopicDecisions = "credit.decisions"

// Decision modes.
const (
	ModeCheck   = "check"
	ModeAcquire = "acquire"
)

// Decision represents one answered credit request.
type Decision struct {
	ID            string    `json:"id"`
	Key           string    `json:"key"`
	WindowSeconds int64     `json:"windowSeconds"`
	Limit         int64     `json:"limit"`
	Granted       bool      `json:"granted"`
	Remaining     int64     `json:"remaining"`
	Attempts      int       `json:"attempts"`
	Mode          string    `json:"mode"`
	DecidedAt     time.Time `json:"decidedAt"`
}

// NewDecision builds a decision with a fresh ID.
func NewDecision(
	mode, key string,
	spec ratelimit.WindowSpec,
	granted bool,
	remaining int64,
	attempts int,
	decidedAt time.Time,
) *Decision {
	return &Decision{
		ID:            uuid.NewString(),
		Key:           key,
		WindowSeconds: spec.WindowSeconds,
		Limit:         spec.Limit,
		Granted:       granted,
		Remaining:     remaining,
		Attempts:      attempts,
		Mode:          mode,
		DecidedAt:     decidedAt.UTC(),
	}
}
