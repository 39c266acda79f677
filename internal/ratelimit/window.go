package ratelimit

import (
	"fmt"
	"math"
	"time"
	"unicode"
)

// MaxKeyLength bounds the size of a rate key in bytes.
const MaxKeyLength = 512

// MaxWindowSeconds bounds the window (about 146 years) so that a current
// Unix time in microseconds plus the window still fits an int64.
const MaxWindowSeconds = int64(math.MaxInt64/time.Second) / 2

const microsPerSecond = int64(time.Second / time.Microsecond)

// WindowSpec describes a sliding window: at most Limit credits within any
// WindowSeconds long interval.
type WindowSpec struct {
	WindowSeconds int64 `json:"windowSeconds"`
	Limit         int64 `json:"limit"`
}

// Window returns the window length as a duration.
func (s WindowSpec) Window() time.Duration {
	return time.Duration(s.WindowSeconds) * time.Second
}

// ClearBefore returns the score at or below which entries fall out of the window.
func (s WindowSpec) ClearBefore(nowMicros int64) int64 {
	return nowMicros - s.WindowSeconds*microsPerSecond
}

// ExpiresAt returns when a window touched at nowMicros goes idle.
func (s WindowSpec) ExpiresAt(nowMicros int64) int64 {
	return nowMicros + s.WindowSeconds*microsPerSecond
}

// Validate reports ErrInvalidParameters for a non-positive or oversized
// window and a non-positive limit.
func (s WindowSpec) Validate() error {
	if s.WindowSeconds <= 0 {
		return fmt.Errorf("%w: window seconds must be positive, got %d", ErrInvalidParameters, s.WindowSeconds)
	}

	if s.WindowSeconds > MaxWindowSeconds {
		return fmt.Errorf("%w: window seconds must be at most %d, got %d",
			ErrInvalidParameters, MaxWindowSeconds, s.WindowSeconds)
	}

	if s.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidParameters, s.Limit)
	}

	return nil
}

// ValidateKey rejects empty, oversized and non-printable rate keys.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key must not be empty", ErrInvalidParameters)
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key exceeds %d bytes", ErrInvalidParameters, MaxKeyLength)
	}

	for _, r := range key {
		if unicode.IsControl(r) || unicode.IsSpace(r) || r == unicode.ReplacementChar {
			return fmt.Errorf("%w: key contains invalid character %q", ErrInvalidParameters, r)
		}
	}

	return nil
}

// Entry is one admitted-request marker. TimestampMicros orders and prunes the
// window; Member keeps entries with equal timestamps distinct.
type Entry struct {
	TimestampMicros int64
	Member          string
}
