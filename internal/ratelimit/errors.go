package ratelimit

import "errors"

var (
	// ErrInvalidParameters is returned for a malformed key or a non-positive window or limit.
	ErrInvalidParameters = errors.New("invalid rate limit parameters")

	// ErrStoreUnavailable wraps any failure talking to the window store.
	ErrStoreUnavailable = errors.New("window store unavailable")
)
