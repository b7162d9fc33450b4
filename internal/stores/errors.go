package stores

import "errors"

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrTokenUsed is returned by IncrementAttempt when the token was already marked used.
	ErrTokenUsed = errors.New("token already used")
	// ErrAttemptsExhausted is returned by IncrementAttempt when attempts already reached the cap.
	ErrAttemptsExhausted = errors.New("token attempts exhausted")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("store unavailable")
)
