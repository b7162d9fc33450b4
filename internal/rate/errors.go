package rate

import "errors"

var (
	// ErrRateLimited is the sentinel every identity-limit denial matches.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmptyIdentity is returned when a request carries no identity.
	ErrEmptyIdentity = errors.New("identity is required")
)
