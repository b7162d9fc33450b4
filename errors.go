package goMagicLink

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/limiters"
	"github.com/MrEthical07/goMagicLink/internal/rate"
	"github.com/MrEthical07/goMagicLink/internal/stores"
)

var (
	// ErrStoreUnavailable is an exported constant or variable used by the magic-link engine.
	ErrStoreUnavailable = stores.ErrUnavailable
	// ErrTokenNotFound is an exported constant or variable used by the magic-link engine.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired is an exported constant or variable used by the magic-link engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is an exported constant or variable used by the magic-link engine.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrRateLimited is an exported constant or variable used by the magic-link engine.
	ErrRateLimited = rate.ErrRateLimited
	// ErrIPRateLimited is an exported constant or variable used by the magic-link engine.
	ErrIPRateLimited = limiters.ErrIPRateLimited
	// ErrInvalidIdentity is an exported constant or variable used by the magic-link engine.
	ErrInvalidIdentity = errors.New("identity is required")
	// ErrInvalidTokenID is an exported constant or variable used by the magic-link engine.
	ErrInvalidTokenID = errors.New("token id is required")
	// ErrEngineNotReady is an exported constant or variable used by the magic-link engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitedError is returned by [RateLimitResult.Err] for denied requests.
// It matches ErrRateLimited (or ErrIPRateLimited) under errors.Is.
type RateLimitedError struct {
	Count      int
	Limit      int
	RetryAfter time.Duration
	byIP       bool
}

func (e *RateLimitedError) Error() string {
	if e.byIP {
		return fmt.Sprintf("%v: retry after %s", ErrIPRateLimited, e.RetryAfter)
	}
	return fmt.Sprintf("%v: %d/%d requests, retry after %s", ErrRateLimited, e.Count, e.Limit, e.RetryAfter)
}

// Is reports whether target is the matching sentinel.
func (e *RateLimitedError) Is(target error) bool {
	if e.byIP {
		return target == ErrIPRateLimited || target == ErrRateLimited
	}
	return target == ErrRateLimited
}

// InvalidTokenError is returned by [ValidationResult.Err] for rejected
// tokens. It matches ErrTokenInvalid under errors.Is.
type InvalidTokenError struct {
	Reason InvalidReason
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("%v: %s", ErrTokenInvalid, e.Reason)
}

// Is reports whether target is ErrTokenInvalid.
func (e *InvalidTokenError) Is(target error) bool {
	return target == ErrTokenInvalid
}
