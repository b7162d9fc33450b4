package goMagicLink

import (
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goMagicLink/internal/audit"
	"github.com/MrEthical07/goMagicLink/internal/ledger"
	"github.com/MrEthical07/goMagicLink/internal/rate"
	"github.com/MrEthical07/goMagicLink/internal/stores"
	"github.com/MrEthical07/goMagicLink/internal/sweep"
)

/*
====================================
RATE LIMIT RESULTS
====================================
*/

// RateLimitResult is returned by [Engine.CheckAndRecord] and
// [Engine.CheckRateLimit]. A denial is a normal result, not an error.
type RateLimitResult struct {
	Allowed bool
	Count   int
	Limit   int
	// RetryAfter is zero when Allowed is true.
	RetryAfter time.Duration
	// NextAllowedAt is the earliest instant a new request can be admitted.
	NextAllowedAt time.Time
	// ThrottledByIP is set when the per-address throttle denied the request
	// before the identity limiter ran. Count is zero in that case.
	ThrottledByIP bool
}

// RetryAfterMs returns RetryAfter in whole milliseconds.
func (r RateLimitResult) RetryAfterMs() int64 {
	return r.RetryAfter.Milliseconds()
}

// Err returns a *RateLimitedError for denied results and nil otherwise.
func (r RateLimitResult) Err() error {
	if r.Allowed {
		return nil
	}
	return &RateLimitedError{
		Count:      r.Count,
		Limit:      r.Limit,
		RetryAfter: r.RetryAfter,
		byIP:       r.ThrottledByIP,
	}
}

// RateLimitEntry defines a public type used by goMagicLink APIs.
type RateLimitEntry = stores.RateLimitEntry

// RateLimitStatus is the current window for one identity.
type RateLimitStatus = rate.IdentityStats

// RateLimitStats summarises the current window across identities.
type RateLimitStats = rate.GlobalStats

// IdentityCount defines a public type used by goMagicLink APIs.
type IdentityCount = rate.IdentityCount

/*
====================================
VALIDATION RESULTS
====================================
*/

// ValidationStatus is the verdict of [Engine.ValidateToken].
type ValidationStatus = ledger.Status

const (
	// StatusValid is an exported constant or variable used by the magic-link engine.
	StatusValid = ledger.StatusValid
	// StatusExpired is an exported constant or variable used by the magic-link engine.
	StatusExpired = ledger.StatusExpired
	// StatusInvalid is an exported constant or variable used by the magic-link engine.
	StatusInvalid = ledger.StatusInvalid
)

// InvalidReason explains a StatusInvalid verdict.
type InvalidReason = ledger.Reason

const (
	// ReasonBlacklisted is an exported constant or variable used by the magic-link engine.
	ReasonBlacklisted = ledger.ReasonBlacklisted
	// ReasonReused is an exported constant or variable used by the magic-link engine.
	ReasonReused = ledger.ReasonReused
	// ReasonAttemptsExceeded is an exported constant or variable used by the magic-link engine.
	ReasonAttemptsExceeded = ledger.ReasonAttemptsExceeded
	// ReasonMalformed is an exported constant or variable used by the magic-link engine.
	ReasonMalformed = ledger.ReasonMalformed
)

const (
	// BlacklistReasonAttemptsExceeded is an exported constant or variable used by the magic-link engine.
	BlacklistReasonAttemptsExceeded = ledger.BlacklistAttemptsExceeded
	// BlacklistReasonSecurityViolation is an exported constant or variable used by the magic-link engine.
	BlacklistReasonSecurityViolation = ledger.BlacklistSecurityViolation
)

// ValidationResult is returned by [Engine.ValidateToken].
type ValidationResult struct {
	Status ValidationStatus
	// Reason is set only for StatusInvalid.
	Reason      InvalidReason
	Attempts    int
	MaxAttempts int
	// Blacklisted is true when this call created the blacklist entry.
	Blacklisted bool
}

// Valid reports whether the token was accepted.
func (r ValidationResult) Valid() bool {
	return r.Status == StatusValid
}

// Err converts the verdict to an error: nil, ErrTokenExpired or a
// *InvalidTokenError.
func (r ValidationResult) Err() error {
	switch r.Status {
	case StatusValid:
		return nil
	case StatusExpired:
		return ErrTokenExpired
	default:
		return &InvalidTokenError{Reason: r.Reason}
	}
}

// TokenRecord defines a public type used by goMagicLink APIs.
type TokenRecord = stores.TokenRecord

// TokenStats summarises tokens created in a window.
type TokenStats = ledger.Stats

/*
====================================
AUDIT
====================================
*/

// AuditEvent defines a public type used by goMagicLink APIs.
type AuditEvent = internalaudit.Event

// AuditSink defines a public type used by goMagicLink APIs.
//
// Sinks receive events from the audit trail writer goroutine and must not block indefinitely.
type AuditSink = internalaudit.Sink

// AuditErrorHandler receives persistence failures from the audit store sink.
type AuditErrorHandler = internalaudit.ErrorHandler

// NoOpSink defines a public type used by goMagicLink APIs.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink defines a public type used by goMagicLink APIs.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink defines a public type used by goMagicLink APIs.
type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans an event out to several sinks.
type MultiSink = internalaudit.MultiSink

// NewChannelSink describes the newchannelsink operation and its observable behavior.
//
// NewChannelSink returns a sink that forwards events to a buffered channel.
// NewChannelSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink describes the newjsonwritersink operation and its observable behavior.
//
// NewJSONWriterSink returns a sink writing one JSON object per line to w.
// NewJSONWriterSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// AuditFilter selects a page of persisted audit events.
type AuditFilter = stores.AuditFilter

// AuditStats aggregates persisted events in a window.
type AuditStats = internalaudit.Stats

// AuditActionStats defines a public type used by goMagicLink APIs.
type AuditActionStats = internalaudit.ActionStats

/*
====================================
RETENTION
====================================
*/

// SweepReport counts rows removed by [Engine.Sweep].
type SweepReport = sweep.Report
