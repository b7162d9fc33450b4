package stores

import (
	"context"
	"time"
)

// RateLimitStore persists RateLimitEntry rows.
type RateLimitStore interface {
	// RecordRequest counts entries for entry.Identity with timestamp >= since
	// and appends entry only when that count is below limit.
	RecordRequest(ctx context.Context, entry RateLimitEntry, since time.Time, limit int) (RateLimitOutcome, error)
	// RateLimitWindow returns entries for identity with timestamp >= since, oldest first.
	RateLimitWindow(ctx context.Context, identity string, since time.Time) ([]RateLimitEntry, error)
	// RateLimitSince returns all entries with timestamp >= since, oldest first.
	RateLimitSince(ctx context.Context, since time.Time) ([]RateLimitEntry, error)
	// DeleteRateLimitBefore removes up to batch entries with timestamp < cutoff.
	DeleteRateLimitBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error)
}

// TokenStore persists TokenRecord rows keyed by token id.
type TokenStore interface {
	// EnsureToken inserts rec when no record exists for rec.TokenID and
	// returns the stored record; created reports whether rec was inserted.
	EnsureToken(ctx context.Context, rec TokenRecord) (stored TokenRecord, created bool, err error)
	GetToken(ctx context.Context, tokenID string) (TokenRecord, error)
	// IncrementAttempt adds one attempt iff the token is unused and
	// attempts < maxAttempts. It returns ErrNotFound, ErrTokenUsed or
	// ErrAttemptsExhausted without mutating when a condition fails.
	IncrementAttempt(ctx context.Context, tokenID string, maxAttempts int, now time.Time) (TokenRecord, error)
	// MarkTokenUsed sets used and, on the first call only, usedAt.
	MarkTokenUsed(ctx context.Context, tokenID string, now time.Time) (TokenRecord, error)
	// TokensSince returns records created at or after since.
	TokensSince(ctx context.Context, since time.Time) ([]TokenRecord, error)
	// DeleteTokensBefore removes up to batch records created before cutoff.
	DeleteTokensBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error)
}

// BlacklistStore persists BlacklistEntry rows keyed by token id.
type BlacklistStore interface {
	GetBlacklist(ctx context.Context, tokenID string) (BlacklistEntry, error)
	// InsertBlacklist writes entry unless one exists for entry.TokenID.
	InsertBlacklist(ctx context.Context, entry BlacklistEntry) (inserted bool, err error)
	// CountActiveBlacklist counts entries with expiresAt >= now.
	CountActiveBlacklist(ctx context.Context, now time.Time) (int64, error)
	// DeleteExpiredBlacklist removes up to batch entries with expiresAt < now.
	DeleteExpiredBlacklist(ctx context.Context, now time.Time, batch int) (int64, error)
}

// AuditStore persists AuditEvent rows.
type AuditStore interface {
	AppendAudit(ctx context.Context, event AuditEvent) error
	// QueryAudit returns matching events newest first, paged by filter.Limit/Offset.
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
	// AuditSince returns events with timestamp >= since, optionally restricted to action.
	AuditSince(ctx context.Context, since time.Time, action string) ([]AuditEvent, error)
	// DeleteAuditBefore removes up to batch events with timestamp < cutoff.
	DeleteAuditBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error)
}

// Store is the full backend surface.
type Store interface {
	RateLimitStore
	TokenStore
	BlacklistStore
	AuditStore
	Ping(ctx context.Context) error
}
