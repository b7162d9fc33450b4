package stores

import "time"

// RateLimitEntry is one accepted link request.
type RateLimitEntry struct {
	ID          string
	Identity    string
	Timestamp   time.Time
	RequestKind string
	IPAddress   string
	UserAgent   string
	RequestID   string
}

// RateLimitOutcome is the result of an atomic check-and-record.
//
// Count is the number of entries inside the window after the call (including
// the new entry when Recorded is true). Oldest is the earliest in-window
// timestamp and is zero when the window was empty.
type RateLimitOutcome struct {
	Recorded bool
	Count    int
	Oldest   time.Time
}

// TokenRecord tracks presentations of one token.
type TokenRecord struct {
	TokenID       string
	Identity      string
	ActionKind    string
	CreatedAt     time.Time
	Attempts      int
	LastAttemptAt time.Time
	Used          bool
	UsedAt        time.Time
	IPAddress     string
	UserAgent     string
}

// BlacklistEntry permanently rejects a token until ExpiresAt.
type BlacklistEntry struct {
	TokenID       string
	Identity      string
	Reason        string
	ActionKind    string
	Attempts      int
	BlacklistedAt time.Time
	ExpiresAt     time.Time
}

// AuditEvent is an immutable audit record.
type AuditEvent struct {
	ID          string
	Timestamp   time.Time
	Identity    string
	UserID      string
	Action      string
	Success     bool
	ErrorDetail string
	IPAddress   string
	UserAgent   string
	SessionID   string
	TokenID     string
	RequestID   string
	Metadata    map[string]string
}

// AuditFilter selects a page of audit events. Empty fields do not filter.
// Since/Until bound the timestamp inclusively when non-zero.
type AuditFilter struct {
	Identity string
	UserID   string
	Action   string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// Matches reports whether ev satisfies the non-paging parts of f.
func (f AuditFilter) Matches(ev AuditEvent) bool {
	if f.Identity != "" && ev.Identity != f.Identity {
		return false
	}
	if f.UserID != "" && ev.UserID != f.UserID {
		return false
	}
	if f.Action != "" && ev.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ev.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// UnixMilli converts t to epoch milliseconds, mapping the zero time to 0.
func UnixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMilli is the inverse of UnixMilli.
func FromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
