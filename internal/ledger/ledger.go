package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
)

// Reason explains why a token was rejected.
type Reason string

const (
	ReasonBlacklisted      Reason = "blacklisted"
	ReasonReused           Reason = "reused"
	ReasonAttemptsExceeded Reason = "attempts_exceeded"
	ReasonMalformed        Reason = "malformed"
)

// Blacklist reasons written by the ledger.
const (
	BlacklistAttemptsExceeded  = "attempts_exceeded"
	BlacklistSecurityViolation = "security_violation"
)

// Status is the validation verdict.
type Status int

const (
	StatusValid Status = iota
	StatusExpired
	StatusInvalid
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	case StatusInvalid:
		return "invalid"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is the result of Validate.
type Outcome struct {
	Status   Status
	Reason   Reason
	Attempts int
	// Blacklisted is true when this call inserted the blacklist entry.
	Blacklisted bool
	Record      stores.TokenRecord
}

// Presentation is one attempt to redeem a token.
type Presentation struct {
	TokenID   string
	Identity  string
	Action    string
	IPAddress string
	UserAgent string
}

// Config holds ledger policy.
type Config struct {
	MaxAttempts        int
	Expiry             time.Duration
	ExpiringActions    []string
	BlacklistRetention time.Duration
	MinTokenLength     int
}

// Store is the persistence surface the ledger needs.
type Store interface {
	stores.TokenStore
	stores.BlacklistStore
}

// Stats summarises tokens created in a window.
type Stats struct {
	TotalTokens       int
	UsedTokens        int
	ExpiredTokens     int
	BlacklistedTokens int64
	AverageAttempts   float64
	WindowStart       time.Time
}

var (
	// ErrNotFound is returned by MarkUsed for untracked tokens.
	ErrNotFound = errors.New("token not found")
	// ErrEmptyTokenID is returned when a token id is missing.
	ErrEmptyTokenID = errors.New("token id is required")
)

const (
	unknownValue = "unknown"
	maxRaceRetry = 3
)

// Ledger enforces attempt, reuse and expiry policy over a Store.
type Ledger struct {
	store    Store
	config   Config
	expiring map[string]struct{}
}

// New creates a [Ledger] backed by store.
func New(store Store, cfg Config) *Ledger {
	expiring := make(map[string]struct{}, len(cfg.ExpiringActions))
	for _, a := range cfg.ExpiringActions {
		expiring[a] = struct{}{}
	}
	return &Ledger{
		store:    store,
		config:   cfg,
		expiring: expiring,
	}
}

// Ensure creates the token record when absent. It is a no-op otherwise.
func (l *Ledger) Ensure(ctx context.Context, p Presentation, now time.Time) (stores.TokenRecord, bool, error) {
	if p.TokenID == "" {
		return stores.TokenRecord{}, false, ErrEmptyTokenID
	}
	return l.store.EnsureToken(ctx, stores.TokenRecord{
		TokenID:       p.TokenID,
		Identity:      p.Identity,
		ActionKind:    p.Action,
		CreatedAt:     now,
		LastAttemptAt: now,
		IPAddress:     orUnknown(p.IPAddress),
		UserAgent:     orUnknown(p.UserAgent),
	})
}

// Validate records one presentation of p.TokenID and returns the verdict.
// Only store failures are returned as errors.
func (l *Ledger) Validate(ctx context.Context, p Presentation, now time.Time) (Outcome, error) {
	if p.TokenID == "" {
		return Outcome{}, ErrEmptyTokenID
	}
	if l.config.MinTokenLength > 0 && len(p.TokenID) < l.config.MinTokenLength {
		return Outcome{Status: StatusInvalid, Reason: ReasonMalformed}, nil
	}

	if _, err := l.store.GetBlacklist(ctx, p.TokenID); err == nil {
		return Outcome{Status: StatusInvalid, Reason: ReasonBlacklisted}, nil
	} else if !errors.Is(err, stores.ErrNotFound) {
		return Outcome{}, err
	}

	rec, _, err := l.Ensure(ctx, p, now)
	if err != nil {
		return Outcome{}, err
	}

	for i := 0; ; i++ {
		if rec.Used {
			return Outcome{Status: StatusInvalid, Reason: ReasonReused, Attempts: rec.Attempts, Record: rec}, nil
		}
		if rec.Attempts >= l.config.MaxAttempts {
			return l.exceed(ctx, rec, now)
		}
		if l.expired(rec, p.Action, now) {
			return Outcome{Status: StatusExpired, Attempts: rec.Attempts, Record: rec}, nil
		}

		updated, err := l.store.IncrementAttempt(ctx, p.TokenID, l.config.MaxAttempts, now)
		switch {
		case err == nil:
			return Outcome{Status: StatusValid, Attempts: updated.Attempts, Record: updated}, nil
		case errors.Is(err, stores.ErrTokenUsed):
			rec.Used = true
			continue
		case errors.Is(err, stores.ErrAttemptsExhausted):
			if rec.Attempts < l.config.MaxAttempts {
				rec.Attempts = l.config.MaxAttempts
			}
			continue
		case errors.Is(err, stores.ErrNotFound) && i < maxRaceRetry:
			// Swept between ensure and increment.
			rec, _, err = l.Ensure(ctx, p, now)
			if err != nil {
				return Outcome{}, err
			}
			continue
		default:
			return Outcome{}, err
		}
	}
}

// MarkUsed seals tokenID. Repeated calls keep the first usedAt.
func (l *Ledger) MarkUsed(ctx context.Context, tokenID string, now time.Time) (stores.TokenRecord, error) {
	if tokenID == "" {
		return stores.TokenRecord{}, ErrEmptyTokenID
	}
	rec, err := l.store.MarkTokenUsed(ctx, tokenID, now)
	if errors.Is(err, stores.ErrNotFound) {
		return stores.TokenRecord{}, ErrNotFound
	}
	return rec, err
}

// Blacklist inserts an entry for tokenID unless one exists. It reports
// whether this call inserted it.
func (l *Ledger) Blacklist(ctx context.Context, tokenID, identity, reason string, now time.Time) (bool, error) {
	if tokenID == "" {
		return false, ErrEmptyTokenID
	}
	entry := stores.BlacklistEntry{
		TokenID:       tokenID,
		Identity:      identity,
		Reason:        reason,
		BlacklistedAt: now,
		ExpiresAt:     now.Add(l.config.BlacklistRetention),
	}
	if rec, err := l.store.GetToken(ctx, tokenID); err == nil {
		entry.ActionKind = rec.ActionKind
		entry.Attempts = rec.Attempts
		if entry.Identity == "" {
			entry.Identity = rec.Identity
		}
	} else if !errors.Is(err, stores.ErrNotFound) {
		return false, err
	}
	return l.store.InsertBlacklist(ctx, entry)
}

// Stats summarises records created in [now-window, now].
func (l *Ledger) Stats(ctx context.Context, window time.Duration, now time.Time) (Stats, error) {
	start := now.Add(-window)
	recs, err := l.store.TokensSince(ctx, start)
	if err != nil {
		return Stats{}, err
	}
	active, err := l.store.CountActiveBlacklist(ctx, now)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		TotalTokens:       len(recs),
		BlacklistedTokens: active,
		WindowStart:       start,
	}
	attempts := 0
	for _, rec := range recs {
		attempts += rec.Attempts
		if rec.Used {
			st.UsedTokens++
		} else if now.Sub(rec.CreatedAt) > l.config.Expiry {
			st.ExpiredTokens++
		}
	}
	if len(recs) > 0 {
		st.AverageAttempts = float64(attempts) / float64(len(recs))
	}
	return st, nil
}

func (l *Ledger) exceed(ctx context.Context, rec stores.TokenRecord, now time.Time) (Outcome, error) {
	inserted, err := l.store.InsertBlacklist(ctx, stores.BlacklistEntry{
		TokenID:       rec.TokenID,
		Identity:      rec.Identity,
		Reason:        BlacklistAttemptsExceeded,
		ActionKind:    rec.ActionKind,
		Attempts:      rec.Attempts,
		BlacklistedAt: now,
		ExpiresAt:     now.Add(l.config.BlacklistRetention),
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Status:      StatusInvalid,
		Reason:      ReasonAttemptsExceeded,
		Attempts:    rec.Attempts,
		Blacklisted: inserted,
		Record:      rec,
	}, nil
}

func (l *Ledger) expired(rec stores.TokenRecord, action string, now time.Time) bool {
	if _, ok := l.expiring[action]; !ok {
		return false
	}
	return now.Sub(rec.CreatedAt) > l.config.Expiry
}

func orUnknown(s string) string {
	if s == "" {
		return unknownValue
	}
	return s
}
