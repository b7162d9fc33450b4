package rate

import (
	"context"
	"sort"
	"time"

	"github.com/MrEthical07/goMagicLink/internal"
	"github.com/MrEthical07/goMagicLink/internal/stores"
)

const (
	// DefaultRequestKind tags entries written by CheckAndRecord.
	DefaultRequestKind = "magic_link_request"

	unknownValue = "unknown"
	topN         = 10
)

// Config holds rate limiter tuning parameters.
type Config struct {
	Limit       int
	Window      time.Duration
	RequestKind string
}

// Request describes one link request.
type Request struct {
	Identity  string
	IPAddress string
	UserAgent string
	RequestID string
}

// Result is the outcome of a rate-limit decision.
type Result struct {
	Allowed bool
	Count   int
	Limit   int
	// RetryAfter is zero when Allowed is true.
	RetryAfter time.Duration
	// Oldest is the earliest in-window timestamp; zero for an empty window.
	Oldest time.Time
}

// RetryAfterMs returns RetryAfter in whole milliseconds.
func (r Result) RetryAfterMs() int64 {
	return r.RetryAfter.Milliseconds()
}

// IdentityStats describes the current window for one identity.
type IdentityStats struct {
	Identity     string
	RequestCount int
	Limit        int
	Limited      bool
	WindowStart  time.Time
	Entries      []stores.RateLimitEntry
}

// IdentityCount pairs an identity with its in-window request count.
type IdentityCount struct {
	Identity string
	Count    int
}

// GlobalStats summarises the current window across identities.
type GlobalStats struct {
	TotalRequests    int
	UniqueIdentities int
	TopIdentities    []IdentityCount
	WindowStart      time.Time
}

// Limiter enforces a per-identity sliding window over a RateLimitStore.
type Limiter struct {
	store  stores.RateLimitStore
	config Config
}

// New creates a [Limiter] backed by store.
func New(store stores.RateLimitStore, cfg Config) *Limiter {
	if cfg.RequestKind == "" {
		cfg.RequestKind = DefaultRequestKind
	}
	return &Limiter{
		store:  store,
		config: cfg,
	}
}

// Config returns the limiter configuration.
func (l *Limiter) Config() Config {
	return l.config
}

// CheckAndRecord admits req when the identity is under its limit and records
// it. Denials are reported through Result, not as errors.
func (l *Limiter) CheckAndRecord(ctx context.Context, req Request, now time.Time) (Result, error) {
	if req.Identity == "" {
		return Result{}, ErrEmptyIdentity
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = internal.NewID()
	}

	out, err := l.store.RecordRequest(ctx, stores.RateLimitEntry{
		ID:          internal.NewID(),
		Identity:    req.Identity,
		Timestamp:   now,
		RequestKind: l.config.RequestKind,
		IPAddress:   orUnknown(req.IPAddress),
		UserAgent:   orUnknown(req.UserAgent),
		RequestID:   requestID,
	}, l.windowStart(now), l.config.Limit)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Allowed: out.Recorded,
		Count:   out.Count,
		Limit:   l.config.Limit,
		Oldest:  out.Oldest,
	}
	if !res.Allowed {
		res.RetryAfter = l.retryAfter(out.Oldest, now)
	}
	return res, nil
}

// Check reports what CheckAndRecord would decide without recording.
func (l *Limiter) Check(ctx context.Context, identity string, now time.Time) (Result, error) {
	if identity == "" {
		return Result{}, ErrEmptyIdentity
	}

	entries, err := l.store.RateLimitWindow(ctx, identity, l.windowStart(now))
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Allowed: len(entries) < l.config.Limit,
		Count:   len(entries),
		Limit:   l.config.Limit,
	}
	if len(entries) > 0 {
		res.Oldest = entries[0].Timestamp
	}
	if !res.Allowed {
		res.RetryAfter = l.retryAfter(res.Oldest, now)
	}
	return res, nil
}

// IdentityStats returns the in-window entries for identity.
func (l *Limiter) IdentityStats(ctx context.Context, identity string, now time.Time) (IdentityStats, error) {
	start := l.windowStart(now)
	entries, err := l.store.RateLimitWindow(ctx, identity, start)
	if err != nil {
		return IdentityStats{}, err
	}

	return IdentityStats{
		Identity:     identity,
		RequestCount: len(entries),
		Limit:        l.config.Limit,
		Limited:      len(entries) >= l.config.Limit,
		WindowStart:  start,
		Entries:      entries,
	}, nil
}

// GlobalStats aggregates the current window across all identities. Top
// identities are ordered by count descending, then identity ascending.
func (l *Limiter) GlobalStats(ctx context.Context, now time.Time) (GlobalStats, error) {
	start := l.windowStart(now)
	entries, err := l.store.RateLimitSince(ctx, start)
	if err != nil {
		return GlobalStats{}, err
	}

	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Identity]++
	}

	top := make([]IdentityCount, 0, len(counts))
	for identity, n := range counts {
		top = append(top, IdentityCount{Identity: identity, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Identity < top[j].Identity
	})
	if len(top) > topN {
		top = top[:topN]
	}

	return GlobalStats{
		TotalRequests:    len(entries),
		UniqueIdentities: len(counts),
		TopIdentities:    top,
		WindowStart:      start,
	}, nil
}

func (l *Limiter) windowStart(now time.Time) time.Time {
	return now.Add(-l.config.Window)
}

func (l *Limiter) retryAfter(oldest, now time.Time) time.Duration {
	if oldest.IsZero() {
		return l.config.Window
	}
	d := oldest.Add(l.config.Window).Sub(now)
	if d < time.Millisecond {
		// The oldest entry sits on the inclusive boundary.
		d = time.Millisecond
	}
	return d
}

func orUnknown(s string) string {
	if s == "" {
		return unknownValue
	}
	return s
}
