package audit

import (
	"context"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
)

// LogConfig bounds query pages.
type LogConfig struct {
	DefaultQueryLimit int
	MaxQueryLimit     int
}

// ActionStats counts events for one action.
type ActionStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Stats aggregates events in a window.
type Stats struct {
	TotalEvents      int                    `json:"total_events"`
	SuccessfulEvents int                    `json:"successful_events"`
	FailedEvents     int                    `json:"failed_events"`
	UniqueIdentities int                    `json:"unique_identities"`
	UniqueUsers      int                    `json:"unique_users"`
	Actions          map[string]ActionStats `json:"actions"`
	WindowStart      time.Time              `json:"window_start"`
}

// Log reads persisted audit events.
type Log struct {
	store  stores.AuditStore
	config LogConfig
}

// NewLog creates a [Log] over store.
func NewLog(store stores.AuditStore, cfg LogConfig) *Log {
	if cfg.DefaultQueryLimit <= 0 {
		cfg.DefaultQueryLimit = 50
	}
	if cfg.MaxQueryLimit < cfg.DefaultQueryLimit {
		cfg.MaxQueryLimit = cfg.DefaultQueryLimit
	}
	return &Log{store: store, config: cfg}
}

// Query returns a page of events, newest first. A non-positive limit
// selects the default; limits above the maximum are clamped.
func (l *Log) Query(ctx context.Context, filter stores.AuditFilter) ([]Event, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = l.config.DefaultQueryLimit
	case filter.Limit > l.config.MaxQueryLimit:
		filter.Limit = l.config.MaxQueryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	recs, err := l.store.QueryAudit(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(recs))
	for _, r := range recs {
		out = append(out, FromRecord(r))
	}
	return out, nil
}

// Stats aggregates events with timestamp in [now-window, now], optionally
// restricted to action.
func (l *Log) Stats(ctx context.Context, window time.Duration, action string, now time.Time) (Stats, error) {
	start := now.Add(-window)
	recs, err := l.store.AuditSince(ctx, start, action)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		Actions:     make(map[string]ActionStats),
		WindowStart: start,
	}
	identities := make(map[string]struct{})
	users := make(map[string]struct{})
	for _, r := range recs {
		if r.Timestamp.After(now) {
			continue
		}
		st.TotalEvents++
		a := st.Actions[r.Action]
		a.Total++
		if r.Success {
			st.SuccessfulEvents++
			a.Successful++
		} else {
			st.FailedEvents++
			a.Failed++
		}
		st.Actions[r.Action] = a

		if r.Identity != "" {
			identities[r.Identity] = struct{}{}
		}
		if r.UserID != "" {
			users[r.UserID] = struct{}{}
		}
	}
	st.UniqueIdentities = len(identities)
	st.UniqueUsers = len(users)
	return st, nil
}
