package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
	"github.com/redis/go-redis/v9"
)

type auditWire struct {
	ID          string            `json:"id"`
	Timestamp   int64             `json:"ts"`
	Identity    string            `json:"identity,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	Action      string            `json:"action"`
	Success     bool              `json:"success"`
	ErrorDetail string            `json:"error,omitempty"`
	IPAddress   string            `json:"ip,omitempty"`
	UserAgent   string            `json:"ua,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	TokenID     string            `json:"token_id,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func encodeAuditEvent(ev stores.AuditEvent) (string, error) {
	data, err := json.Marshal(auditWire{
		ID:          ev.ID,
		Timestamp:   stores.UnixMilli(ev.Timestamp),
		Identity:    ev.Identity,
		UserID:      ev.UserID,
		Action:      ev.Action,
		Success:     ev.Success,
		ErrorDetail: ev.ErrorDetail,
		IPAddress:   ev.IPAddress,
		UserAgent:   ev.UserAgent,
		SessionID:   ev.SessionID,
		TokenID:     ev.TokenID,
		RequestID:   ev.RequestID,
		Metadata:    ev.Metadata,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeAuditEvent(data string) (stores.AuditEvent, error) {
	var w auditWire
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return stores.AuditEvent{}, err
	}
	return stores.AuditEvent{
		ID:          w.ID,
		Timestamp:   stores.FromUnixMilli(w.Timestamp),
		Identity:    w.Identity,
		UserID:      w.UserID,
		Action:      w.Action,
		Success:     w.Success,
		ErrorDetail: w.ErrorDetail,
		IPAddress:   w.IPAddress,
		UserAgent:   w.UserAgent,
		SessionID:   w.SessionID,
		TokenID:     w.TokenID,
		RequestID:   w.RequestID,
		Metadata:    w.Metadata,
	}, nil
}

// AppendAudit implements stores.AuditStore.
func (s *Store) AppendAudit(ctx context.Context, ev stores.AuditEvent) error {
	encoded, err := encodeAuditEvent(ev)
	if err != nil {
		return err
	}

	score := float64(stores.UnixMilli(ev.Timestamp))
	member := redis.Z{Score: score, Member: ev.ID}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.auditEventKey(ev.ID),
			"identity", ev.Identity, "user", ev.UserID, "action", ev.Action, "data", encoded)
		pipe.ZAdd(ctx, s.auditIndexKey(), member)
		if ev.Identity != "" {
			pipe.ZAdd(ctx, s.auditIdentityKey(ev.Identity), member)
		}
		if ev.UserID != "" {
			pipe.ZAdd(ctx, s.auditUserKey(ev.UserID), member)
		}
		if ev.Action != "" {
			pipe.ZAdd(ctx, s.auditActionKey(ev.Action), member)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// QueryAudit implements stores.AuditStore.
func (s *Store) QueryAudit(ctx context.Context, filter stores.AuditFilter) ([]stores.AuditEvent, error) {
	index := s.auditIndexKey()
	residual := false
	switch {
	case filter.Identity != "":
		index = s.auditIdentityKey(filter.Identity)
		residual = filter.UserID != "" || filter.Action != ""
	case filter.UserID != "":
		index = s.auditUserKey(filter.UserID)
		residual = filter.Action != ""
	case filter.Action != "":
		index = s.auditActionKey(filter.Action)
	}

	by := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !filter.Since.IsZero() {
		by.Min = msString(stores.UnixMilli(filter.Since))
	}
	if !filter.Until.IsZero() {
		by.Max = msString(stores.UnixMilli(filter.Until))
	}
	if !residual {
		by.Offset = int64(filter.Offset)
		by.Count = int64(filter.Limit)
		if filter.Limit <= 0 && filter.Offset > 0 {
			by.Count = -1
		}
	}

	ids, err := s.redis.ZRevRangeByScore(ctx, index, by).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	events, err := s.loadAudit(ctx, ids)
	if err != nil {
		return nil, err
	}
	if !residual {
		return events, nil
	}

	matched := events[:0]
	for _, ev := range events {
		if filter.Matches(ev) {
			matched = append(matched, ev)
		}
	}
	return page(matched, filter.Offset, filter.Limit), nil
}

// AuditSince implements stores.AuditStore.
func (s *Store) AuditSince(ctx context.Context, since time.Time, action string) ([]stores.AuditEvent, error) {
	index := s.auditIndexKey()
	if action != "" {
		index = s.auditActionKey(action)
	}

	ids, err := s.redis.ZRangeByScore(ctx, index, &redis.ZRangeBy{
		Min: msString(stores.UnixMilli(since)),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return s.loadAudit(ctx, ids)
}

// DeleteAuditBefore implements stores.AuditStore.
func (s *Store) DeleteAuditBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error) {
	return s.sweepIndex(ctx, s.auditIndexKey(), cutoff, batch, 4, s.auditSweepKeys)
}

// auditSweepKeys groups each event hash with its identity, user and action
// zsets. Absent references fall back to the global index.
func (s *Store) auditSweepKeys(ctx context.Context, ids []string) ([][]string, error) {
	cmds := make([]*redis.SliceCmd, len(ids))
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HMGet(ctx, s.auditEventKey(id), "identity", "user", "action")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	ref := func(vals []interface{}, i int, key func(string) string) string {
		if i < len(vals) {
			if v, ok := vals[i].(string); ok && v != "" {
				return key(v)
			}
		}
		return s.auditIndexKey()
	}

	out := make([][]string, len(ids))
	for i, id := range ids {
		vals, _ := cmds[i].Result()
		out[i] = []string{
			s.auditEventKey(id),
			ref(vals, 0, s.auditIdentityKey),
			ref(vals, 1, s.auditUserKey),
			ref(vals, 2, s.auditActionKey),
		}
	}
	return out, nil
}

func (s *Store) loadAudit(ctx context.Context, ids []string) ([]stores.AuditEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(ids))
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGet(ctx, s.auditEventKey(id), "data")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	out := make([]stores.AuditEvent, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			continue
		}
		ev, err := decodeAuditEvent(data)
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func page(events []stores.AuditEvent, offset, limit int) []stores.AuditEvent {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(events) {
		return nil
	}
	events = events[offset:]
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events
}
