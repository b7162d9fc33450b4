package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
)

const auditColumns = "id, ts, identity, user_id, action, success, error_detail, ip_address, user_agent, session_id, token_id, request_id, metadata"

// AppendAudit implements stores.AuditStore.
func (s *Store) AppendAudit(ctx context.Context, ev stores.AuditEvent) error {
	meta := ""
	if len(ev.Metadata) > 0 {
		data, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		meta = string(data)
	}

	_, err := s.exec(ctx,
		"INSERT INTO audit_events ("+auditColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		ev.ID, stores.UnixMilli(ev.Timestamp), ev.Identity, ev.UserID, ev.Action, boolInt(ev.Success),
		ev.ErrorDetail, ev.IPAddress, ev.UserAgent, ev.SessionID, ev.TokenID, ev.RequestID, meta,
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// QueryAudit implements stores.AuditStore.
func (s *Store) QueryAudit(ctx context.Context, filter stores.AuditFilter) ([]stores.AuditEvent, error) {
	var (
		where []string
		args  []any
	)
	if filter.Identity != "" {
		where = append(where, "identity = ?")
		args = append(args, filter.Identity)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, filter.Action)
	}
	if !filter.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, stores.UnixMilli(filter.Since))
	}
	if !filter.Until.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, stores.UnixMilli(filter.Until))
	}

	var b strings.Builder
	b.WriteString("SELECT " + auditColumns + " FROM audit_events")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY ts DESC, id DESC")

	switch {
	case filter.Limit > 0:
		b.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	case filter.Offset > 0 && s.dialect == DialectSQLite:
		// SQLite requires LIMIT before OFFSET.
		b.WriteString(" LIMIT -1")
	}
	if filter.Offset > 0 {
		b.WriteString(" OFFSET ?")
		args = append(args, filter.Offset)
	}

	rows, err := s.query(ctx, b.String(), args...)
	if err != nil {
		return nil, unavailable(err)
	}
	return scanAudit(rows)
}

// AuditSince implements stores.AuditStore.
func (s *Store) AuditSince(ctx context.Context, since time.Time, action string) ([]stores.AuditEvent, error) {
	q := "SELECT " + auditColumns + " FROM audit_events WHERE ts >= ?"
	args := []any{stores.UnixMilli(since)}
	if action != "" {
		q += " AND action = ?"
		args = append(args, action)
	}
	q += " ORDER BY ts, id"

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	return scanAudit(rows)
}

// DeleteAuditBefore implements stores.AuditStore.
func (s *Store) DeleteAuditBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error) {
	return s.deleteBatch(ctx, "audit_events", "id", "ts", stores.UnixMilli(cutoff), batch)
}

func scanAudit(rows *sql.Rows) ([]stores.AuditEvent, error) {
	defer rows.Close()

	var out []stores.AuditEvent
	for rows.Next() {
		var (
			ev      stores.AuditEvent
			ts      int64
			success int
			meta    string
		)
		err := rows.Scan(&ev.ID, &ts, &ev.Identity, &ev.UserID, &ev.Action, &success, &ev.ErrorDetail,
			&ev.IPAddress, &ev.UserAgent, &ev.SessionID, &ev.TokenID, &ev.RequestID, &meta)
		if err != nil {
			return nil, unavailable(err)
		}
		ev.Timestamp = stores.FromUnixMilli(ts)
		ev.Success = success == 1
		if meta != "" {
			// Corrupt metadata does not hide the event.
			_ = json.Unmarshal([]byte(meta), &ev.Metadata)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}
