package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
)

const rateLimitColumns = "id, identity, ts, request_kind, ip_address, user_agent, request_id"

// RecordRequest implements stores.RateLimitStore.
func (s *Store) RecordRequest(
	ctx context.Context,
	entry stores.RateLimitEntry,
	since time.Time,
	limit int,
) (out stores.RateLimitOutcome, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stores.RateLimitOutcome{}, unavailable(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.dialect == DialectPostgres {
		if _, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", entry.Identity); err != nil {
			return stores.RateLimitOutcome{}, unavailable(err)
		}
	}

	var (
		count  int
		oldest int64
	)
	err = tx.QueryRowContext(ctx,
		s.rebind("SELECT COUNT(*), COALESCE(MIN(ts), 0) FROM rate_limit_entries WHERE identity = ? AND ts >= ?"),
		entry.Identity, stores.UnixMilli(since),
	).Scan(&count, &oldest)
	if err != nil {
		return stores.RateLimitOutcome{}, unavailable(err)
	}

	if count >= limit {
		if err = tx.Commit(); err != nil {
			return stores.RateLimitOutcome{}, unavailable(err)
		}
		return stores.RateLimitOutcome{Count: count, Oldest: stores.FromUnixMilli(oldest)}, nil
	}

	ts := stores.UnixMilli(entry.Timestamp)
	_, err = tx.ExecContext(ctx,
		s.rebind("INSERT INTO rate_limit_entries ("+rateLimitColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)"),
		entry.ID, entry.Identity, ts, entry.RequestKind, entry.IPAddress, entry.UserAgent, entry.RequestID,
	)
	if err != nil {
		return stores.RateLimitOutcome{}, unavailable(err)
	}
	if err = tx.Commit(); err != nil {
		return stores.RateLimitOutcome{}, unavailable(err)
	}

	if oldest == 0 || ts < oldest {
		oldest = ts
	}
	return stores.RateLimitOutcome{
		Recorded: true,
		Count:    count + 1,
		Oldest:   stores.FromUnixMilli(oldest),
	}, nil
}

// RateLimitWindow implements stores.RateLimitStore.
func (s *Store) RateLimitWindow(ctx context.Context, identity string, since time.Time) ([]stores.RateLimitEntry, error) {
	rows, err := s.query(ctx,
		"SELECT "+rateLimitColumns+" FROM rate_limit_entries WHERE identity = ? AND ts >= ? ORDER BY ts, id",
		identity, stores.UnixMilli(since),
	)
	if err != nil {
		return nil, unavailable(err)
	}
	return scanRateLimit(rows)
}

// RateLimitSince implements stores.RateLimitStore.
func (s *Store) RateLimitSince(ctx context.Context, since time.Time) ([]stores.RateLimitEntry, error) {
	rows, err := s.query(ctx,
		"SELECT "+rateLimitColumns+" FROM rate_limit_entries WHERE ts >= ? ORDER BY ts, id",
		stores.UnixMilli(since),
	)
	if err != nil {
		return nil, unavailable(err)
	}
	return scanRateLimit(rows)
}

// DeleteRateLimitBefore implements stores.RateLimitStore.
func (s *Store) DeleteRateLimitBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error) {
	return s.deleteBatch(ctx, "rate_limit_entries", "id", "ts", stores.UnixMilli(cutoff), batch)
}

func scanRateLimit(rows *sql.Rows) ([]stores.RateLimitEntry, error) {
	defer rows.Close()

	var out []stores.RateLimitEntry
	for rows.Next() {
		var (
			e  stores.RateLimitEntry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.Identity, &ts, &e.RequestKind, &e.IPAddress, &e.UserAgent, &e.RequestID); err != nil {
			return nil, unavailable(err)
		}
		e.Timestamp = stores.FromUnixMilli(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}
