package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
)

const tokenColumns = "token_id, identity, action_kind, created_at, attempts, last_attempt_at, used, used_at, ip_address, user_agent"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(r rowScanner) (stores.TokenRecord, error) {
	var (
		rec              stores.TokenRecord
		created, last, u int64
		used             int
	)
	err := r.Scan(&rec.TokenID, &rec.Identity, &rec.ActionKind, &created, &rec.Attempts, &last, &used, &u, &rec.IPAddress, &rec.UserAgent)
	if err != nil {
		return stores.TokenRecord{}, err
	}
	rec.CreatedAt = stores.FromUnixMilli(created)
	rec.LastAttemptAt = stores.FromUnixMilli(last)
	rec.Used = used == 1
	rec.UsedAt = stores.FromUnixMilli(u)
	return rec, nil
}

// EnsureToken implements stores.TokenStore.
func (s *Store) EnsureToken(ctx context.Context, rec stores.TokenRecord) (stores.TokenRecord, bool, error) {
	created := stores.UnixMilli(rec.CreatedAt)
	res, err := s.exec(ctx,
		"INSERT INTO token_records ("+tokenColumns+") VALUES (?, ?, ?, ?, 0, ?, 0, 0, ?, ?) ON CONFLICT (token_id) DO NOTHING",
		rec.TokenID, rec.Identity, rec.ActionKind, created, created, rec.IPAddress, rec.UserAgent,
	)
	if err != nil {
		return stores.TokenRecord{}, false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return stores.TokenRecord{}, false, unavailable(err)
	}

	stored, err := s.GetToken(ctx, rec.TokenID)
	if err != nil {
		return stores.TokenRecord{}, false, err
	}
	return stored, n == 1, nil
}

// GetToken implements stores.TokenStore.
func (s *Store) GetToken(ctx context.Context, tokenID string) (stores.TokenRecord, error) {
	rec, err := scanToken(s.queryRow(ctx, "SELECT "+tokenColumns+" FROM token_records WHERE token_id = ?", tokenID))
	if errors.Is(err, sql.ErrNoRows) {
		return stores.TokenRecord{}, stores.ErrNotFound
	}
	if err != nil {
		return stores.TokenRecord{}, unavailable(err)
	}
	return rec, nil
}

// IncrementAttempt implements stores.TokenStore.
func (s *Store) IncrementAttempt(ctx context.Context, tokenID string, maxAttempts int, now time.Time) (stores.TokenRecord, error) {
	rec, err := scanToken(s.queryRow(ctx,
		"UPDATE token_records SET attempts = attempts + 1, last_attempt_at = ? "+
			"WHERE token_id = ? AND used = 0 AND attempts < ? RETURNING "+tokenColumns,
		stores.UnixMilli(now), tokenID, maxAttempts,
	))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return stores.TokenRecord{}, unavailable(err)
	}

	current, err := s.GetToken(ctx, tokenID)
	if err != nil {
		return stores.TokenRecord{}, err
	}
	if current.Used {
		return stores.TokenRecord{}, stores.ErrTokenUsed
	}
	return stores.TokenRecord{}, stores.ErrAttemptsExhausted
}

// MarkTokenUsed implements stores.TokenStore.
func (s *Store) MarkTokenUsed(ctx context.Context, tokenID string, now time.Time) (stores.TokenRecord, error) {
	ms := stores.UnixMilli(now)
	if _, err := s.exec(ctx,
		"UPDATE token_records SET used = 1, used_at = ?, last_attempt_at = ? WHERE token_id = ? AND used = 0",
		ms, ms, tokenID,
	); err != nil {
		return stores.TokenRecord{}, unavailable(err)
	}
	return s.GetToken(ctx, tokenID)
}

// TokensSince implements stores.TokenStore.
func (s *Store) TokensSince(ctx context.Context, since time.Time) ([]stores.TokenRecord, error) {
	rows, err := s.query(ctx,
		"SELECT "+tokenColumns+" FROM token_records WHERE created_at >= ? ORDER BY created_at, token_id",
		stores.UnixMilli(since),
	)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []stores.TokenRecord
	for rows.Next() {
		rec, err := scanToken(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// DeleteTokensBefore implements stores.TokenStore.
func (s *Store) DeleteTokensBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error) {
	return s.deleteBatch(ctx, "token_records", "token_id", "created_at", stores.UnixMilli(cutoff), batch)
}
