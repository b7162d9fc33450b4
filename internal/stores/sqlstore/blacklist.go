package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
)

// GetBlacklist implements stores.BlacklistStore.
func (s *Store) GetBlacklist(ctx context.Context, tokenID string) (stores.BlacklistEntry, error) {
	var (
		e       stores.BlacklistEntry
		at, exp int64
	)
	err := s.queryRow(ctx,
		"SELECT token_id, identity, reason, action_kind, attempts, blacklisted_at, expires_at FROM token_blacklist WHERE token_id = ?",
		tokenID,
	).Scan(&e.TokenID, &e.Identity, &e.Reason, &e.ActionKind, &e.Attempts, &at, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return stores.BlacklistEntry{}, stores.ErrNotFound
	}
	if err != nil {
		return stores.BlacklistEntry{}, unavailable(err)
	}
	e.BlacklistedAt = stores.FromUnixMilli(at)
	e.ExpiresAt = stores.FromUnixMilli(exp)
	return e, nil
}

// InsertBlacklist implements stores.BlacklistStore.
func (s *Store) InsertBlacklist(ctx context.Context, entry stores.BlacklistEntry) (bool, error) {
	res, err := s.exec(ctx,
		"INSERT INTO token_blacklist (token_id, identity, reason, action_kind, attempts, blacklisted_at, expires_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (token_id) DO NOTHING",
		entry.TokenID, entry.Identity, entry.Reason, entry.ActionKind, entry.Attempts,
		stores.UnixMilli(entry.BlacklistedAt), stores.UnixMilli(entry.ExpiresAt),
	)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// CountActiveBlacklist implements stores.BlacklistStore.
func (s *Store) CountActiveBlacklist(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM token_blacklist WHERE expires_at >= ?", stores.UnixMilli(now)).Scan(&n); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// DeleteExpiredBlacklist implements stores.BlacklistStore.
func (s *Store) DeleteExpiredBlacklist(ctx context.Context, now time.Time, batch int) (int64, error) {
	return s.deleteBatch(ctx, "token_blacklist", "token_id", "expires_at", stores.UnixMilli(now), batch)
}
