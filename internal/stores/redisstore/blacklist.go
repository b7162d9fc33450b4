package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
	"github.com/redis/go-redis/v9"
)

// insertBlacklistLua writes an entry unless one exists.
// KEYS[1] = blacklist hash
// KEYS[2] = blacklist expiresAt zset
// ARGV[1] = token id
// ARGV[2] = identity
// ARGV[3] = reason
// ARGV[4] = action kind
// ARGV[5] = attempts
// ARGV[6] = blacklistedAt (ms)
// ARGV[7] = expiresAt (ms)
var insertBlacklistLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1],
  'identity', ARGV[2],
  'reason', ARGV[3],
  'action', ARGV[4],
  'attempts', ARGV[5],
  'at', ARGV[6],
  'expires', ARGV[7])
redis.call('ZADD', KEYS[2], ARGV[7], ARGV[1])
return 1
`)

// GetBlacklist implements stores.BlacklistStore.
func (s *Store) GetBlacklist(ctx context.Context, tokenID string) (stores.BlacklistEntry, error) {
	m, err := s.redis.HGetAll(ctx, s.blacklistKey(tokenID)).Result()
	if err != nil {
		return stores.BlacklistEntry{}, unavailable(err)
	}
	if len(m) == 0 {
		return stores.BlacklistEntry{}, stores.ErrNotFound
	}

	attempts, _ := strconv.Atoi(m["attempts"])
	return stores.BlacklistEntry{
		TokenID:       tokenID,
		Identity:      m["identity"],
		Reason:        m["reason"],
		ActionKind:    m["action"],
		Attempts:      attempts,
		BlacklistedAt: stores.FromUnixMilli(toInt64(m["at"])),
		ExpiresAt:     stores.FromUnixMilli(toInt64(m["expires"])),
	}, nil
}

// InsertBlacklist implements stores.BlacklistStore.
func (s *Store) InsertBlacklist(ctx context.Context, entry stores.BlacklistEntry) (bool, error) {
	n, err := insertBlacklistLua.Run(ctx, s.redis,
		[]string{s.blacklistKey(entry.TokenID), s.blacklistIndexKey()},
		entry.TokenID,
		entry.Identity,
		entry.Reason,
		entry.ActionKind,
		entry.Attempts,
		stores.UnixMilli(entry.BlacklistedAt),
		stores.UnixMilli(entry.ExpiresAt),
	).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// CountActiveBlacklist implements stores.BlacklistStore.
func (s *Store) CountActiveBlacklist(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.redis.ZCount(ctx, s.blacklistIndexKey(), msString(stores.UnixMilli(now)), "+inf").Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// DeleteExpiredBlacklist implements stores.BlacklistStore.
func (s *Store) DeleteExpiredBlacklist(ctx context.Context, now time.Time, batch int) (int64, error) {
	return s.sweepIndex(ctx, s.blacklistIndexKey(), now, batch, 1, recordKeysOnly(s.blacklistKey))
}
