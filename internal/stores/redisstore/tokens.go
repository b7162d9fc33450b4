package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
	"github.com/redis/go-redis/v9"
)

// ensureTokenLua inserts a token record when absent.
// KEYS[1] = token hash
// KEYS[2] = token createdAt zset
// ARGV[1] = token id
// ARGV[2] = identity
// ARGV[3] = action kind
// ARGV[4] = createdAt (ms)
// ARGV[5] = ip address
// ARGV[6] = user agent
//
// Returns {created(0|1), field, value, ...}.
var ensureTokenLua = redis.NewScript(`
local created = 0
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1],
    'identity', ARGV[2],
    'action', ARGV[3],
    'created', ARGV[4],
    'attempts', 0,
    'last', ARGV[4],
    'used', 0,
    'used_at', 0,
    'ip', ARGV[5],
    'ua', ARGV[6])
  redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
  created = 1
end

local out = {created}
for _, v in ipairs(redis.call('HGETALL', KEYS[1])) do
  out[#out + 1] = v
end
return out
`)

// incrementAttemptLua bumps attempts only while the token is unused and
// below the cap.
// KEYS[1] = token hash
// ARGV[1] = max attempts
// ARGV[2] = now (ms)
//
// Returns the record as field/value pairs, or an error string:
// "not_found", "used", "attempts_exhausted".
var incrementAttemptLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
if redis.call('HGET', KEYS[1], 'used') == '1' then
  return {err='used'}
end
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')
if attempts >= tonumber(ARGV[1]) then
  return {err='attempts_exhausted'}
end
redis.call('HSET', KEYS[1], 'attempts', attempts + 1, 'last', ARGV[2])
return redis.call('HGETALL', KEYS[1])
`)

// markUsedLua seals a token. usedAt keeps its first value.
// KEYS[1] = token hash
// ARGV[1] = now (ms)
var markUsedLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
if redis.call('HGET', KEYS[1], 'used') ~= '1' then
  redis.call('HSET', KEYS[1], 'used', 1, 'used_at', ARGV[1], 'last', ARGV[1])
end
return redis.call('HGETALL', KEYS[1])
`)

func tokenFromHash(tokenID string, m map[string]string) stores.TokenRecord {
	attempts, _ := strconv.Atoi(m["attempts"])
	return stores.TokenRecord{
		TokenID:       tokenID,
		Identity:      m["identity"],
		ActionKind:    m["action"],
		CreatedAt:     stores.FromUnixMilli(toInt64(m["created"])),
		Attempts:      attempts,
		LastAttemptAt: stores.FromUnixMilli(toInt64(m["last"])),
		Used:          m["used"] == "1",
		UsedAt:        stores.FromUnixMilli(toInt64(m["used_at"])),
		IPAddress:     m["ip"],
		UserAgent:     m["ua"],
	}
}

func mapTokenScriptError(err error) error {
	switch err.Error() {
	case "not_found":
		return stores.ErrNotFound
	case "used":
		return stores.ErrTokenUsed
	case "attempts_exhausted":
		return stores.ErrAttemptsExhausted
	default:
		return unavailable(err)
	}
}

// EnsureToken implements stores.TokenStore.
func (s *Store) EnsureToken(ctx context.Context, rec stores.TokenRecord) (stores.TokenRecord, bool, error) {
	res, err := ensureTokenLua.Run(ctx, s.redis,
		[]string{s.tokenKey(rec.TokenID), s.tokenIndexKey()},
		rec.TokenID,
		rec.Identity,
		rec.ActionKind,
		stores.UnixMilli(rec.CreatedAt),
		rec.IPAddress,
		rec.UserAgent,
	).Slice()
	if err != nil {
		return stores.TokenRecord{}, false, unavailable(err)
	}
	if len(res) == 0 {
		return stores.TokenRecord{}, false, fmt.Errorf("%w: empty lua result", stores.ErrUnavailable)
	}

	return tokenFromHash(rec.TokenID, flatToMap(res[1:])), toInt64(res[0]) == 1, nil
}

// GetToken implements stores.TokenStore.
func (s *Store) GetToken(ctx context.Context, tokenID string) (stores.TokenRecord, error) {
	m, err := s.redis.HGetAll(ctx, s.tokenKey(tokenID)).Result()
	if err != nil {
		return stores.TokenRecord{}, unavailable(err)
	}
	if len(m) == 0 {
		return stores.TokenRecord{}, stores.ErrNotFound
	}
	return tokenFromHash(tokenID, m), nil
}

// IncrementAttempt implements stores.TokenStore.
func (s *Store) IncrementAttempt(ctx context.Context, tokenID string, maxAttempts int, now time.Time) (stores.TokenRecord, error) {
	res, err := incrementAttemptLua.Run(ctx, s.redis,
		[]string{s.tokenKey(tokenID)},
		maxAttempts,
		stores.UnixMilli(now),
	).Slice()
	if err != nil {
		return stores.TokenRecord{}, mapTokenScriptError(err)
	}
	return tokenFromHash(tokenID, flatToMap(res)), nil
}

// MarkTokenUsed implements stores.TokenStore.
func (s *Store) MarkTokenUsed(ctx context.Context, tokenID string, now time.Time) (stores.TokenRecord, error) {
	res, err := markUsedLua.Run(ctx, s.redis,
		[]string{s.tokenKey(tokenID)},
		stores.UnixMilli(now),
	).Slice()
	if err != nil {
		return stores.TokenRecord{}, mapTokenScriptError(err)
	}
	return tokenFromHash(tokenID, flatToMap(res)), nil
}

// TokensSince implements stores.TokenStore.
func (s *Store) TokensSince(ctx context.Context, since time.Time) ([]stores.TokenRecord, error) {
	ids, err := s.redis.ZRangeByScore(ctx, s.tokenIndexKey(), &redis.ZRangeBy{
		Min: msString(stores.UnixMilli(since)),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.tokenKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	out := make([]stores.TokenRecord, 0, len(ids))
	for i, cmd := range cmds {
		m, err := cmd.Result()
		if err != nil || len(m) == 0 {
			continue
		}
		out = append(out, tokenFromHash(ids[i], m))
	}
	return out, nil
}

// DeleteTokensBefore implements stores.TokenStore.
func (s *Store) DeleteTokensBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error) {
	return s.sweepIndex(ctx, s.tokenIndexKey(), cutoff, batch, 1, recordKeysOnly(s.tokenKey))
}
