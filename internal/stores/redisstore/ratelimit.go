package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
	"github.com/redis/go-redis/v9"
)

// recordRequestLua counts the window and appends in one step.
// KEYS[1] = identity zset
// KEYS[2] = global rate-limit zset
// KEYS[3] = entry hash
// ARGV[1] = window start (ms, inclusive)
// ARGV[2] = limit
// ARGV[3] = entry timestamp (ms)
// ARGV[4] = entry id
// ARGV[5] = identity
// ARGV[6] = encoded entry
//
// Returns {recorded(0|1), count, oldest(ms)}.
var recordRequestLua = redis.NewScript(`
local first = redis.call('ZRANGEBYSCORE', KEYS[1], ARGV[1], '+inf', 'WITHSCORES', 'LIMIT', 0, 1)
local count = redis.call('ZCOUNT', KEYS[1], ARGV[1], '+inf')
local oldest = 0
if #first > 0 then
  oldest = tonumber(first[2])
end

if count >= tonumber(ARGV[2]) then
  return {0, count, oldest}
end

local ts = tonumber(ARGV[3])
redis.call('ZADD', KEYS[1], ts, ARGV[4])
redis.call('ZADD', KEYS[2], ts, ARGV[4])
redis.call('HSET', KEYS[3], 'identity', ARGV[5], 'data', ARGV[6])
if oldest == 0 or ts < oldest then
  oldest = ts
end
return {1, count + 1, oldest}
`)

type rateLimitWire struct {
	ID          string `json:"id"`
	Identity    string `json:"identity"`
	Timestamp   int64  `json:"ts"`
	RequestKind string `json:"kind"`
	IPAddress   string `json:"ip,omitempty"`
	UserAgent   string `json:"ua,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

func encodeRateLimitEntry(e stores.RateLimitEntry) (string, error) {
	data, err := json.Marshal(rateLimitWire{
		ID:          e.ID,
		Identity:    e.Identity,
		Timestamp:   stores.UnixMilli(e.Timestamp),
		RequestKind: e.RequestKind,
		IPAddress:   e.IPAddress,
		UserAgent:   e.UserAgent,
		RequestID:   e.RequestID,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeRateLimitEntry(data string) (stores.RateLimitEntry, error) {
	var w rateLimitWire
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return stores.RateLimitEntry{}, err
	}
	return stores.RateLimitEntry{
		ID:          w.ID,
		Identity:    w.Identity,
		Timestamp:   stores.FromUnixMilli(w.Timestamp),
		RequestKind: w.RequestKind,
		IPAddress:   w.IPAddress,
		UserAgent:   w.UserAgent,
		RequestID:   w.RequestID,
	}, nil
}

// RecordRequest implements stores.RateLimitStore.
func (s *Store) RecordRequest(
	ctx context.Context,
	entry stores.RateLimitEntry,
	since time.Time,
	limit int,
) (stores.RateLimitOutcome, error) {
	encoded, err := encodeRateLimitEntry(entry)
	if err != nil {
		return stores.RateLimitOutcome{}, err
	}

	res, err := recordRequestLua.Run(ctx, s.redis,
		[]string{s.rlIdentityKey(entry.Identity), s.rlIndexKey(), s.rlEntryKey(entry.ID)},
		stores.UnixMilli(since),
		limit,
		stores.UnixMilli(entry.Timestamp),
		entry.ID,
		entry.Identity,
		encoded,
	).Slice()
	if err != nil {
		return stores.RateLimitOutcome{}, unavailable(err)
	}
	if len(res) != 3 {
		return stores.RateLimitOutcome{}, fmt.Errorf("%w: unexpected lua result length %d", stores.ErrUnavailable, len(res))
	}

	return stores.RateLimitOutcome{
		Recorded: toInt64(res[0]) == 1,
		Count:    int(toInt64(res[1])),
		Oldest:   stores.FromUnixMilli(toInt64(res[2])),
	}, nil
}

// RateLimitWindow implements stores.RateLimitStore.
func (s *Store) RateLimitWindow(ctx context.Context, identity string, since time.Time) ([]stores.RateLimitEntry, error) {
	return s.loadRateLimit(ctx, s.rlIdentityKey(identity), since)
}

// RateLimitSince implements stores.RateLimitStore.
func (s *Store) RateLimitSince(ctx context.Context, since time.Time) ([]stores.RateLimitEntry, error) {
	return s.loadRateLimit(ctx, s.rlIndexKey(), since)
}

func (s *Store) loadRateLimit(ctx context.Context, indexKey string, since time.Time) ([]stores.RateLimitEntry, error) {
	ids, err := s.redis.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: msString(stores.UnixMilli(since)),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGet(ctx, s.rlEntryKey(id), "data")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	out := make([]stores.RateLimitEntry, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			// Swept between the range read and the fetch.
			continue
		}
		entry, err := decodeRateLimitEntry(data)
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// DeleteRateLimitBefore implements stores.RateLimitStore.
func (s *Store) DeleteRateLimitBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error) {
	return s.sweepIndex(ctx, s.rlIndexKey(), cutoff, batch, 2, s.rateLimitSweepKeys)
}

// rateLimitSweepKeys pairs each entry hash with its identity zset. An entry
// whose hash is already gone falls back to the global index, which the sweep
// script clears anyway.
func (s *Store) rateLimitSweepKeys(ctx context.Context, ids []string) ([][]string, error) {
	cmds := make([]*redis.StringCmd, len(ids))
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGet(ctx, s.rlEntryKey(id), "identity")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	out := make([][]string, len(ids))
	for i, id := range ids {
		secondary := s.rlIndexKey()
		if identity, err := cmds[i].Result(); err == nil {
			secondary = s.rlIdentityKey(identity)
		}
		out[i] = []string{s.rlEntryKey(id), secondary}
	}
	return out, nil
}
