package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "ml"

// Store is a Redis-backed stores.Store.
//
// Every key carries the hash tag "{prefix}", so the whole keyspace lives in
// one cluster slot and multi-key scripts run unchanged on Redis Cluster.
type Store struct {
	redis redis.UniversalClient
	tag   string
}

var _ stores.Store = (*Store)(nil)

// New returns a Store using prefix for every key. An empty prefix selects "ml".
func New(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{
		redis: redisClient,
		tag:   "{" + prefix + "}",
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Record keys and index keys use disjoint namespaces: caller-supplied ids
// only ever follow a record marker (":e:", ":r:", ":i:", ":u:", ":a:").
func (s *Store) rlIdentityKey(identity string) string { return s.tag + ":rl:i:" + identity }
func (s *Store) rlEntryKey(id string) string          { return s.tag + ":rl:e:" + id }
func (s *Store) rlIndexKey() string                   { return s.tag + ":rl:ts" }
func (s *Store) tokenKey(tokenID string) string       { return s.tag + ":tok:r:" + tokenID }
func (s *Store) tokenIndexKey() string                { return s.tag + ":tok:ts" }
func (s *Store) blacklistKey(tokenID string) string   { return s.tag + ":bl:r:" + tokenID }
func (s *Store) blacklistIndexKey() string            { return s.tag + ":bl:exp" }
func (s *Store) auditEventKey(id string) string       { return s.tag + ":au:e:" + id }
func (s *Store) auditIndexKey() string                { return s.tag + ":au:ts" }
func (s *Store) auditIdentityKey(identity string) string {
	return s.tag + ":au:i:" + identity
}
func (s *Store) auditUserKey(userID string) string   { return s.tag + ":au:u:" + userID }
func (s *Store) auditActionKey(action string) string { return s.tag + ":au:a:" + action }

// sweepBatchLua deletes records whose index score is still below the cutoff.
// KEYS[1]               = time index zset
// KEYS[base+1]          = record key of the n-th id (base = 1 + n*stride)
// KEYS[base+2..base+stride] = secondary zsets holding the n-th id
// ARGV[1]               = cutoff (ms, exclusive)
// ARGV[2]               = stride
// ARGV[3..]             = ids
//
// Returns the number of ids removed from KEYS[1].
var sweepBatchLua = redis.NewScript(`
local cutoff = tonumber(ARGV[1])
local stride = tonumber(ARGV[2])
local removed = 0
for i = 3, #ARGV do
  local id = ARGV[i]
  local score = redis.call('ZSCORE', KEYS[1], id)
  if score and tonumber(score) < cutoff then
    local base = 1 + (i - 3) * stride
    for j = 2, stride do
      redis.call('ZREM', KEYS[base + j], id)
    end
    redis.call('DEL', KEYS[base + 1])
    redis.call('ZREM', KEYS[1], id)
    removed = removed + 1
  end
end
return removed
`)

// sweepIndex removes up to batch ids scored below cutoff in index. keys
// returns, per id, the record key followed by stride-1 secondary zsets; every
// key is handed to the script through KEYS.
func (s *Store) sweepIndex(
	ctx context.Context,
	index string,
	cutoff time.Time,
	batch int,
	stride int,
	keys func(ctx context.Context, ids []string) ([][]string, error),
) (int64, error) {
	cutoffMS := stores.UnixMilli(cutoff)
	ids, err := s.redis.ZRangeByScore(ctx, index, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + msString(cutoffMS),
		Count: int64(normalizeBatch(batch)),
	}).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	groups, err := keys(ctx, ids)
	if err != nil {
		return 0, err
	}

	scriptKeys := make([]string, 0, 1+len(ids)*stride)
	scriptKeys = append(scriptKeys, index)
	args := make([]interface{}, 0, 2+len(ids))
	args = append(args, cutoffMS, stride)
	for i, id := range ids {
		if len(groups[i]) != stride {
			return 0, fmt.Errorf("%w: sweep key group of %d, want %d", stores.ErrUnavailable, len(groups[i]), stride)
		}
		scriptKeys = append(scriptKeys, groups[i]...)
		args = append(args, id)
	}

	n, err := sweepBatchLua.Run(ctx, s.redis, scriptKeys, args...).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// recordKeysOnly maps ids to single-key groups built by key.
func recordKeysOnly(key func(string) string) func(context.Context, []string) ([][]string, error) {
	return func(_ context.Context, ids []string) ([][]string, error) {
		out := make([][]string, len(ids))
		for i, id := range ids {
			out[i] = []string{key(id)}
		}
		return out, nil
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", stores.ErrUnavailable, err)
}

func msString(ms int64) string {
	return strconv.FormatInt(ms, 10)
}

func normalizeBatch(batch int) int {
	if batch <= 0 {
		return 500
	}
	return batch
}

func flatToMap(values []interface{}) map[string]string {
	out := make(map[string]string, len(values)/2)
	for i := 0; i+1 < len(values); i += 2 {
		k, _ := values[i].(string)
		v, _ := values[i+1].(string)
		out[k] = v
	}
	return out
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		out, _ := strconv.ParseInt(n, 10, 64)
		return out
	default:
		return 0
	}
}
