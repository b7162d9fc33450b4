// Package redisstore implements stores.Store on Redis.
//
// # Key layout
//
// Every key starts with the hash tag "{<p>}" (default p is "ml"), which pins
// the keyspace to one Redis Cluster slot. Ids supplied by callers appear only
// after a record marker, so they can never name an index key:
//   - {p}:rl:i:<identity> : ZSET of rate-limit entry ids scored by timestamp (ms)
//   - {p}:rl:e:<id>       : HASH {identity, data} for one rate-limit entry
//   - {p}:rl:ts           : ZSET of every rate-limit entry id, for sweeps
//   - {p}:tok:r:<tokenId> : HASH token record
//   - {p}:tok:ts          : ZSET of token ids scored by createdAt
//   - {p}:bl:r:<tokenId>  : HASH blacklist entry
//   - {p}:bl:exp          : ZSET of blacklisted token ids scored by expiresAt
//   - {p}:au:e:<id>       : HASH {identity, user, action, data} for one audit event
//   - {p}:au:ts, {p}:au:i:<identity>, {p}:au:u:<userId>, {p}:au:a:<action> : audit time indexes
//
// Scripts receive every key they touch through KEYS. Sweeps read a batch of
// ids first and hand the record and index keys to one delete script, which
// re-checks each score before removing anything.
//
// # Atomicity
//
// Check-and-record, ensure, attempt increment, mark-used and blacklist insert
// each run as one Lua script; none of them rely on WATCH retries.
//
// # What this package must NOT do
//
//   - Set TTLs on records; retention belongs to the sweeper.
//   - Make validation decisions.
package redisstore
