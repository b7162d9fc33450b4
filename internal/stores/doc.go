// Package stores defines the persistence contract shared by the magic-link
// security components: record types for the four logical tables and the
// store interfaces the Redis and SQL backends implement.
//
// # Design
//
// Every operation that guards an invariant is a single atomic call against one
// table: RecordRequest checks and appends a rate-limit entry, IncrementAttempt
// bumps the attempt counter only while the token is unused and under its cap,
// and InsertBlacklist is insert-if-absent. Sweep deletions are batched, keyed
// by primary identifier, and report how many rows they actually removed.
//
// # Architecture boundaries
//
// This package owns types and contracts only. Backends live in
// stores/redisstore and stores/sqlstore; decisions (check order, expiry,
// blacklisting) belong to internal/rate and internal/ledger.
//
// # What this package must NOT do
//
//   - Import goMagicLink or any sibling internal package.
//   - Perform I/O.
package stores
