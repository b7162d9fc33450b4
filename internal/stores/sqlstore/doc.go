// Package sqlstore implements stores.Store on database/sql.
//
// Two dialects are supported: SQLite through modernc.org/sqlite (driver
// name "sqlite") and PostgreSQL through pgx (driver name "pgx").
// Timestamps are stored as BIGINT epoch milliseconds so both dialects share
// one set of queries. Queries are written with '?' placeholders and rebound
// to '$n' for PostgreSQL.
//
// # Atomicity
//
// RecordRequest runs count-then-insert inside one transaction. PostgreSQL
// serializes concurrent callers for the same identity with a transaction
// scoped advisory lock. SQLite stores opened through Open use a single
// connection, which serializes every transaction.
//
// IncrementAttempt is a single conditional UPDATE; the failure reason is
// classified with a follow-up read only when no row was updated.
//
// # Schema
//
// The schema ships as embedded golang-migrate migrations under
// migrations/<dialect>. Migrate applies them.
//
// # What this package must NOT do
//
//   - Interpret rate-limit or token policy.
//   - Emit audit events.
package sqlstore
