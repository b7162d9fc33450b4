// Package goMagicLink provides the security layer behind passwordless
// ("magic link") sign-in: per-identity request throttling, attempt-bounded
// one-time tokens with a blacklist, an append-only audit trail and
// bounded-retention cleanup, over a shared Redis or SQL store.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Flow
//
// A link request calls [Engine.CheckAndRecord]; when allowed, the caller
// mints and mails a token. Redemption calls [Engine.ValidateToken], which
// checks the blacklist, reuse, the attempt cap and expiry in that order,
// and [Engine.MarkTokenUsed] once the downstream sign-in succeeds.
// [Engine.Sweep] runs on an external schedule.
//
// # Architecture boundaries
//
// goMagicLink is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (RateLimitResult, ValidationResult, AuditEvent, MetricsSnapshot). Limiting, ledger
// policy, audit dispatch, retention and store backends live under internal/ and are
// reachable only through Engine methods.
//
// # What this package must NOT do
//
//   - Send email, issue sessions or sign credentials.
//   - Return an error for an expected denial; rate limits and rejected tokens are typed results.
//   - Let an audit failure reach the caller of a primary operation.
//   - Import any sub-package that re-imports goMagicLink (no import cycles).
package goMagicLink
