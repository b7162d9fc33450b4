// Package internal contains helpers that are private to goMagicLink: id and
// token generation.
//
// # Sub-packages
//
//   - audit: ordered event trail (Trail + Sink implementations) and the audit log
//   - ledger: token attempt ledger and blacklist gate
//   - limiters: in-process per-address token buckets
//   - logging: zap logger construction with rotated file output
//   - metrics: lock-free counters and latency histograms
//   - observability: Sentry error reporting
//   - rate: sliding-window request limiter
//   - stores: store interfaces plus Redis and SQL backends
//   - sweep: retention sweeper
//
// # What this package must NOT do
//
//   - Export types that appear in the public goMagicLink API.
//   - Be imported by any package outside the goMagicLink module.
package internal
