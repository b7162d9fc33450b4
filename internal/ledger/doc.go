// Package ledger tracks presentations of one-time tokens and owns the
// blacklist gate.
//
// # Validation order
//
// Validate evaluates, in order: minimum length, blacklist membership, reuse,
// attempt cap, expiry, and finally the attempt increment. The first failing
// gate decides the outcome. Reaching the attempt cap writes exactly one
// blacklist entry per token; expiry never blacklists.
//
// The attempt increment is a conditional store operation (unused and below
// the cap). When it loses a race the ledger re-reads and resolves toward the
// stricter outcome.
//
// # Architecture boundaries
//
// The ledger writes TokenRecord and BlacklistEntry rows and nothing else.
// Audit emission belongs to the caller.
//
// # What this package must NOT do
//
//   - Mint, sign or deliver tokens.
//   - Read wall-clock time; callers pass now.
package ledger
