// Package rate implements the sliding-window request limiter for magic-link
// requests.
//
// # Window semantics
//
// An identity is admitted when fewer than Limit entries have a timestamp in
// [now-Window, now]. The lower bound is inclusive. Admitted requests are
// recorded; denied requests are not. Counting and recording happen in one
// store call (stores.RateLimitStore.RecordRequest) so the bound holds under
// concurrent callers.
//
// RetryAfter on a denial is oldest+Window-now, the time until the oldest
// in-window entry ages out.
//
// # What this package must NOT do
//
//   - Mint tokens or emit audit events.
//   - Be imported outside the goMagicLink module.
package rate
