// Package limiters provides in-process limiters that complement the
// store-backed identity limiter in internal/rate.
//
// # Limiters
//
//   - [IPThrottle]: per-source-address token bucket (golang.org/x/time/rate)
//     with idle eviction.
//
// All limiters are nil-safe: a nil *IPThrottle allows every request.
//
// # Architecture boundaries
//
// State is process-local and not shared across replicas. Policy thresholds
// come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import goMagicLink or any sibling internal package.
//   - Persist anything.
package limiters
