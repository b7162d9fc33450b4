// Package middleware exposes HTTP adapters over goMagicLink.Engine.
//
// # Adapters
//
//   - [RequestContext] copies the client address, user agent and request id
//     onto the request context, where the engine reads them for audit and
//     per-address throttling.
//   - [RateLimit] admits a link request through Engine.CheckAndRecord and
//     answers 429 with Retry-After on denial.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every admission
// decision is delegated to the Engine.
//
// # What this package must NOT do
//
//   - Mint, mail or validate tokens.
//   - Access the store directly.
package middleware
