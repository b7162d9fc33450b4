// Package audit implements the append-only audit trail: queued writing,
// sinks, and read-side queries and statistics.
//
// # Components
//
//   - [Sink] : interface for event consumers (store, channel, JSON writer, multi, no-op).
//   - [Trail] : ordered single-writer queue in front of the sinks; turns events away when full.
//   - [StoreSink] : persists events; failures go to an [ErrorHandler].
//   - [Log] : paged queries and windowed statistics over persisted events.
//   - [Event] : structured audit record with identity, action, outcome and correlation ids.
//
// # Architecture boundaries
//
// This package owns event buffering, sink delivery and read aggregation. It
// does NOT decide which events to emit; that belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goMagicLink.
//   - Let a sink failure reach the caller of Record.
package audit
