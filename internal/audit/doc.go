// Package audit implements the persistent security audit trail and its
// async event dispatching.
//
// # Components
//
//   - [Event] — structured audit record with category, action, device
//     fingerprint, page, success flag, and free-form details.
//   - [Sink] — interface for event consumers (channel, JSON writer, trail, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full semantics.
//   - [Trail] — SQLite-backed event log with encrypted details, capped size,
//     filtered queries, and aggregate statistics.
//
// # Architecture boundaries
//
// This package owns event buffering, storage, and sink delivery. It does NOT
// decide which events to emit — that responsibility belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import quizgate or any sibling internal package other than dbx.
//   - Surface storage failures to callers of Record; audit writes never
//     break the operation being audited.
package audit
