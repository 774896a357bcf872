// Package quizgate provides a client-resident security engine gating quiz
// access behind single-use authorization tokens, with envelope encryption for
// everything it persists, an admin console guard (credentials, lockout,
// TOTP), a device-bound admin session, and a persistent audit trail.
//
// The package is designed for concurrent embedding: Engine methods are safe
// to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// quizgate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (Token, AuditEvent, SecurityReport, etc.). All internal
// coordination — token merging, login throttling, audit storage, remote
// sync — lives under internal/ and is never exported. The envelope and
// session packages are public because their types appear on the Engine API.
//
// # Trust model
//
// Everything here runs on the client's side of the trust boundary. The
// engine raises the cost of casual tampering (sealed state, integrity
// checks, throttled login) but cannot defend against a debugger; deployments
// needing a hard boundary must move enforcement to a server.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or sealing details in its
//     public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Import any sub-package that re-imports quizgate (no import cycles).
package quizgate
