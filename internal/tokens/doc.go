// Package tokens implements the single-use authorization token authority.
//
// # Components
//
//   - [Token] — the canonical token model shared by local cache and remote
//     documents.
//   - [Authority] — generate / persist / list / validate / consume / remove,
//     reconciling a sealed local cache with a best-effort remote store.
//
// # Consistency model
//
// The local sealed cache is the fast path; the remote store is authoritative
// for cross-device usage at merge time. Persist tolerates remote failure
// (soft flag), Consume does not: marking a token used must reach the remote
// store or the consume fails and the local mark is rolled back.
//
// # What this package must NOT do
//
//   - Decide authorization policy beyond token validity.
//   - Sign or verify result receipts; that belongs to the Engine.
//   - Import the quizgate root package.
package tokens
