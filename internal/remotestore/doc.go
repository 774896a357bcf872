// Package remotestore is the boundary to the remote document store holding
// the shared view of authorization tokens and their usage records.
//
// # Design
//
// Two collections: token documents keyed by token identifier, and per-token
// usage records keyed by token identifier plus a generated sub-key. The
// consumer only relies on get/set/update/delete plus a point-in-time snapshot
// fetch; no transactional semantics across documents are assumed.
//
// Every backend error is wrapped in [ErrUnavailable] so callers can degrade
// to local-only operation without inspecting driver error types.
package remotestore
