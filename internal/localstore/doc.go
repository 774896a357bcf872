// Package localstore abstracts the client-resident persistent key-value
// store. Values are opaque strings; security-sensitive callers store sealed
// envelopes, the login guard stores plain JSON counters.
//
// # Architecture boundaries
//
// The store offers get/set/remove with no transactional guarantees —
// read-modify-write cycles over a whole collection are the caller's
// responsibility and must be serialized by the caller (the components each
// hold a per-collection mutex for this).
//
// # What this package must NOT do
//
//   - Interpret or decrypt stored values.
//   - Import any quizgate package outside internal/dbx.
package localstore
