// Package session provides the sealed, device-bound admin session store.
//
// # Lifetime model
//
// A session carries two horizons: an absolute TTL from issue time and an
// idle TTL from last activity. Reads refresh last activity (sliding
// expiry); crossing either horizon, or presenting a different device
// fingerprint, invalidates the session and clears it from storage.
//
// # Architecture boundaries
//
// This package owns the [Session] model and the [Store] (sealed local
// persistence). It does NOT check credentials, drive TOTP, or decide what a
// logged-in admin may do — those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import the quizgate root package (no upward imports).
//   - Store the session blob unsealed.
//   - Trust a session whose fingerprint does not match the caller's.
package session
