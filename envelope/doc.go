// Package envelope implements the authenticated-encryption wrapper used to
// persist structured values into the local key-value store.
//
// # Design
//
// A sealed envelope is base64-of-JSON carrying ciphertext, IV, salt, HMAC tag,
// and a creation timestamp. Encryption and authentication keys are derived
// independently from the configured secret and the per-envelope salt with
// PBKDF2-SHA256, using distinct domain-separation labels, so neither key is
// ever reused across the two roles. Payloads are encrypted with AES-256-CTR
// and authenticated with HMAC-SHA256 over IV‖ciphertext; the tag is verified
// before any decryption is attempted.
//
// A legacy two-field envelope shape (no IV/tag/salt) is still readable through
// a fallback path without integrity verification. Seal never produces it.
//
// # What this package must NOT do
//
//   - Perform any store I/O; it only transforms values to and from strings.
//   - Import any other quizgate package.
package envelope
