// Package internal holds small shared primitives: random token, nonce, and
// backup-code generation plus device fingerprint derivation. Nothing here
// performs I/O.
package internal
