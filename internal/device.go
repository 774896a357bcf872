package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint collapses stable client-observable signals into one derived
// value binding security state to a device. The same ordered signals always
// produce the same fingerprint; no signal is recoverable from it.
func Fingerprint(signals ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(signals, "|")))
	return hex.EncodeToString(sum[:])
}
