package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const (
	tokenRawSize = 32
	nonceRawSize = 32
)

// NewTokenString returns a cryptographically random opaque token identifier:
// 32 raw bytes, hex encoded. The hex form is URL-safe so tokens can travel in
// the otp query parameter unescaped.
func NewTokenString() (string, error) {
	var raw [tokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// NewNonce returns a random hex nonce used for session anti-forgery binding.
func NewNonce() (string, error) {
	var raw [nonceRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// NewNumericCode returns a random code of the given number of decimal digits,
// drawn from crypto/rand one digit at a time.
func NewNumericCode(digits int) (string, error) {
	if digits < 6 || digits > 12 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// NewBackupCodes issues count single-use numeric backup codes.
func NewBackupCodes(count, digits int) ([]string, error) {
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := NewNumericCode(digits)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// HashBackupCode returns the storage form of a backup code. Plaintext codes
// are never persisted.
func HashBackupCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}
