package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	ivSize   = 16
	saltSize = 16
	keySize  = 32

	// Iteration count of the PBKDF2 key stretch. Fixed: changing it breaks
	// every envelope already persisted.
	kdfIterations = 10000

	encLabel = ":enc"
	macLabel = ":mac"
)

var (
	// ErrMalformed indicates the envelope string is not parseable at all.
	ErrMalformed = errors.New("envelope malformed")
	// ErrIntegrity indicates the authentication tag did not verify; the
	// envelope was tampered with or sealed under a different secret.
	ErrIntegrity = errors.New("envelope integrity check failed")
	// ErrCorrupted indicates the tag verified (or the legacy path was taken)
	// but the plaintext is garbage.
	ErrCorrupted = errors.New("envelope payload corrupted")
)

// document is the on-wire JSON shape. The legacy shape carries only Data and
// Timestamp.
type document struct {
	Data      string `json:"data"`
	IV        string `json:"iv,omitempty"`
	AuthTag   string `json:"authTag,omitempty"`
	Salt      string `json:"salt,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (d *document) isLegacy() bool {
	return d.Data != "" && d.IV == "" && d.AuthTag == "" && d.Salt == ""
}

func (d *document) isAuthenticated() bool {
	return d.Data != "" && d.IV != "" && d.AuthTag != "" && d.Salt != "" && d.Timestamp != 0
}

// Config carries the sealing parameters. Secret seeds both derived keys.
// OnLegacy, when set, is invoked once per legacy-format decrypt so the host
// can surface a re-encryption warning. Now is injectable for tests.
type Config struct {
	Secret   string
	OnLegacy func()
	Now      func() time.Time
}

// Sealer seals and opens envelopes under one configured secret.
// A Sealer is immutable after construction and safe for concurrent use.
type Sealer struct {
	secret   string
	onLegacy func()
	now      func() time.Time
}

// NewSealer creates a Sealer from cfg.
func NewSealer(cfg Config) *Sealer {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sealer{
		secret:   cfg.Secret,
		onLegacy: cfg.OnLegacy,
		now:      now,
	}
}

func (s *Sealer) deriveKeys(saltB64 string) (encKey, macKey []byte) {
	// The salt enters the KDF in its encoded string form, matching the wire
	// format other readers of the same store use.
	encKey = pbkdf2.Key([]byte(s.secret+encLabel), []byte(saltB64), kdfIterations, keySize, sha256.New)
	macKey = pbkdf2.Key([]byte(s.secret+macLabel), []byte(saltB64), kdfIterations, keySize, sha256.New)
	return encKey, macKey
}

func computeTag(macKey []byte, ivB64, dataB64 string) string {
	mac := hmac.New(sha256.New, macKey)
	_, _ = mac.Write([]byte(ivB64))
	_, _ = mac.Write([]byte(dataB64))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Seal serializes v and returns the authenticated envelope string.
// Every call draws a fresh IV and salt.
func (s *Sealer) Seal(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	saltB64 := base64.StdEncoding.EncodeToString(salt)
	encKey, macKey := s.deriveKeys(saltB64)

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return "", err
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, plaintext)

	dataB64 := base64.StdEncoding.EncodeToString(ciphertext)
	ivB64 := base64.StdEncoding.EncodeToString(iv)

	doc := document{
		Data:      dataB64,
		IV:        ivB64,
		AuthTag:   computeTag(macKey, ivB64, dataB64),
		Salt:      saltB64,
		Timestamp: s.now().UnixMilli(),
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(encoded), nil
}

func parse(encoded string) (*document, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformed
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, ErrMalformed
	}
	return &doc, nil
}

// Open parses and decrypts an envelope into v.
//
// Authenticated envelopes verify the HMAC tag before decryption and fail with
// [ErrIntegrity] on mismatch. Legacy envelopes decrypt without verification
// and trigger the OnLegacy hook. A verified envelope whose plaintext does not
// round-trip as JSON fails with [ErrCorrupted].
func (s *Sealer) Open(encoded string, v any) error {
	doc, err := parse(encoded)
	if err != nil {
		return err
	}

	if doc.isLegacy() {
		if s.onLegacy != nil {
			s.onLegacy()
		}
		return s.openLegacy(doc, v)
	}
	if !doc.isAuthenticated() {
		return ErrMalformed
	}

	encKey, macKey := s.deriveKeys(doc.Salt)
	expected := computeTag(macKey, doc.IV, doc.Data)
	if !hmac.Equal([]byte(expected), []byte(doc.AuthTag)) {
		return ErrIntegrity
	}

	iv, err := base64.StdEncoding.DecodeString(doc.IV)
	if err != nil || len(iv) != ivSize {
		return ErrIntegrity
	}
	ciphertext, err := base64.StdEncoding.DecodeString(doc.Data)
	if err != nil {
		return ErrIntegrity
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(block, iv).XORKeyStream(plaintext, ciphertext)

	if err := json.Unmarshal(plaintext, v); err != nil {
		return ErrCorrupted
	}
	return nil
}

// IsValid reports whether encoded has the authenticated envelope structure.
// It performs no cryptographic verification; callers use it to decide whether
// Open is worth attempting at all.
func IsValid(encoded string) bool {
	doc, err := parse(encoded)
	if err != nil {
		return false
	}
	return doc.isAuthenticated()
}

// TimestampOf extracts the creation time (milliseconds since epoch) without
// decrypting, so expiry sweeps do not need the secret.
func TimestampOf(encoded string) (int64, error) {
	doc, err := parse(encoded)
	if err != nil {
		return 0, err
	}
	return doc.Timestamp, nil
}
