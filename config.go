package quizgate

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// Config defines the public configuration surface of the quizgate engine.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Config struct {
	Crypto  CryptoConfig
	Admin   AdminConfig
	Token   TokenConfig
	Session SessionConfig
	Login   LoginConfig
	TOTP    TOTPConfig
	Audit   AuditConfig
	Metrics MetricsConfig
	Receipt ReceiptConfig
}

/*
====================================
CRYPTO CONFIG
====================================
*/

// CryptoConfig carries the envelope secret every sealed collection derives
// its keys from. Changing the secret orphans previously sealed state.
type CryptoConfig struct {
	// Secret is the envelope passphrase. Empty falls back to the
	// QUIZGATE_SECRET environment variable, then to a development default.
	Secret string
}

/*
====================================
ADMIN CONFIG
====================================
*/

// AdminConfig carries the console credential pair. The password is never
// stored; only its PBKDF2 hash and salt are.
type AdminConfig struct {
	Username     string
	PasswordHash string // hex, from HashPassword
	PasswordSalt string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig tunes the authorization token authority.
type TokenConfig struct {
	TTLDays    int    // default expiry horizon, default 7
	StorageKey string // local store key, default "qg_otp_tokens"
	BaseURL    string // shareable link base, default "http://localhost:8080"
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the admin session store.
type SessionConfig struct {
	TTL        time.Duration // absolute lifetime, default 24h
	IdleTTL    time.Duration // inactivity horizon, default 30m
	SoonWindow time.Duration // expiring-soon threshold, default 5m
	StorageKey string        // local store key, default "qg_admin_session"
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig tunes the login guard thresholds.
type LoginConfig struct {
	MaxAttempts      int           // lockout threshold, default 5
	CaptchaThreshold int           // captcha stage, default 3
	LockoutDuration  time.Duration // default 15m
	AttemptWindow    time.Duration // counter reset window, default 1h
	BackoffCap       time.Duration // exponential delay ceiling, default 30s
	StorageKey       string        // local store key, default "qg_login_attempts"
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig tunes the second factor.
type TOTPConfig struct {
	Issuer           string // provisioning URI issuer, default "QuizGate"
	Digits           int    // default 6
	Period           int    // step seconds, default 30
	Skew             int    // accepted steps around now, default 1
	Algorithm        string // SHA1 (default), SHA256, SHA512
	BackupCodeCount  int    // default 10
	BackupCodeLength int    // digits per code, default 8
	StorageKey       string // local store key, default "qg_totp"
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig tunes audit dispatch and trail retention.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int  // dispatcher buffer, default 1024
	DropIfFull  bool // drop instead of blocking when the buffer is full
	MaxEntries  int  // trail retention cap, default 10000
	PruneMargin int  // extra rows removed per prune, default 100
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig tunes metric collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
RECEIPT CONFIG
====================================
*/

// ReceiptConfig tunes result receipt signing.
type ReceiptConfig struct {
	// Secret signs receipts (HS256). Empty derives a key from the
	// envelope secret.
	Secret string
	// Lifetime bounds receipt validity, default 30 days.
	Lifetime time.Duration
}

const (
	credentialIterations = 10000
	credentialKeyLen     = 32

	devSecret       = "quizgate-dev-secret"
	devAdminUser    = "admin"
	devAdminPass    = "admin"
	devAdminSalt    = "quizgate-dev-salt"
	receiptKeyLabel = ":receipt"
)

// HashPassword derives the stored credential hash for a password and salt.
// Operators use it once to produce AdminConfig.PasswordHash.
func HashPassword(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), credentialIterations, credentialKeyLen, sha256.New)
	return hex.EncodeToString(key)
}

// checkPassword compares in constant time over the derived keys.
func checkPassword(password, salt, wantHex string) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantHex)) == 1
}

func defaultConfig() Config {
	return Config{
		Crypto: CryptoConfig{
			Secret: envOr("QUIZGATE_SECRET", devSecret),
		},
		Admin: AdminConfig{
			Username:     envOr("QUIZGATE_ADMIN_USERNAME", devAdminUser),
			PasswordHash: envOr("QUIZGATE_ADMIN_HASH", ""),
			PasswordSalt: envOr("QUIZGATE_ADMIN_SALT", devAdminSalt),
		},
		Token: TokenConfig{
			TTLDays:    7,
			StorageKey: "qg_otp_tokens",
			BaseURL:    envOr("QUIZGATE_BASE_URL", "http://localhost:8080"),
		},
		Session: SessionConfig{
			TTL:        24 * time.Hour,
			IdleTTL:    30 * time.Minute,
			SoonWindow: 5 * time.Minute,
			StorageKey: "qg_admin_session",
		},
		Login: LoginConfig{
			MaxAttempts:      5,
			CaptchaThreshold: 3,
			LockoutDuration:  15 * time.Minute,
			AttemptWindow:    time.Hour,
			BackoffCap:       30 * time.Second,
			StorageKey:       "qg_login_attempts",
		},
		TOTP: TOTPConfig{
			Issuer:           "QuizGate",
			Digits:           6,
			Period:           30,
			Skew:             1,
			Algorithm:        "SHA1",
			BackupCodeCount:  10,
			BackupCodeLength: 8,
			StorageKey:       "qg_totp",
		},
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1024,
			DropIfFull:  true,
			MaxEntries:  10000,
			PruneMargin: 100,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Receipt: ReceiptConfig{
			Lifetime: 30 * 24 * time.Hour,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// All fields are value types; a copy is a deep clone.
	return cfg
}

// Validate checks the configuration for values the engine cannot run with.
// Missing secrets do not fail validation; they fall back to development
// defaults so a zero-config embed still works.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Crypto.Secret) == "" {
		return errors.New("Crypto Secret must not be blank")
	}
	if strings.TrimSpace(c.Admin.Username) == "" {
		return errors.New("Admin Username must not be blank")
	}
	if c.Admin.PasswordHash != "" {
		if _, err := hex.DecodeString(c.Admin.PasswordHash); err != nil {
			return errors.New("Admin PasswordHash must be hex")
		}
	}

	if c.Token.TTLDays <= 0 {
		return errors.New("Token TTLDays must be > 0")
	}
	if c.Token.StorageKey == "" {
		return errors.New("Token StorageKey must not be empty")
	}

	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.IdleTTL <= 0 {
		return errors.New("Session IdleTTL must be > 0")
	}
	if c.Session.IdleTTL > c.Session.TTL {
		return errors.New("Session IdleTTL must not exceed TTL")
	}

	if c.Login.MaxAttempts <= 0 {
		return errors.New("Login MaxAttempts must be > 0")
	}
	if c.Login.CaptchaThreshold <= 0 || c.Login.CaptchaThreshold > c.Login.MaxAttempts {
		return errors.New("Login CaptchaThreshold must be in 1..MaxAttempts")
	}
	if c.Login.LockoutDuration <= 0 {
		return errors.New("Login LockoutDuration must be > 0")
	}
	if c.Login.AttemptWindow <= 0 {
		return errors.New("Login AttemptWindow must be > 0")
	}

	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("unsupported TOTP Algorithm")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 10 {
		return errors.New("TOTP Digits must be in 6..10")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be > 0")
	}
	if c.TOTP.BackupCodeLength < 6 {
		return errors.New("TOTP BackupCodeLength must be >= 6")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.MaxEntries <= 0 {
		return errors.New("Audit MaxEntries must be > 0")
	}

	if c.Receipt.Lifetime <= 0 {
		return errors.New("Receipt Lifetime must be > 0")
	}

	return nil
}

// adminHash resolves the effective credential hash, deriving the
// development default when none was configured.
func (c *Config) adminHash() string {
	if c.Admin.PasswordHash != "" {
		return c.Admin.PasswordHash
	}
	return HashPassword(devAdminPass, c.Admin.PasswordSalt)
}

// receiptSecret resolves the receipt signing key.
func (c *Config) receiptSecret() []byte {
	if c.Receipt.Secret != "" {
		return []byte(c.Receipt.Secret)
	}
	return []byte(c.Crypto.Secret + receiptKeyLabel)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
