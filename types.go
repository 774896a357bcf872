package quizgate

import (
	"github.com/twnoc/quizgate/internal"
	"github.com/twnoc/quizgate/internal/audit"
	"github.com/twnoc/quizgate/internal/limiters"
	"github.com/twnoc/quizgate/internal/remotestore"
	"github.com/twnoc/quizgate/internal/tokens"
	"github.com/twnoc/quizgate/session"
)

// Token is one authorization token as surfaced by Engine token operations.
type Token = tokens.Token

// TokenStatus classifies a token during validation.
type TokenStatus = tokens.Status

const (
	// TokenValid is an exported constant used by token validation.
	TokenValid = tokens.StatusValid
	// TokenNotFound is an exported constant used by token validation.
	TokenNotFound = tokens.StatusNotFound
	// TokenExpired is an exported constant used by token validation.
	TokenExpired = tokens.StatusExpired
	// TokenUsed is an exported constant used by token validation.
	TokenUsed = tokens.StatusUsed
)

// TokenValidation is the outcome of Engine.ValidateToken.
type TokenValidation = tokens.Result

// TokenOptions shape a token minted by Engine.GenerateToken.
type TokenOptions = tokens.GenerateOptions

// TokenStats summarizes the merged token population.
type TokenStats = tokens.Stats

// UsageRecord is one remote consumption record for a token.
type UsageRecord = remotestore.UsageRecord

// AuditEvent is one structured audit record.
type AuditEvent = audit.Event

// AuditSink receives audit events emitted by the engine.
type AuditSink = audit.Sink

// AuditFilter narrows Engine.AuditQuery.
type AuditFilter = audit.Filter

// AuditStats is the aggregate view of the audit trail.
type AuditStats = audit.Stats

// Audit event categories.
const (
	AuditCategoryAuth     = audit.CategoryAuth
	AuditCategoryAdmin    = audit.CategoryAdmin
	AuditCategoryData     = audit.CategoryData
	AuditCategorySecurity = audit.CategorySecurity
	AuditCategorySystem   = audit.CategorySystem
)

// NoOpAuditSink drops audit events.
type NoOpAuditSink = audit.NoOpSink

// NewChannelAuditSink builds a sink that buffers events in a channel for
// the embedding application to drain.
func NewChannelAuditSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// Session is the live admin session model.
type Session = session.Session

// BlockStatus is the outcome of Engine.LoginBlocked.
type BlockStatus = limiters.BlockStatus

// DeviceInfo carries the stable client signals a browser or shell exposes.
// The engine never stores it raw; only the derived fingerprint is kept.
type DeviceInfo struct {
	UserAgent string
	Platform  string
	Language  string
	Timezone  string
	Screen    string
}

// Fingerprint collapses the device signals into the derived value security
// state is bound to.
func (d DeviceInfo) Fingerprint() string {
	return internal.Fingerprint(d.UserAgent, d.Platform, d.Language, d.Timezone, d.Screen)
}

func (d DeviceInfo) asMap() map[string]string {
	m := map[string]string{"fingerprint": d.Fingerprint()}
	if d.Platform != "" {
		m["platform"] = d.Platform
	}
	if d.Language != "" {
		m["language"] = d.Language
	}
	return m
}

// LoginResult is the outcome of a successful Engine.Login. Throttle hints
// for failed attempts come from CaptchaRequired and NextLoginDelay.
type LoginResult struct {
	// TOTPRequired is set when the credential check passed but a second
	// factor must complete the login via ConfirmLoginTOTP.
	TOTPRequired bool
	// Session is the created admin session; nil while TOTPRequired.
	Session *Session
}

// TOTPSetup is the provisioning material returned by Engine.EnrollTOTP.
// BackupCodes appear exactly once; only their hashes are retained.
type TOTPSetup struct {
	Secret      string
	URI         string
	BackupCodes []string
}

// Receipt is a signed proof that a token was consumed for a result.
type Receipt struct {
	Token      string `json:"token"`
	ResultID   string `json:"resultId"`
	ConsumedAt int64  `json:"consumedAt"`
	// Signed is the compact HS256 form; VerifyReceipt accepts it.
	Signed string `json:"signed"`
}

// SecurityReport is a read-only snapshot of the engine's protection
// posture, for operators and dashboards.
type SecurityReport struct {
	SealedStorage     bool       `json:"sealedStorage"`
	RemoteConfigured  bool       `json:"remoteConfigured"`
	RemoteReachable   bool       `json:"remoteReachable"`
	AuditEnabled      bool       `json:"auditEnabled"`
	TOTPEnabled       bool       `json:"totpEnabled"`
	LoginLockoutArmed bool       `json:"loginLockoutArmed"`
	MetricsEnabled    bool       `json:"metricsEnabled"`
	TokenStats        TokenStats `json:"tokenStats"`
}
