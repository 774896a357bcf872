package internaldefs

import (
	quizgate "github.com/twnoc/quizgate"
)

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   quizgate.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported name.
type HistogramDef struct {
	ID   quizgate.MetricID
	Name string
	Help string
}

// CounterDefs is the canonical exported counter set, in metric ID order.
var CounterDefs = []CounterDef{
	{ID: quizgate.MetricLoginSuccess, Name: "quizgate_login_success_total", Help: "Successful admin logins."},
	{ID: quizgate.MetricLoginFailure, Name: "quizgate_login_failure_total", Help: "Failed admin login attempts."},
	{ID: quizgate.MetricLoginBlocked, Name: "quizgate_login_blocked_total", Help: "Login attempts refused by an active lockout."},
	{ID: quizgate.MetricCaptchaRequired, Name: "quizgate_captcha_required_total", Help: "Login attempts gated behind a captcha."},
	{ID: quizgate.MetricTOTPRequired, Name: "quizgate_totp_required_total", Help: "Logins that required a TOTP confirmation."},
	{ID: quizgate.MetricTOTPSuccess, Name: "quizgate_totp_success_total", Help: "Successful TOTP verifications."},
	{ID: quizgate.MetricTOTPFailure, Name: "quizgate_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: quizgate.MetricBackupCodeUsed, Name: "quizgate_backup_code_used_total", Help: "Redeemed backup codes."},
	{ID: quizgate.MetricBackupCodeFailed, Name: "quizgate_backup_code_failed_total", Help: "Rejected backup-code attempts."},
	{ID: quizgate.MetricBackupCodeRegenerated, Name: "quizgate_backup_code_regenerated_total", Help: "Backup-code set rotations."},
	{ID: quizgate.MetricTokenGenerated, Name: "quizgate_token_generated_total", Help: "Issued authorization tokens."},
	{ID: quizgate.MetricTokenConsumed, Name: "quizgate_token_consumed_total", Help: "Consumed authorization tokens."},
	{ID: quizgate.MetricTokenConsumeFailed, Name: "quizgate_token_consume_failed_total", Help: "Failed token consume attempts."},
	{ID: quizgate.MetricTokenNotFound, Name: "quizgate_token_not_found_total", Help: "Token checks against unknown tokens."},
	{ID: quizgate.MetricTokenExpired, Name: "quizgate_token_expired_total", Help: "Token checks against expired tokens."},
	{ID: quizgate.MetricTokenAlreadyUsed, Name: "quizgate_token_already_used_total", Help: "Token checks against already-used tokens."},
	{ID: quizgate.MetricTokenRevoked, Name: "quizgate_token_revoked_total", Help: "Revoked authorization tokens."},
	{ID: quizgate.MetricRemoteSyncFailure, Name: "quizgate_remote_sync_failure_total", Help: "Remote store writes that failed."},
	{ID: quizgate.MetricSessionCreated, Name: "quizgate_session_created_total", Help: "Created admin sessions."},
	{ID: quizgate.MetricSessionInvalidated, Name: "quizgate_session_invalidated_total", Help: "Invalidated admin sessions."},
	{ID: quizgate.MetricLogout, Name: "quizgate_logout_total", Help: "Logout operations."},
	{ID: quizgate.MetricLegacyEnvelopeOpened, Name: "quizgate_legacy_envelope_opened_total", Help: "Sealed payloads opened through the legacy format fallback."},
	{ID: quizgate.MetricIntegrityFailure, Name: "quizgate_integrity_failure_total", Help: "Sealed payloads that failed authentication and were discarded."},
}

// HistogramDefs is the canonical exported histogram set.
var HistogramDefs = []HistogramDef{
	{ID: quizgate.MetricValidateLatency, Name: "quizgate_validate_latency_seconds", Help: "Token validate latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, Prometheus le
// label form.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with instrument-name-safe
// suffixes for exporters that cannot carry labels.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// eight-bucket layout.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
