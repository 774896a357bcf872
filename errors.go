package quizgate

import (
	"errors"

	"github.com/twnoc/quizgate/envelope"
	"github.com/twnoc/quizgate/internal/remotestore"
	"github.com/twnoc/quizgate/internal/tokens"
)

var (
	// ErrIntegrity reports a sealed payload whose authentication tag does
	// not match; the payload was tampered with or sealed under a different
	// secret.
	ErrIntegrity = envelope.ErrIntegrity
	// ErrCorrupted reports a sealed payload that authenticated (or is
	// legacy-format) but could not be decrypted into valid data.
	ErrCorrupted = envelope.ErrCorrupted
	// ErrMalformed reports input that is not an envelope at all.
	ErrMalformed = envelope.ErrMalformed

	// ErrValidation rejects blank token input before any store is touched.
	ErrValidation = tokens.ErrEmptyToken
	// ErrTokenNotFound is an exported constant used by token operations.
	ErrTokenNotFound = tokens.ErrNotFound
	// ErrTokenExpired is an exported constant used by token operations.
	ErrTokenExpired = tokens.ErrExpired
	// ErrTokenUsed is an exported constant used by token operations.
	ErrTokenUsed = tokens.ErrAlreadyUsed
	// ErrRemoteUnavailable reports a remote store failure. Operations that
	// tolerate it degrade to local state; Consume surfaces it.
	ErrRemoteUnavailable = remotestore.ErrUnavailable

	// ErrInvalidCredentials is an exported constant used by the login flow.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginBlocked reports an active lockout; no credential check was
	// performed.
	ErrLoginBlocked = errors.New("login temporarily blocked")
	// ErrCaptchaRequired reports that the caller must present a captcha
	// solution before another attempt is accepted.
	ErrCaptchaRequired = errors.New("captcha required")

	// ErrTOTPRequired reports a login that needs a TOTP confirmation step.
	ErrTOTPRequired = errors.New("totp required")
	// ErrTOTPInvalid is an exported constant used by TOTP operations.
	ErrTOTPInvalid = errors.New("invalid totp code")
	// ErrTOTPNotConfigured is an exported constant used by TOTP operations.
	ErrTOTPNotConfigured = errors.New("totp not configured")
	// ErrTOTPAlreadyEnabled rejects enrollment while TOTP is active.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrBackupCodeInvalid is an exported constant used by TOTP operations.
	ErrBackupCodeInvalid = errors.New("invalid backup code")

	// ErrSessionNotFound reports an operation that needs a live admin
	// session when none exists for the presented device.
	ErrSessionNotFound = errors.New("session not found")

	// ErrReceiptInvalid reports a result receipt that failed verification.
	ErrReceiptInvalid = errors.New("invalid result receipt")

	// ErrAuditDisabled rejects trail operations when the engine was built
	// without a durable audit trail.
	ErrAuditDisabled = errors.New("audit trail disabled")

	// ErrEngineNotReady is an exported constant used by the engine surface.
	ErrEngineNotReady = errors.New("engine not initialized")
)
