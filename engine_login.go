package quizgate

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"
)

// Login checks the console credential pair. A blocked guard refuses
// without touching credentials. When TOTP is enabled the result carries
// TOTPRequired and the login completes through ConfirmLoginTOTP; otherwise
// the result carries the created session.
func (e *Engine) Login(ctx context.Context, username, password string, device DeviceInfo) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	fp := device.Fingerprint()

	status, err := e.guard.IsBlocked(ctx)
	if err != nil {
		return nil, err
	}
	if status.Blocked {
		e.metricInc(MetricLoginBlocked)
		e.emitAudit(ctx, AuditCategorySecurity, "login", fp, false, ErrLoginBlocked, map[string]string{
			"remaining": status.Remaining.String(),
		})
		return nil, ErrLoginBlocked
	}

	if !e.checkCredentials(username, password) {
		locked, err := e.guard.RecordFailure(ctx)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginFailure)
		if locked {
			e.metricInc(MetricLoginBlocked)
		}
		e.emitAudit(ctx, AuditCategoryAuth, "login", fp, false, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if err := e.guard.RecordSuccess(ctx); err != nil {
		return nil, err
	}

	enabled, err := e.TOTPEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if enabled {
		e.storePendingLogin(username, fp)
		e.metricInc(MetricTOTPRequired)
		e.emitAudit(ctx, AuditCategoryAuth, "login", fp, true, nil, map[string]string{
			"stage": "totp_pending",
		})
		return &LoginResult{TOTPRequired: true}, nil
	}

	return e.finishLogin(ctx, username, fp)
}

// ConfirmLoginTOTP completes a pending MFA login with a TOTP code or a
// backup code.
func (e *Engine) ConfirmLoginTOTP(ctx context.Context, username, code string, device DeviceInfo) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	fp := device.Fingerprint()

	if !e.takePendingLogin(username, fp) {
		e.emitAudit(ctx, AuditCategorySecurity, "login_totp", fp, false, ErrTOTPRequired, nil)
		return nil, ErrTOTPRequired
	}

	ok, err := e.verifySecondFactor(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The challenge is spent; a fresh Login is required, and the
		// failure counts toward the lockout.
		if _, err := e.guard.RecordFailure(ctx); err != nil {
			return nil, err
		}
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, AuditCategoryAuth, "login_totp", fp, false, ErrTOTPInvalid, nil)
		return nil, ErrTOTPInvalid
	}

	e.metricInc(MetricTOTPSuccess)
	return e.finishLogin(ctx, username, fp)
}

// Logout destroys the admin session.
func (e *Engine) Logout(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.sessions.Destroy(ctx); err != nil {
		return err
	}
	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditCategoryAuth, "logout", "", true, nil, nil)
	return nil
}

// LoginBlocked reports whether logins are currently locked out and for how
// much longer.
func (e *Engine) LoginBlocked(ctx context.Context) (BlockStatus, error) {
	if !e.ready() {
		return BlockStatus{}, ErrEngineNotReady
	}
	return e.guard.IsBlocked(ctx)
}

// CaptchaRequired reports whether the caller should demand a captcha
// before forwarding another login attempt.
func (e *Engine) CaptchaRequired(ctx context.Context) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	required, err := e.guard.RequiresCaptcha(ctx)
	if err == nil && required {
		e.metricInc(MetricCaptchaRequired)
	}
	return required, err
}

// NextLoginDelay reports the backoff the caller should apply before the
// next login attempt.
func (e *Engine) NextLoginDelay(ctx context.Context) (time.Duration, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return e.guard.NextDelay(ctx)
}

// ResetLoginGuard clears the failure counter and any lockout. Intended for
// operator tooling.
func (e *Engine) ResetLoginGuard(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.guard.Reset(ctx); err != nil {
		return err
	}
	e.emitAudit(ctx, AuditCategoryAdmin, "login_guard_reset", "", true, nil, nil)
	return nil
}

func (e *Engine) checkCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(e.config.Admin.Username)) == 1
	passOK := checkPassword(password, e.config.Admin.PasswordSalt, e.config.adminHash())
	return userOK && passOK
}

func (e *Engine) finishLogin(ctx context.Context, username, fingerprint string) (*LoginResult, error) {
	sess, err := e.sessions.Create(ctx, username, fingerprint)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, AuditCategoryAuth, "login", fingerprint, true, nil, nil)
	return &LoginResult{Session: sess}, nil
}

func (e *Engine) storePendingLogin(username, fingerprint string) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	e.pending[fingerprint] = pendingLogin{
		Username:  username,
		ExpiresAt: e.now().Add(pendingLoginTTL).UnixMilli(),
	}
}

// takePendingLogin consumes the challenge; valid or not, it can be used
// only once.
func (e *Engine) takePendingLogin(username, fingerprint string) bool {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	challenge, ok := e.pending[fingerprint]
	if !ok {
		return false
	}
	delete(e.pending, fingerprint)
	return challenge.Username == username && e.now().UnixMilli() < challenge.ExpiresAt
}
