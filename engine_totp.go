package quizgate

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/twnoc/quizgate/internal"
)

// totpEnrollment is the sealed record behind TOTP second-factor state.
// Secret is base32, BackupHashes are hex SHA-256 of the single-use codes.
type totpEnrollment struct {
	Secret       string   `json:"secret"`
	Enabled      bool     `json:"enabled"`
	CreatedAt    int64    `json:"createdAt"`
	ConfirmedAt  int64    `json:"confirmedAt,omitempty"`
	LastCounter  int64    `json:"lastCounter"`
	BackupHashes []string `json:"backupHashes"`
}

// EnrollTOTP generates a fresh secret plus backup codes and stores them in
// unconfirmed state. The returned setup carries the only plaintext copy of
// the backup codes; enrollment becomes active after ConfirmTOTP.
func (e *Engine) EnrollTOTP(ctx context.Context, account string) (*TOTPSetup, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	e.totpMu.Lock()
	defer e.totpMu.Unlock()

	existing, err := e.loadEnrollment(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Enabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	_, secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	codes, err := internal.NewBackupCodes(e.config.TOTP.BackupCodeCount, e.config.TOTP.BackupCodeLength)
	if err != nil {
		return nil, err
	}

	enrollment := totpEnrollment{
		Secret:       secret,
		CreatedAt:    e.now().UnixMilli(),
		BackupHashes: hashCodes(codes),
	}
	if err := e.saveEnrollment(ctx, &enrollment); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, AuditCategorySecurity, "totp_enroll", "", true, nil, map[string]string{
		"account": account,
	})
	return &TOTPSetup{
		Secret:      secret,
		URI:         e.totp.ProvisionURI(secret, account),
		BackupCodes: codes,
	}, nil
}

// ConfirmTOTP proves the authenticator was provisioned correctly and
// switches the enrollment on.
func (e *Engine) ConfirmTOTP(ctx context.Context, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	e.totpMu.Lock()
	defer e.totpMu.Unlock()

	enrollment, err := e.loadEnrollment(ctx)
	if err != nil {
		return err
	}
	if enrollment == nil {
		return ErrTOTPNotConfigured
	}
	if enrollment.Enabled {
		return ErrTOTPAlreadyEnabled
	}

	ok, counter, err := e.totp.VerifyCode(enrollment.Secret, code, e.now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, AuditCategorySecurity, "totp_confirm", "", false, ErrTOTPInvalid, nil)
		return ErrTOTPInvalid
	}

	enrollment.Enabled = true
	enrollment.ConfirmedAt = e.now().UnixMilli()
	enrollment.LastCounter = counter
	if err := e.saveEnrollment(ctx, enrollment); err != nil {
		return err
	}

	e.metricInc(MetricTOTPSuccess)
	e.emitAudit(ctx, AuditCategorySecurity, "totp_confirm", "", true, nil, nil)
	return nil
}

// VerifyTOTP checks a code against the active enrollment. Codes replay the
// matched counter at most once.
func (e *Engine) VerifyTOTP(ctx context.Context, code string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}

	e.totpMu.Lock()
	defer e.totpMu.Unlock()
	return e.verifyTOTPLocked(ctx, code)
}

func (e *Engine) verifyTOTPLocked(ctx context.Context, code string) (bool, error) {
	enrollment, err := e.loadEnrollment(ctx)
	if err != nil {
		return false, err
	}
	if enrollment == nil || !enrollment.Enabled {
		return false, ErrTOTPNotConfigured
	}

	ok, counter, err := e.totp.VerifyCode(enrollment.Secret, code, e.now())
	if err != nil {
		return false, err
	}
	if !ok || counter <= enrollment.LastCounter {
		e.metricInc(MetricTOTPFailure)
		return false, nil
	}

	enrollment.LastCounter = counter
	if err := e.saveEnrollment(ctx, enrollment); err != nil {
		return false, err
	}
	e.metricInc(MetricTOTPSuccess)
	return true, nil
}

// ConsumeBackupCode redeems a single-use backup code and reports how many
// remain.
func (e *Engine) ConsumeBackupCode(ctx context.Context, code string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	e.totpMu.Lock()
	defer e.totpMu.Unlock()
	return e.consumeBackupCodeLocked(ctx, code)
}

func (e *Engine) consumeBackupCodeLocked(ctx context.Context, code string) (int, error) {
	enrollment, err := e.loadEnrollment(ctx)
	if err != nil {
		return 0, err
	}
	if enrollment == nil || !enrollment.Enabled {
		return 0, ErrTOTPNotConfigured
	}

	sum := internal.HashBackupCode(strings.TrimSpace(code))
	want := hex.EncodeToString(sum[:])

	match := -1
	for i, stored := range enrollment.BackupHashes {
		if subtle.ConstantTimeCompare([]byte(stored), []byte(want)) == 1 {
			match = i
		}
	}
	if match < 0 {
		e.metricInc(MetricBackupCodeFailed)
		e.emitAudit(ctx, AuditCategorySecurity, "backup_code", "", false, ErrBackupCodeInvalid, nil)
		return len(enrollment.BackupHashes), ErrBackupCodeInvalid
	}

	enrollment.BackupHashes = append(enrollment.BackupHashes[:match], enrollment.BackupHashes[match+1:]...)
	if err := e.saveEnrollment(ctx, enrollment); err != nil {
		return 0, err
	}

	remaining := len(enrollment.BackupHashes)
	e.metricInc(MetricBackupCodeUsed)
	e.emitAudit(ctx, AuditCategorySecurity, "backup_code", "", true, nil, map[string]string{
		"remaining": strconv.Itoa(remaining),
	})
	return remaining, nil
}

// RegenerateBackupCodes replaces the backup code set. It requires a valid
// TOTP code so a stolen session alone cannot rotate the codes.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, code string) ([]string, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	e.totpMu.Lock()
	defer e.totpMu.Unlock()

	enrollment, err := e.loadEnrollment(ctx)
	if err != nil {
		return nil, err
	}
	if enrollment == nil || !enrollment.Enabled {
		return nil, ErrTOTPNotConfigured
	}

	ok, counter, err := e.totp.VerifyCode(enrollment.Secret, code, e.now())
	if err != nil {
		return nil, err
	}
	if !ok || counter <= enrollment.LastCounter {
		e.metricInc(MetricTOTPFailure)
		return nil, ErrTOTPInvalid
	}

	codes, err := internal.NewBackupCodes(e.config.TOTP.BackupCodeCount, e.config.TOTP.BackupCodeLength)
	if err != nil {
		return nil, err
	}
	enrollment.LastCounter = counter
	enrollment.BackupHashes = hashCodes(codes)
	if err := e.saveEnrollment(ctx, enrollment); err != nil {
		return nil, err
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, AuditCategorySecurity, "backup_code_regenerate", "", true, nil, nil)
	return codes, nil
}

// DisableTOTP removes the enrollment entirely, backup codes included.
func (e *Engine) DisableTOTP(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	e.totpMu.Lock()
	defer e.totpMu.Unlock()

	if err := e.local.Delete(ctx, e.config.TOTP.StorageKey); err != nil {
		return err
	}
	e.emitAudit(ctx, AuditCategorySecurity, "totp_disable", "", true, nil, nil)
	return nil
}

// TOTPEnabled reports whether a confirmed enrollment exists.
func (e *Engine) TOTPEnabled(ctx context.Context) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}

	e.totpMu.Lock()
	defer e.totpMu.Unlock()

	enrollment, err := e.loadEnrollment(ctx)
	if err != nil {
		return false, err
	}
	return enrollment != nil && enrollment.Enabled, nil
}

// RemainingBackupCodes reports how many backup codes are still unredeemed.
func (e *Engine) RemainingBackupCodes(ctx context.Context) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	e.totpMu.Lock()
	defer e.totpMu.Unlock()

	enrollment, err := e.loadEnrollment(ctx)
	if err != nil {
		return 0, err
	}
	if enrollment == nil {
		return 0, ErrTOTPNotConfigured
	}
	return len(enrollment.BackupHashes), nil
}

// verifySecondFactor accepts either a TOTP code or a backup code. Callers
// must hold no totp state; it locks internally.
func (e *Engine) verifySecondFactor(ctx context.Context, code string) (bool, error) {
	e.totpMu.Lock()
	defer e.totpMu.Unlock()

	ok, err := e.verifyTOTPLocked(ctx, code)
	if err != nil || ok {
		return ok, err
	}

	_, err = e.consumeBackupCodeLocked(ctx, code)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrBackupCodeInvalid) {
		return false, nil
	}
	return false, err
}

func (e *Engine) loadEnrollment(ctx context.Context) (*totpEnrollment, error) {
	blob, ok, err := e.local.Get(ctx, e.config.TOTP.StorageKey)
	if err != nil {
		return nil, err
	}
	if !ok || blob == "" {
		return nil, nil
	}

	var enrollment totpEnrollment
	if err := e.sealer.Open(blob, &enrollment); err != nil {
		// An unreadable enrollment cannot be verified against; treat it
		// as absent rather than locking the admin out forever.
		e.metricInc(MetricIntegrityFailure)
		_ = e.local.Delete(ctx, e.config.TOTP.StorageKey)
		return nil, nil
	}
	return &enrollment, nil
}

func (e *Engine) saveEnrollment(ctx context.Context, enrollment *totpEnrollment) error {
	sealed, err := e.sealer.Seal(enrollment)
	if err != nil {
		return err
	}
	return e.local.Set(ctx, e.config.TOTP.StorageKey, sealed)
}

func hashCodes(codes []string) []string {
	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		sum := internal.HashBackupCode(code)
		hashes = append(hashes, hex.EncodeToString(sum[:]))
	}
	return hashes
}
