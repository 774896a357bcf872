package quizgate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func totpCodeAt(t *testing.T, secretBase32 string, at time.Time) string {
	t.Helper()
	secret, err := b32.DecodeString(secretBase32)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	code, err := hotpCode(secret, at.Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotp: %v", err)
	}
	return code
}

func enrollAndConfirm(t *testing.T, f *engineFixture) *TOTPSetup {
	t.Helper()
	ctx := context.Background()

	setup, err := f.engine.EnrollTOTP(ctx, "admin")
	if err != nil {
		t.Fatalf("EnrollTOTP: %v", err)
	}
	if err := f.engine.ConfirmTOTP(ctx, totpCodeAt(t, setup.Secret, *f.clock)); err != nil {
		t.Fatalf("ConfirmTOTP: %v", err)
	}
	return setup
}

func TestEnrollTOTP(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()

	setup, err := f.engine.EnrollTOTP(ctx, "admin")
	if err != nil {
		t.Fatalf("EnrollTOTP: %v", err)
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/QuizGate") {
		t.Fatalf("URI = %q", setup.URI)
	}
	if len(setup.BackupCodes) != 10 {
		t.Fatalf("backup codes = %d, want 10", len(setup.BackupCodes))
	}
	for _, code := range setup.BackupCodes {
		if len(code) != 8 {
			t.Fatalf("backup code %q, want 8 digits", code)
		}
	}

	// Enrollment is inert until confirmed.
	enabled, err := f.engine.TOTPEnabled(ctx)
	if err != nil || enabled {
		t.Fatalf("TOTPEnabled before confirm = %t, %v", enabled, err)
	}

	if err := f.engine.ConfirmTOTP(ctx, totpCodeAt(t, setup.Secret, *f.clock)); err != nil {
		t.Fatalf("ConfirmTOTP: %v", err)
	}
	enabled, err = f.engine.TOTPEnabled(ctx)
	if err != nil || !enabled {
		t.Fatalf("TOTPEnabled after confirm = %t, %v", enabled, err)
	}

	if _, err := f.engine.EnrollTOTP(ctx, "admin"); !errors.Is(err, ErrTOTPAlreadyEnabled) {
		t.Fatalf("re-enroll err = %v, want ErrTOTPAlreadyEnabled", err)
	}
}

func TestConfirmTOTPWrongCode(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := f.engine.EnrollTOTP(ctx, "admin"); err != nil {
		t.Fatalf("EnrollTOTP: %v", err)
	}
	if err := f.engine.ConfirmTOTP(ctx, "000000"); !errors.Is(err, ErrTOTPInvalid) {
		t.Fatalf("err = %v, want ErrTOTPInvalid", err)
	}
	if err := f.engine.ConfirmTOTP(ctx, "not-a-code"); !errors.Is(err, ErrTOTPInvalid) {
		t.Fatalf("err = %v, want ErrTOTPInvalid", err)
	}
}

func TestVerifyTOTPSkewAndReplay(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()
	setup := enrollAndConfirm(t, f)

	// The next step's code, one period ahead of confirmation.
	f.advance(30 * time.Second)
	code := totpCodeAt(t, setup.Secret, *f.clock)

	ok, err := f.engine.VerifyTOTP(ctx, code)
	if err != nil || !ok {
		t.Fatalf("VerifyTOTP = %t, %v", ok, err)
	}

	// Same code again replays the matched counter.
	ok, err = f.engine.VerifyTOTP(ctx, code)
	if err != nil || ok {
		t.Fatalf("replayed code = %t, %v", ok, err)
	}

	// A code from the next step still inside the skew window verifies.
	future := totpCodeAt(t, setup.Secret, f.clock.Add(30*time.Second))
	ok, err = f.engine.VerifyTOTP(ctx, future)
	if err != nil || !ok {
		t.Fatalf("skewed code = %t, %v", ok, err)
	}
}

func TestVerifyTOTPNotConfigured(t *testing.T) {
	f := newTestEngine(t, nil)

	if _, err := f.engine.VerifyTOTP(context.Background(), "123456"); !errors.Is(err, ErrTOTPNotConfigured) {
		t.Fatalf("err = %v, want ErrTOTPNotConfigured", err)
	}
}

func TestLoginWithTOTP(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()
	setup := enrollAndConfirm(t, f)

	res, err := f.engine.Login(ctx, "admin", "hunter2", testDevice())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.TOTPRequired || res.Session != nil {
		t.Fatalf("result = %+v", res)
	}
	if ok, _ := f.engine.IsAuthenticated(ctx, testDevice()); ok {
		t.Fatal("authenticated before second factor")
	}

	f.advance(30 * time.Second)
	res, err = f.engine.ConfirmLoginTOTP(ctx, "admin", totpCodeAt(t, setup.Secret, *f.clock), testDevice())
	if err != nil {
		t.Fatalf("ConfirmLoginTOTP: %v", err)
	}
	if res.Session == nil {
		t.Fatalf("result = %+v", res)
	}
	if ok, _ := f.engine.IsAuthenticated(ctx, testDevice()); !ok {
		t.Fatal("not authenticated after second factor")
	}
}

func TestConfirmLoginTOTPChallengeIsSingleUse(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()
	setup := enrollAndConfirm(t, f)

	if _, err := f.engine.Login(ctx, "admin", "hunter2", testDevice()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// A wrong code spends the challenge.
	if _, err := f.engine.ConfirmLoginTOTP(ctx, "admin", "000000", testDevice()); !errors.Is(err, ErrTOTPInvalid) {
		t.Fatalf("err = %v, want ErrTOTPInvalid", err)
	}

	f.advance(30 * time.Second)
	code := totpCodeAt(t, setup.Secret, *f.clock)
	if _, err := f.engine.ConfirmLoginTOTP(ctx, "admin", code, testDevice()); !errors.Is(err, ErrTOTPRequired) {
		t.Fatalf("err = %v, want ErrTOTPRequired", err)
	}
}

func TestConfirmLoginTOTPChallengeExpires(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()
	setup := enrollAndConfirm(t, f)

	if _, err := f.engine.Login(ctx, "admin", "hunter2", testDevice()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	f.advance(6 * time.Minute)
	code := totpCodeAt(t, setup.Secret, *f.clock)
	if _, err := f.engine.ConfirmLoginTOTP(ctx, "admin", code, testDevice()); !errors.Is(err, ErrTOTPRequired) {
		t.Fatalf("err = %v, want ErrTOTPRequired", err)
	}
}

func TestConfirmLoginTOTPWithoutPending(t *testing.T) {
	f := newTestEngine(t, nil)
	enrollAndConfirm(t, f)

	if _, err := f.engine.ConfirmLoginTOTP(context.Background(), "admin", "123456", testDevice()); !errors.Is(err, ErrTOTPRequired) {
		t.Fatalf("err = %v, want ErrTOTPRequired", err)
	}
}

func TestBackupCodeCompletesLoginOnce(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()
	setup := enrollAndConfirm(t, f)
	backup := setup.BackupCodes[0]

	if _, err := f.engine.Login(ctx, "admin", "hunter2", testDevice()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	res, err := f.engine.ConfirmLoginTOTP(ctx, "admin", backup, testDevice())
	if err != nil || res.Session == nil {
		t.Fatalf("backup login = %+v, %v", res, err)
	}

	remaining, err := f.engine.RemainingBackupCodes(ctx)
	if err != nil || remaining != 9 {
		t.Fatalf("remaining = %d, %v", remaining, err)
	}

	if err := f.engine.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.engine.Login(ctx, "admin", "hunter2", testDevice()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := f.engine.ConfirmLoginTOTP(ctx, "admin", backup, testDevice()); !errors.Is(err, ErrTOTPInvalid) {
		t.Fatalf("reused backup code err = %v, want ErrTOTPInvalid", err)
	}
}

func TestRegenerateBackupCodes(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()
	setup := enrollAndConfirm(t, f)

	f.advance(30 * time.Second)
	codes, err := f.engine.RegenerateBackupCodes(ctx, totpCodeAt(t, setup.Secret, *f.clock))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("codes = %d, want 10", len(codes))
	}

	// Old codes are revoked, new ones redeem.
	if _, err := f.engine.ConsumeBackupCode(ctx, setup.BackupCodes[0]); !errors.Is(err, ErrBackupCodeInvalid) {
		t.Fatalf("old code err = %v, want ErrBackupCodeInvalid", err)
	}
	remaining, err := f.engine.ConsumeBackupCode(ctx, codes[0])
	if err != nil || remaining != 9 {
		t.Fatalf("new code = %d, %v", remaining, err)
	}
}

func TestRegenerateBackupCodesRequiresFreshCode(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()
	setup := enrollAndConfirm(t, f)

	// The confirmation code's counter was already recorded; replaying it
	// must not rotate the codes.
	replayed := totpCodeAt(t, setup.Secret, *f.clock)
	if _, err := f.engine.RegenerateBackupCodes(ctx, replayed); !errors.Is(err, ErrTOTPInvalid) {
		t.Fatalf("err = %v, want ErrTOTPInvalid", err)
	}
}

func TestDisableTOTP(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()
	enrollAndConfirm(t, f)

	if err := f.engine.DisableTOTP(ctx); err != nil {
		t.Fatalf("DisableTOTP: %v", err)
	}
	enabled, err := f.engine.TOTPEnabled(ctx)
	if err != nil || enabled {
		t.Fatalf("TOTPEnabled = %t, %v", enabled, err)
	}

	// Logins fall back to single factor.
	res, err := f.engine.Login(ctx, "admin", "hunter2", testDevice())
	if err != nil || res.Session == nil {
		t.Fatalf("Login after disable = %+v, %v", res, err)
	}
}

func TestTOTPStateSealedAtRest(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()
	setup := enrollAndConfirm(t, f)

	blob, ok, err := f.local.Get(ctx, "qg_totp")
	if err != nil || !ok {
		t.Fatalf("stored enrollment: %t, %v", ok, err)
	}
	if strings.Contains(blob, setup.Secret) {
		t.Fatal("totp secret stored in the clear")
	}
}
