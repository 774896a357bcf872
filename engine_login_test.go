package quizgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func loginFailN(t *testing.T, f *engineFixture, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if _, err := f.engine.Login(ctx, "admin", "wrong", testDevice()); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d: err = %v, want ErrInvalidCredentials", i+1, err)
		}
	}
}

func TestLoginSuccessCreatesSession(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := f.engine.Login(ctx, "admin", "hunter2", testDevice())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.TOTPRequired || res.Session == nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Session.Owner != "admin" {
		t.Fatalf("owner = %q", res.Session.Owner)
	}

	ok, err := f.engine.IsAuthenticated(ctx, testDevice())
	if err != nil || !ok {
		t.Fatalf("IsAuthenticated = %t, %v", ok, err)
	}
}

func TestLoginWrongUsernameRejected(t *testing.T) {
	f := newTestEngine(t, nil)

	if _, err := f.engine.Login(context.Background(), "root", "hunter2", testDevice()); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginLockoutAfterMaxFailures(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()

	loginFailN(t, f, 5)

	// Correct credentials are never even checked while blocked.
	if _, err := f.engine.Login(ctx, "admin", "hunter2", testDevice()); !errors.Is(err, ErrLoginBlocked) {
		t.Fatalf("err = %v, want ErrLoginBlocked", err)
	}

	status, err := f.engine.LoginBlocked(ctx)
	if err != nil {
		t.Fatalf("LoginBlocked: %v", err)
	}
	if !status.Blocked || status.Remaining <= 0 {
		t.Fatalf("status = %+v", status)
	}

	f.advance(15*time.Minute + time.Second)
	if _, err := f.engine.Login(ctx, "admin", "hunter2", testDevice()); err != nil {
		t.Fatalf("Login after lockout: %v", err)
	}
}

func TestCaptchaAndBackoffSurface(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()

	loginFailN(t, f, 3)

	required, err := f.engine.CaptchaRequired(ctx)
	if err != nil || !required {
		t.Fatalf("CaptchaRequired = %t, %v", required, err)
	}

	delay, err := f.engine.NextLoginDelay(ctx)
	if err != nil {
		t.Fatalf("NextLoginDelay: %v", err)
	}
	if delay != 2*time.Second {
		t.Fatalf("delay = %v, want 2s", delay)
	}
}

func TestResetLoginGuard(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()

	loginFailN(t, f, 5)
	if err := f.engine.ResetLoginGuard(ctx); err != nil {
		t.Fatalf("ResetLoginGuard: %v", err)
	}
	if _, err := f.engine.Login(ctx, "admin", "hunter2", testDevice()); err != nil {
		t.Fatalf("Login after reset: %v", err)
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := f.engine.Login(ctx, "admin", "hunter2", testDevice()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.engine.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	ok, err := f.engine.IsAuthenticated(ctx, testDevice())
	if err != nil || ok {
		t.Fatalf("IsAuthenticated after logout = %t, %v", ok, err)
	}
	if _, err := f.engine.CurrentSession(ctx, testDevice()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("CurrentSession err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionIdleAndAbsoluteExpiry(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := f.engine.Login(ctx, "admin", "hunter2", testDevice()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Activity inside the idle window keeps the session alive.
	f.advance(29 * time.Minute)
	if ok, _ := f.engine.IsAuthenticated(ctx, testDevice()); !ok {
		t.Fatal("session dropped inside idle window")
	}

	f.advance(31 * time.Minute)
	if ok, _ := f.engine.IsAuthenticated(ctx, testDevice()); ok {
		t.Fatal("session survived idle expiry")
	}
}

func TestSessionBoundToDevice(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := f.engine.Login(ctx, "admin", "hunter2", testDevice()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	other := testDevice()
	other.UserAgent = "different-browser"
	if ok, _ := f.engine.IsAuthenticated(ctx, other); ok {
		t.Fatal("session accepted from a different device")
	}
}

func TestSessionRemainingAndExpiringSoon(t *testing.T) {
	f := newTestEngine(t, func(cfg *Config) {
		cfg.Session.IdleTTL = 10 * time.Minute
	})
	ctx := context.Background()

	if _, err := f.engine.Login(ctx, "admin", "hunter2", testDevice()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	left, err := f.engine.SessionRemaining(ctx, testDevice())
	if err != nil {
		t.Fatalf("SessionRemaining: %v", err)
	}
	if left != 10*time.Minute {
		t.Fatalf("remaining = %v, want 10m", left)
	}

	f.advance(6 * time.Minute)
	soon, err := f.engine.SessionExpiringSoon(ctx, testDevice())
	if err != nil || !soon {
		t.Fatalf("SessionExpiringSoon = %t, %v", soon, err)
	}
}

func TestVerifyCSRF(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := f.engine.Login(ctx, "admin", "hunter2", testDevice())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	ok, err := f.engine.VerifyCSRF(ctx, testDevice(), res.Session.CSRFNonce)
	if err != nil || !ok {
		t.Fatalf("genuine nonce = %t, %v", ok, err)
	}
	ok, err = f.engine.VerifyCSRF(ctx, testDevice(), "forged")
	if err != nil || ok {
		t.Fatalf("forged nonce = %t, %v", ok, err)
	}
}
