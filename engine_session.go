package quizgate

import (
	"context"
	"time"
)

// IsAuthenticated reports whether a live admin session exists for this
// device. Checking refreshes the idle window.
func (e *Engine) IsAuthenticated(ctx context.Context, device DeviceInfo) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	sess, err := e.sessions.Get(ctx, device.Fingerprint())
	if err != nil {
		return false, err
	}
	return sess != nil, nil
}

// CurrentSession returns the live session for this device, refreshing the
// idle window, or ErrSessionNotFound.
func (e *Engine) CurrentSession(ctx context.Context, device DeviceInfo) (*Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	sess, err := e.sessions.Get(ctx, device.Fingerprint())
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// SessionRemaining reports how long until the session expires, whichever
// of the absolute and idle horizons comes first. Zero means no live
// session. It does not refresh the idle window.
func (e *Engine) SessionRemaining(ctx context.Context, device DeviceInfo) (time.Duration, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return e.sessions.Remaining(ctx, device.Fingerprint())
}

// SessionExpiringSoon reports whether the session is inside the configured
// warning window, so a caller can prompt before the session drops.
func (e *Engine) SessionExpiringSoon(ctx context.Context, device DeviceInfo) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	return e.sessions.ExpiringSoon(ctx, device.Fingerprint())
}

// VerifyCSRF checks a presented anti-forgery nonce against the live
// session for this device.
func (e *Engine) VerifyCSRF(ctx context.Context, device DeviceInfo, nonce string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	return e.sessions.VerifyCSRF(ctx, device.Fingerprint(), nonce)
}
