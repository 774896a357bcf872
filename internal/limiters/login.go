package limiters

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/twnoc/quizgate/internal/localstore"
)

// GuardConfig tunes the login guard thresholds. Zero values take the
// defaults noted per field.
type GuardConfig struct {
	MaxAttempts      int           // lockout threshold, default 5
	CaptchaThreshold int           // captcha kicks in earlier, default 3
	LockoutDuration  time.Duration // default 15m
	AttemptWindow    time.Duration // counter reset window, default 1h
	BackoffCap       time.Duration // exponential delay ceiling, default 30s
	StorageKey       string        // local store key, default "qg_login_attempts"
}

func (c *GuardConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.CaptchaThreshold <= 0 {
		c.CaptchaThreshold = 3
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = 15 * time.Minute
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = time.Hour
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.StorageKey == "" {
		c.StorageKey = "qg_login_attempts"
	}
}

// AttemptRecord is the persisted failure state. Timestamps are milliseconds
// since epoch; LockedUntil is zero while no lockout is active.
type AttemptRecord struct {
	Count         int   `json:"count"`
	LastAttemptAt int64 `json:"lastAttemptAt"`
	LockedUntil   int64 `json:"lockedUntil,omitempty"`
}

// BlockStatus is the result of Guard.IsBlocked.
type BlockStatus struct {
	Blocked   bool
	Remaining time.Duration
}

// Guard tracks consecutive login failures and enforces captcha, backoff, and
// lockout stages. All mutations of the persisted record are serialized by an
// internal mutex; the guard is safe for concurrent use.
type Guard struct {
	store localstore.Store
	cfg   GuardConfig
	now   func() time.Time
	mu    sync.Mutex
}

// NewGuard creates a Guard over the given store. now may be nil.
func NewGuard(store localstore.Store, cfg GuardConfig, now func() time.Time) *Guard {
	cfg.applyDefaults()
	if now == nil {
		now = time.Now
	}
	return &Guard{store: store, cfg: cfg, now: now}
}

func (g *Guard) load(ctx context.Context) (AttemptRecord, error) {
	raw, ok, err := g.store.Get(ctx, g.cfg.StorageKey)
	if err != nil || !ok {
		return AttemptRecord{}, err
	}
	var rec AttemptRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// Unreadable counters reset the guard rather than wedging login.
		return AttemptRecord{}, nil
	}
	return rec, nil
}

func (g *Guard) save(ctx context.Context, rec AttemptRecord) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, g.cfg.StorageKey, string(encoded))
}

// RecordFailure registers one failed attempt. It reports whether the failure
// tripped the lockout threshold.
func (g *Guard) RecordFailure(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := g.load(ctx)
	if err != nil {
		return false, err
	}

	now := g.now().UnixMilli()
	if now-rec.LastAttemptAt > g.cfg.AttemptWindow.Milliseconds() {
		rec.Count = 1
	} else {
		rec.Count++
	}
	rec.LastAttemptAt = now

	locked := rec.Count >= g.cfg.MaxAttempts
	if locked {
		rec.LockedUntil = now + g.cfg.LockoutDuration.Milliseconds()
	}

	if err := g.save(ctx, rec); err != nil {
		return false, err
	}
	return locked, nil
}

// RecordSuccess clears the failure record entirely.
func (g *Guard) RecordSuccess(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Delete(ctx, g.cfg.StorageKey)
}

// Reset is the administrative equivalent of RecordSuccess.
func (g *Guard) Reset(ctx context.Context) error {
	return g.RecordSuccess(ctx)
}

// IsBlocked reports the lockout state. A lockout whose deadline has passed is
// cleared as a side effect.
func (g *Guard) IsBlocked(ctx context.Context) (BlockStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := g.load(ctx)
	if err != nil {
		return BlockStatus{}, err
	}
	if rec.LockedUntil == 0 {
		return BlockStatus{}, nil
	}

	now := g.now().UnixMilli()
	if now < rec.LockedUntil {
		return BlockStatus{
			Blocked:   true,
			Remaining: time.Duration(rec.LockedUntil-now) * time.Millisecond,
		}, nil
	}

	rec.LockedUntil = 0
	rec.Count = 0
	if err := g.save(ctx, rec); err != nil {
		return BlockStatus{}, err
	}
	return BlockStatus{}, nil
}

// RequiresCaptcha reports whether enough failures accumulated that the caller
// must present a captcha before the next attempt.
func (g *Guard) RequiresCaptcha(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := g.load(ctx)
	if err != nil {
		return false, err
	}
	return rec.Count >= g.cfg.CaptchaThreshold, nil
}

// NextDelay returns the mandatory wait before the next attempt is evaluated:
// zero through the second failure, then 2^(count-2) seconds capped at the
// configured ceiling.
func (g *Guard) NextDelay(ctx context.Context) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := g.load(ctx)
	if err != nil {
		return 0, err
	}
	if rec.Count <= 2 {
		return 0, nil
	}

	shift := rec.Count - 2
	if shift > 30 {
		shift = 30
	}
	delay := time.Duration(1<<uint(shift)) * time.Second
	if delay > g.cfg.BackoffCap {
		delay = g.cfg.BackoffCap
	}
	return delay, nil
}

// Attempts exposes the current failure count for UI hints.
func (g *Guard) Attempts(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := g.load(ctx)
	if err != nil {
		return 0, err
	}
	return rec.Count, nil
}
