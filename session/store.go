package session

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/twnoc/quizgate/envelope"
	"github.com/twnoc/quizgate/internal"
	"github.com/twnoc/quizgate/internal/localstore"
)

// Config tunes the session store. Zero values take the defaults noted per
// field.
type Config struct {
	TTL        time.Duration // absolute lifetime, default 24h
	IdleTTL    time.Duration // inactivity horizon, default 30m
	SoonWindow time.Duration // ExpiringSoon threshold, default 5m
	StorageKey string        // local store key, default "qg_admin_session"

	// Now is the store clock. Nil means time.Now.
	Now func() time.Time

	// OnUnreadable fires when a persisted session blob fails to open and
	// is discarded. Nil means no observer.
	OnUnreadable func()
}

func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	if c.SoonWindow <= 0 {
		c.SoonWindow = 5 * time.Minute
	}
	if c.StorageKey == "" {
		c.StorageKey = "qg_admin_session"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Store persists at most one live admin session, sealed at rest. All
// operations are serialized by an internal mutex.
type Store struct {
	local  localstore.Store
	sealer *envelope.Sealer
	cfg    Config
	mu     sync.Mutex
}

// NewStore creates a Store. sealer must not be nil; session blobs never
// touch storage unsealed.
func NewStore(local localstore.Store, sealer *envelope.Sealer, cfg Config) *Store {
	cfg.applyDefaults()
	return &Store{local: local, sealer: sealer, cfg: cfg}
}

// Create opens a fresh session for owner bound to fingerprint, replacing
// any existing session.
func (s *Store) Create(ctx context.Context, owner, fingerprint string) (*Session, error) {
	nonce, err := internal.NewNonce()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	now := s.cfg.Now().UnixMilli()
	sess := &Session{
		Owner:          owner,
		IssuedAt:       now,
		LastActivityAt: now,
		Fingerprint:    fingerprint,
		CSRFNonce:      nonce,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the live session for the presented fingerprint, refreshing
// its activity timestamp. An expired, idle, unreadable, or wrong-device
// session is cleared from storage and reported as absent.
func (s *Store) Get(ctx context.Context, fingerprint string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx, fingerprint)
}

func (s *Store) get(ctx context.Context, fingerprint string) (*Session, error) {
	sess, err := s.live(ctx, fingerprint)
	if err != nil || sess == nil {
		return nil, err
	}

	sess.LastActivityAt = s.cfg.Now().UnixMilli()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// live loads the stored session and clears it when it fails a validity
// check. Unlike get it does not refresh activity, so read-only probes do
// not keep a session alive.
func (s *Store) live(ctx context.Context, fingerprint string) (*Session, error) {
	sess, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	now := s.cfg.Now().UnixMilli()
	switch {
	case now-sess.IssuedAt >= s.cfg.TTL.Milliseconds(),
		now-sess.LastActivityAt >= s.cfg.IdleTTL.Milliseconds(),
		sess.Fingerprint != fingerprint:
		if err := s.local.Delete(ctx, s.cfg.StorageKey); err != nil {
			return nil, fmt.Errorf("clear session: %w", err)
		}
		return nil, nil
	}
	return sess, nil
}

// IsValid reports whether a live session exists for the fingerprint.
func (s *Store) IsValid(ctx context.Context, fingerprint string) (bool, error) {
	sess, err := s.Get(ctx, fingerprint)
	return sess != nil, err
}

// Destroy removes any stored session.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.local.Delete(ctx, s.cfg.StorageKey); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// Remaining reports the time left before the session is forced out, the
// nearer of the absolute and idle horizons. Zero means no live session.
func (s *Store) Remaining(ctx context.Context, fingerprint string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.live(ctx, fingerprint)
	if err != nil || sess == nil {
		return 0, err
	}

	now := s.cfg.Now().UnixMilli()
	absolute := sess.IssuedAt + s.cfg.TTL.Milliseconds() - now
	idle := sess.LastActivityAt + s.cfg.IdleTTL.Milliseconds() - now
	remaining := absolute
	if idle < remaining {
		remaining = idle
	}
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining) * time.Millisecond, nil
}

// ExpiringSoon reports whether the session is live but within the
// configured warning window of being forced out.
func (s *Store) ExpiringSoon(ctx context.Context, fingerprint string) (bool, error) {
	remaining, err := s.Remaining(ctx, fingerprint)
	if err != nil {
		return false, err
	}
	return remaining > 0 && remaining <= s.cfg.SoonWindow, nil
}

// VerifyCSRF checks nonce against the live session in constant time. A
// missing session always fails.
func (s *Store) VerifyCSRF(ctx context.Context, fingerprint, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.live(ctx, fingerprint)
	if err != nil {
		return false, err
	}
	if sess == nil || nonce == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(sess.CSRFNonce), []byte(nonce)) == 1, nil
}

func (s *Store) load(ctx context.Context) (*Session, error) {
	raw, ok, err := s.local.Get(ctx, s.cfg.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var sess Session
	if err := s.sealer.Open(raw, &sess); err != nil {
		// An unreadable blob is treated as no session at all.
		if s.cfg.OnUnreadable != nil {
			s.cfg.OnUnreadable()
		}
		if delErr := s.local.Delete(ctx, s.cfg.StorageKey); delErr != nil {
			return nil, fmt.Errorf("clear session: %w", delErr)
		}
		return nil, nil
	}
	return &sess, nil
}

func (s *Store) save(ctx context.Context, sess *Session) error {
	sealed, err := s.sealer.Seal(sess)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := s.local.Set(ctx, s.cfg.StorageKey, sealed); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
