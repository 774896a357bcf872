package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/twnoc/quizgate/envelope"
	"github.com/twnoc/quizgate/internal"
	"github.com/twnoc/quizgate/internal/audit"
	"github.com/twnoc/quizgate/internal/localstore"
	"github.com/twnoc/quizgate/internal/remotestore"
)

var (
	// ErrEmptyToken rejects blank input before any store is touched.
	ErrEmptyToken = errors.New("token must not be empty")
	// ErrNotFound means no token matches the presented value.
	ErrNotFound = errors.New("token not found")
	// ErrExpired means the token exists but is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrAlreadyUsed means the token was consumed and does not allow reuse.
	ErrAlreadyUsed = errors.New("token already used")
)

// Config tunes the authority. Zero values take the defaults noted per field.
type Config struct {
	StorageKey string // local store key, default "qg_otp_tokens"
	TTLDays    int    // default expiry horizon, default 7

	// Now is the authority clock. Nil means time.Now.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.StorageKey == "" {
		c.StorageKey = "qg_otp_tokens"
	}
	if c.TTLDays <= 0 {
		c.TTLDays = 7
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// GenerateOptions shape a new token. Zero TTLDays takes the authority
// default.
type GenerateOptions struct {
	TTLDays     int
	Description string
	CreatedBy   string
	AllowReuse  bool
}

// Authority owns the token collection. All mutations of the local sealed
// list are serialized by an internal mutex; remote writes happen inside
// the same critical section so local and remote cannot interleave across
// concurrent consumes in one process.
type Authority struct {
	local  localstore.Store
	sealer *envelope.Sealer
	remote remotestore.Store
	sink   audit.Sink
	cfg    Config
	mu     sync.Mutex
}

// NewAuthority creates an Authority. remote may be nil for local-only
// deployments; sink may be nil to disable audit emission.
func NewAuthority(local localstore.Store, sealer *envelope.Sealer, remote remotestore.Store, sink audit.Sink, cfg Config) *Authority {
	cfg.applyDefaults()
	if sink == nil {
		sink = audit.NoOpSink{}
	}
	return &Authority{
		local:  local,
		sealer: sealer,
		remote: remote,
		sink:   sink,
		cfg:    cfg,
	}
}

// Generate mints a token without persisting it. Callers that want the token
// to exist must Persist it.
func (a *Authority) Generate(opts GenerateOptions) (Token, error) {
	value, err := internal.NewTokenString()
	if err != nil {
		return Token{}, fmt.Errorf("generate token: %w", err)
	}

	ttlDays := opts.TTLDays
	if ttlDays <= 0 {
		ttlDays = a.cfg.TTLDays
	}

	now := a.cfg.Now()
	return Token{
		Token:       value,
		CreatedAt:   now.UnixMilli(),
		ExpiresAt:   now.Add(time.Duration(ttlDays) * 24 * time.Hour).UnixMilli(),
		Description: opts.Description,
		CreatedBy:   opts.CreatedBy,
		AllowReuse:  opts.AllowReuse,
	}, nil
}

// Persist stores tok locally and mirrors it to the remote store. The local
// write is required; the remote write is best effort and its outcome is
// reported through synced.
func (a *Authority) Persist(ctx context.Context, tok Token) (synced bool, err error) {
	if tok.Token == "" {
		return false, ErrEmptyToken
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	list, err := a.loadLocal(ctx)
	if err != nil {
		return false, err
	}
	list = upsert(list, tok)
	if err := a.saveLocal(ctx, list); err != nil {
		return false, err
	}

	synced = a.pushRemote(ctx, tok) == nil

	a.emit(ctx, audit.Event{
		Category: audit.CategoryAdmin,
		Action:   "token_generate",
		Success:  true,
		Details: map[string]string{
			"token":  redact(tok.Token),
			"synced": fmt.Sprintf("%t", synced),
		},
	})
	return synced, nil
}

// ListAll returns the merged token view, newest first. Expired tokens are
// filtered out unless includeExpired is set. Remote unavailability degrades
// to the local view.
func (a *Authority) ListAll(ctx context.Context, includeExpired bool) ([]Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	merged, err := a.merged(ctx)
	if err != nil {
		return nil, err
	}
	if includeExpired {
		return merged, nil
	}

	now := a.cfg.Now().UnixMilli()
	kept := merged[:0]
	for _, tok := range merged {
		if !tok.Expired(now) {
			kept = append(kept, tok)
		}
	}
	return kept, nil
}

// Validate classifies the presented token. Outcomes other than blank input
// are result values, not errors.
func (a *Authority) Validate(ctx context.Context, raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{}, ErrEmptyToken
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.classify(ctx, raw)
}

// Consume marks the token used and binds it to resultID. The remote usage
// write is required for success; on remote failure the local mark is rolled
// back and the token stays consumable.
func (a *Authority) Consume(ctx context.Context, raw, resultID string, device map[string]string) (*Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyToken
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.classify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		err := statusError(res.Status)
		a.emitConsume(ctx, raw, false, err.Error())
		return nil, err
	}

	prev, err := a.loadLocal(ctx)
	if err != nil {
		return nil, err
	}

	tok := *res.Token
	tok.UsedAt = a.cfg.Now().UnixMilli()
	tok.ResultID = resultID

	// upsert mutates in place; keep prev intact for the rollback path.
	updated := upsert(append([]Token(nil), prev...), tok)
	if err := a.saveLocal(ctx, updated); err != nil {
		return nil, err
	}

	if err := a.recordRemoteUsage(ctx, tok, device); err != nil {
		// Undo the local mark so a later retry can still consume.
		if undoErr := a.saveLocal(ctx, prev); undoErr != nil {
			err = fmt.Errorf("%w (local rollback failed: %v)", err, undoErr)
		}
		a.emitConsume(ctx, raw, false, err.Error())
		return nil, fmt.Errorf("consume %s: %w", redact(raw), err)
	}

	a.emitConsume(ctx, raw, true, "")
	return &tok, nil
}

// Remove deletes the token from both stores. It reports whether the token
// existed locally; remote deletion is best effort.
func (a *Authority) Remove(ctx context.Context, raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, ErrEmptyToken
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	list, err := a.loadLocal(ctx)
	if err != nil {
		return false, err
	}

	found := false
	kept := list[:0]
	for _, tok := range list {
		if tok.Token == raw {
			found = true
			continue
		}
		kept = append(kept, tok)
	}
	if found {
		if err := a.saveLocal(ctx, kept); err != nil {
			return false, err
		}
	}
	if a.remote != nil {
		_, _ = a.remote.DeleteToken(ctx, raw)
	}

	a.emit(ctx, audit.Event{
		Category: audit.CategoryAdmin,
		Action:   "token_revoke",
		Success:  found,
		Details:  map[string]string{"token": redact(raw)},
	})
	return found, nil
}

// CleanupExpired drops expired tokens from the local cache and reports how
// many were removed. Remote documents are left untouched.
func (a *Authority) CleanupExpired(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	list, err := a.loadLocal(ctx)
	if err != nil {
		return 0, err
	}

	now := a.cfg.Now().UnixMilli()
	kept := list[:0]
	for _, tok := range list {
		if !tok.Expired(now) {
			kept = append(kept, tok)
		}
	}
	removed := len(list) - len(kept)
	if removed > 0 {
		if err := a.saveLocal(ctx, kept); err != nil {
			return 0, err
		}
	}
	return removed, nil
}

// Statistics summarizes the merged token population.
func (a *Authority) Statistics(ctx context.Context) (Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	merged, err := a.merged(ctx)
	if err != nil {
		return Stats{}, err
	}

	now := a.cfg.Now().UnixMilli()
	stats := Stats{Total: len(merged)}
	for _, tok := range merged {
		switch {
		case tok.Expired(now):
			stats.Expired++
		case tok.Used() && !tok.AllowReuse:
			stats.Used++
		default:
			stats.Active++
		}
	}
	return stats, nil
}

// Usage lists the remote usage records for one token.
func (a *Authority) Usage(ctx context.Context, raw string) ([]remotestore.UsageRecord, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyToken
	}
	if a.remote == nil {
		return nil, nil
	}
	return a.remote.ListUsage(ctx, raw)
}

// ShareableURL builds the link a quiz taker opens to redeem the token.
func ShareableURL(base, token string) string {
	return strings.TrimRight(base, "/") + "/?otp=" + url.QueryEscape(token)
}

// classify expects the mutation lock to be held.
func (a *Authority) classify(ctx context.Context, raw string) (Result, error) {
	merged, err := a.merged(ctx)
	if err != nil {
		return Result{}, err
	}

	for i := range merged {
		tok := merged[i]
		if tok.Token != raw {
			continue
		}
		now := a.cfg.Now().UnixMilli()
		switch {
		case tok.Expired(now):
			return Result{Status: StatusExpired, Token: &tok}, nil
		case tok.Used() && !tok.AllowReuse:
			return Result{Status: StatusUsed, Token: &tok}, nil
		default:
			return Result{Status: StatusValid, Token: &tok}, nil
		}
	}
	return Result{Status: StatusNotFound}, nil
}

// merged expects the mutation lock to be held. Remote usage state wins only
// when it is strictly newer; a locally used token never regresses to unused.
func (a *Authority) merged(ctx context.Context) ([]Token, error) {
	local, err := a.loadLocal(ctx)
	if err != nil {
		return nil, err
	}

	byToken := make(map[string]int, len(local))
	merged := append([]Token(nil), local...)
	for i, tok := range merged {
		byToken[tok.Token] = i
	}

	if a.remote != nil {
		docs, err := a.remote.ListTokens(ctx)
		if err == nil {
			for _, doc := range docs {
				remote := fromDocument(doc)
				i, ok := byToken[remote.Token]
				if !ok {
					byToken[remote.Token] = len(merged)
					merged = append(merged, remote)
					continue
				}
				if remote.UsedAt != 0 && (merged[i].UsedAt == 0 || merged[i].UsedAt < remote.UsedAt) {
					merged[i].UsedAt = remote.UsedAt
					merged[i].ResultID = remote.ResultID
				}
			}
		}
		// Remote errors degrade to the local view.
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt > merged[j].CreatedAt
	})
	return merged, nil
}

func (a *Authority) loadLocal(ctx context.Context) ([]Token, error) {
	raw, ok, err := a.local.Get(ctx, a.cfg.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var list []Token
	if a.sealer != nil {
		err = a.sealer.Open(raw, &list)
	} else {
		err = json.Unmarshal([]byte(raw), &list)
	}
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	return list, nil
}

func (a *Authority) saveLocal(ctx context.Context, list []Token) error {
	var (
		encoded string
		err     error
	)
	if a.sealer != nil {
		encoded, err = a.sealer.Seal(list)
	} else {
		var raw []byte
		raw, err = json.Marshal(list)
		encoded = string(raw)
	}
	if err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	if err := a.local.Set(ctx, a.cfg.StorageKey, encoded); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

func (a *Authority) pushRemote(ctx context.Context, tok Token) error {
	if a.remote == nil {
		return nil
	}
	return a.remote.SaveToken(ctx, toDocument(tok))
}

// recordRemoteUsage is the hard half of Consume. A missing remote document
// is repaired by a full save before the usage record is appended.
func (a *Authority) recordRemoteUsage(ctx context.Context, tok Token, device map[string]string) error {
	if a.remote == nil {
		return nil
	}

	err := a.remote.UpdateTokenUsage(ctx, tok.Token, tok.UsedAt, tok.ResultID)
	if errors.Is(err, remotestore.ErrTokenMissing) {
		err = a.remote.SaveToken(ctx, toDocument(tok))
	}
	if err != nil {
		return err
	}

	return a.remote.AppendUsage(ctx, remotestore.UsageRecord{
		Token:    tok.Token,
		ResultID: tok.ResultID,
		UsedAt:   tok.UsedAt,
		Device:   device,
	})
}

func (a *Authority) emit(ctx context.Context, event audit.Event) {
	event.Timestamp = a.cfg.Now().UnixMilli()
	a.sink.Emit(ctx, event)
}

func (a *Authority) emitConsume(ctx context.Context, raw string, success bool, errMsg string) {
	a.emit(ctx, audit.Event{
		Category: audit.CategoryAuth,
		Action:   "token_consume",
		Success:  success,
		Error:    errMsg,
		Details:  map[string]string{"token": redact(raw)},
	})
}

func statusError(s Status) error {
	switch s {
	case StatusNotFound:
		return ErrNotFound
	case StatusExpired:
		return ErrExpired
	case StatusUsed:
		return ErrAlreadyUsed
	default:
		return fmt.Errorf("unexpected token status %q", s)
	}
}

func upsert(list []Token, tok Token) []Token {
	for i := range list {
		if list[i].Token == tok.Token {
			list[i] = tok
			return list
		}
	}
	return append(list, tok)
}

// redact keeps enough of a token to correlate audit entries without
// recording a redeemable value.
func redact(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "…"
}

func toDocument(tok Token) remotestore.TokenDocument {
	return remotestore.TokenDocument{
		Token:       tok.Token,
		CreatedAt:   tok.CreatedAt,
		ExpiresAt:   tok.ExpiresAt,
		UsedAt:      tok.UsedAt,
		ResultID:    tok.ResultID,
		Description: tok.Description,
		CreatedBy:   tok.CreatedBy,
		AllowReuse:  tok.AllowReuse,
	}
}

func fromDocument(doc remotestore.TokenDocument) Token {
	return Token{
		Token:       doc.Token,
		CreatedAt:   doc.CreatedAt,
		ExpiresAt:   doc.ExpiresAt,
		UsedAt:      doc.UsedAt,
		ResultID:    doc.ResultID,
		Description: doc.Description,
		CreatedBy:   doc.CreatedBy,
		AllowReuse:  doc.AllowReuse,
	}
}
