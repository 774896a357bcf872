package quizgate

import (
	"context"
	"errors"

	"github.com/twnoc/quizgate/internal/tokens"
)

// GenerateToken mints an authorization token without persisting it. Most
// callers want IssueToken.
func (e *Engine) GenerateToken(opts TokenOptions) (Token, error) {
	if !e.ready() {
		return Token{}, ErrEngineNotReady
	}
	return e.authority.Generate(opts)
}

// IssueToken mints and persists an authorization token. synced reports
// whether the remote mirror accepted it; a false synced is not an error,
// the token works locally and the next consume will repair the remote copy.
func (e *Engine) IssueToken(ctx context.Context, opts TokenOptions) (Token, bool, error) {
	if !e.ready() {
		return Token{}, false, ErrEngineNotReady
	}

	tok, err := e.authority.Generate(opts)
	if err != nil {
		return Token{}, false, err
	}
	synced, err := e.authority.Persist(ctx, tok)
	if err != nil {
		return Token{}, false, err
	}

	e.metricInc(MetricTokenGenerated)
	if !synced {
		e.metricInc(MetricRemoteSyncFailure)
	}
	return tok, synced, nil
}

// ListTokens returns the merged local and remote token view, newest first.
func (e *Engine) ListTokens(ctx context.Context, includeExpired bool) ([]Token, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.authority.ListAll(ctx, includeExpired)
}

// ValidateToken classifies the presented token without consuming it.
func (e *Engine) ValidateToken(ctx context.Context, raw string) (TokenValidation, error) {
	if !e.ready() {
		return TokenValidation{}, ErrEngineNotReady
	}

	start := e.now()
	res, err := e.authority.Validate(ctx, raw)
	e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
	if err != nil {
		return TokenValidation{}, err
	}

	switch res.Status {
	case TokenNotFound:
		e.metricInc(MetricTokenNotFound)
	case TokenExpired:
		e.metricInc(MetricTokenExpired)
	case TokenUsed:
		e.metricInc(MetricTokenAlreadyUsed)
	}
	return res, nil
}

// ConsumeToken redeems the token for resultID and returns a signed receipt
// the result page can later present as proof. The remote usage write is
// required; ErrRemoteUnavailable means nothing was consumed.
func (e *Engine) ConsumeToken(ctx context.Context, raw, resultID string, device DeviceInfo) (*Receipt, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	tok, err := e.authority.Consume(ctx, raw, resultID, device.asMap())
	if err != nil {
		e.metricInc(MetricTokenConsumeFailed)
		switch {
		case errors.Is(err, tokens.ErrNotFound):
			e.metricInc(MetricTokenNotFound)
		case errors.Is(err, tokens.ErrExpired):
			e.metricInc(MetricTokenExpired)
		case errors.Is(err, tokens.ErrAlreadyUsed):
			e.metricInc(MetricTokenAlreadyUsed)
		case errors.Is(err, ErrRemoteUnavailable):
			e.metricInc(MetricRemoteSyncFailure)
		}
		return nil, err
	}

	receipt, err := e.receipts.Sign(tok.Token, tok.ResultID, tok.UsedAt)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTokenConsumed)
	return &receipt, nil
}

// VerifyReceipt checks a signed result receipt.
func (e *Engine) VerifyReceipt(signed string) (*Receipt, error) {
	if e == nil || e.receipts == nil {
		return nil, ErrEngineNotReady
	}
	return e.receipts.Verify(signed)
}

// RemoveToken revokes the token in both stores. It reports whether the
// token existed locally.
func (e *Engine) RemoveToken(ctx context.Context, raw string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	found, err := e.authority.Remove(ctx, raw)
	if err == nil && found {
		e.metricInc(MetricTokenRevoked)
	}
	return found, err
}

// CleanupExpiredTokens drops expired tokens from the local cache.
func (e *Engine) CleanupExpiredTokens(ctx context.Context) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return e.authority.CleanupExpired(ctx)
}

// TokenStatistics summarizes the merged token population.
func (e *Engine) TokenStatistics(ctx context.Context) (TokenStats, error) {
	if !e.ready() {
		return TokenStats{}, ErrEngineNotReady
	}
	return e.authority.Statistics(ctx)
}

// TokenUsage lists the remote usage records for one token.
func (e *Engine) TokenUsage(ctx context.Context, raw string) ([]UsageRecord, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.authority.Usage(ctx, raw)
}

// TokenShareableURL builds the redeem link for a token against the
// configured base URL.
func (e *Engine) TokenShareableURL(token string) string {
	if e == nil {
		return ""
	}
	return tokens.ShareableURL(e.config.Token.BaseURL, token)
}
