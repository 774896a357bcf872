package remotestore

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the remote document store could not be reached or
// answered with a backend failure. It is always soft: callers degrade to
// local-only state.
var ErrUnavailable = errors.New("remote store unavailable")

// ErrTokenMissing is returned by UpdateTokenUsage when the token document
// does not exist remotely.
var ErrTokenMissing = errors.New("remote token document missing")

// TokenDocument is the wire shape of one authorization token in the remote
// store. Timestamps are milliseconds since epoch. SyncedAt is set by the
// writer on every save.
type TokenDocument struct {
	Token       string `json:"token"`
	CreatedAt   int64  `json:"createdAt"`
	ExpiresAt   int64  `json:"expiresAt"`
	UsedAt      int64  `json:"usedAt,omitempty"`
	ResultID    string `json:"resultId,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"createdBy,omitempty"`
	AllowReuse  bool   `json:"allowReuse,omitempty"`
	SyncedAt    int64  `json:"syncedAt"`
}

// UsageRecord is one consumption event for a token. ID is a generated
// sub-key unique within the token's usage collection.
type UsageRecord struct {
	ID       string            `json:"id"`
	Token    string            `json:"token"`
	ResultID string            `json:"resultId,omitempty"`
	UsedAt   int64             `json:"usedAt"`
	Device   map[string]string `json:"device,omitempty"`
}

// Store is the remote document store interface consumed by the token
// authority. Implementations must be safe for concurrent use.
type Store interface {
	// SaveToken writes (or overwrites) the token document.
	SaveToken(ctx context.Context, doc TokenDocument) error
	// ListTokens fetches a point-in-time snapshot of all token documents.
	ListTokens(ctx context.Context) ([]TokenDocument, error)
	// UpdateTokenUsage marks the token document used. It fails with
	// ErrTokenMissing when no document exists for the token.
	UpdateTokenUsage(ctx context.Context, token string, usedAt int64, resultID string) error
	// DeleteToken removes the token document, reporting whether it existed.
	DeleteToken(ctx context.Context, token string) (bool, error)
	// AppendUsage appends one usage record to the token's usage collection.
	AppendUsage(ctx context.Context, rec UsageRecord) error
	// ListUsage fetches all usage records for one token.
	ListUsage(ctx context.Context, token string) ([]UsageRecord, error)
	// Ping reports reachability.
	Ping(ctx context.Context) error
}
