package remotestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis implements Store over a Redis-compatible document layout: one hash
// holding all token documents keyed by token identifier, and one list per
// token for usage records.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis creates a Redis-backed store. An empty prefix defaults to "qg".
func NewRedis(client redis.UniversalClient, prefix string, now func() time.Time) *Redis {
	if prefix == "" {
		prefix = "qg"
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, prefix: prefix, now: now}
}

func (r *Redis) tokensKey() string {
	return r.prefix + ":tokens"
}

func (r *Redis) usageKey(token string) string {
	return r.prefix + ":usage:" + token
}

func (r *Redis) SaveToken(ctx context.Context, doc TokenDocument) error {
	doc.SyncedAt = r.now().UnixMilli()
	encoded, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.tokensKey(), doc.Token, encoded).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) ListTokens(ctx context.Context) ([]TokenDocument, error) {
	fields, err := r.client.HGetAll(ctx, r.tokensKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	docs := make([]TokenDocument, 0, len(fields))
	for _, raw := range fields {
		var doc TokenDocument
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			// A single undecodable document must not hide the rest of the
			// snapshot.
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *Redis) UpdateTokenUsage(ctx context.Context, token string, usedAt int64, resultID string) error {
	const maxRetries = 4
	key := r.tokensKey()

	for i := 0; i < maxRetries; i++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.HGet(ctx, key, token).Result()
			if err != nil {
				return err
			}
			var doc TokenDocument
			if err := json.Unmarshal([]byte(raw), &doc); err != nil {
				return err
			}

			doc.UsedAt = usedAt
			doc.ResultID = resultID
			doc.SyncedAt = r.now().UnixMilli()

			updated, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, token, updated)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrTokenMissing
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: usage update contention", ErrUnavailable)
}

func (r *Redis) DeleteToken(ctx context.Context, token string) (bool, error) {
	n, err := r.client.HDel(ctx, r.tokensKey(), token).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_ = r.client.Del(ctx, r.usageKey(token)).Err()
	return n > 0, nil
}

func (r *Redis) AppendUsage(ctx context.Context, rec UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := r.client.RPush(ctx, r.usageKey(rec.Token), encoded).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) ListUsage(ctx context.Context, token string) ([]UsageRecord, error) {
	raws, err := r.client.LRange(ctx, r.usageKey(token), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	records := make([]UsageRecord, 0, len(raws))
	for _, raw := range raws {
		var rec UsageRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
