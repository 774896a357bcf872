package remotestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedis(client, "qg", nil), mr
}

func TestSaveAndListTokens(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	doc := TokenDocument{
		Token:     "tok-1",
		CreatedAt: 1000,
		ExpiresAt: 2000,
		CreatedBy: "admin",
	}
	if err := store.SaveToken(ctx, doc); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	docs, err := store.ListTokens(ctx)
	if err != nil {
		t.Fatalf("ListTokens failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 token, got %d", len(docs))
	}
	if docs[0].Token != "tok-1" || docs[0].SyncedAt == 0 {
		t.Fatalf("unexpected document: %+v", docs[0])
	}
}

func TestUpdateTokenUsage(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if err := store.SaveToken(ctx, TokenDocument{Token: "tok-1", CreatedAt: 1, ExpiresAt: 2}); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	usedAt := time.Now().UnixMilli()
	if err := store.UpdateTokenUsage(ctx, "tok-1", usedAt, "result-9"); err != nil {
		t.Fatalf("UpdateTokenUsage failed: %v", err)
	}

	docs, _ := store.ListTokens(ctx)
	if docs[0].UsedAt != usedAt || docs[0].ResultID != "result-9" {
		t.Fatalf("usage fields not persisted: %+v", docs[0])
	}
}

func TestUpdateTokenUsageMissing(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.UpdateTokenUsage(context.Background(), "absent", 1, "")
	if !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing, got %v", err)
	}
}

func TestDeleteToken(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_ = store.SaveToken(ctx, TokenDocument{Token: "tok-1", CreatedAt: 1, ExpiresAt: 2})

	existed, err := store.DeleteToken(ctx, "tok-1")
	if err != nil || !existed {
		t.Fatalf("expected delete of existing token, got existed=%v err=%v", existed, err)
	}
	existed, err = store.DeleteToken(ctx, "tok-1")
	if err != nil || existed {
		t.Fatalf("expected idempotent delete, got existed=%v err=%v", existed, err)
	}
}

func TestUsageRecords(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for i := 0; i < 3; i++ {
		err := store.AppendUsage(ctx, UsageRecord{
			Token:    "tok-1",
			ResultID: "r",
			UsedAt:   int64(i),
			Device:   map[string]string{"userAgent": "ua"},
		})
		if err != nil {
			t.Fatalf("AppendUsage failed: %v", err)
		}
	}

	records, err := store.ListUsage(ctx, "tok-1")
	if err != nil {
		t.Fatalf("ListUsage failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 usage records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.ID == "" {
			t.Fatal("expected generated usage record id")
		}
	}
}

func TestBackendDownWrapsUnavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	mr.Close()

	if err := store.SaveToken(ctx, TokenDocument{Token: "t", CreatedAt: 1, ExpiresAt: 2}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from SaveToken, got %v", err)
	}
	if _, err := store.ListTokens(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from ListTokens, got %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Ping, got %v", err)
	}
}
