package audit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/twnoc/quizgate/envelope"
)

func newTestTrail(t *testing.T, cfg TrailConfig) *Trail {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sealer := envelope.NewSealer(envelope.Config{Secret: "trail-test-secret"})
	trail := NewTrail(db, sealer, cfg)
	require.NoError(t, trail.Migrate(context.Background()))
	return trail
}

func TestTrailRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	trail := newTestTrail(t, TrailConfig{})

	trail.Record(ctx, Event{
		Category:    CategoryAuth,
		Action:      "login",
		Fingerprint: "fp-1",
		Page:        "/admin",
		Success:     true,
		Details:     map[string]string{"user": "admin"},
	})
	trail.Record(ctx, Event{
		Category: CategoryAuth,
		Action:   "login",
		Success:  false,
		Error:    "bad password",
	})

	events, err := trail.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first.
	assert.False(t, events[0].Success)
	assert.Equal(t, "bad password", events[0].Error)
	assert.True(t, events[1].Success)
	assert.Equal(t, map[string]string{"user": "admin"}, events[1].Details)
	assert.NotZero(t, events[1].Timestamp)
}

func TestTrailDetailsSealedAtRest(t *testing.T) {
	ctx := context.Background()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sealer := envelope.NewSealer(envelope.Config{Secret: "trail-test-secret"})
	trail := NewTrail(db, sealer, TrailConfig{})
	require.NoError(t, trail.Migrate(ctx))

	trail.Record(ctx, Event{Action: "save", Details: map[string]string{"quiz": "q-42"}})

	var stored string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT details FROM audit_events`).Scan(&stored))
	assert.NotContains(t, stored, "q-42")
	assert.NoError(t, sealer.Open(stored, new(map[string]string)))
}

func TestTrailUnreadableDetailsPlaceholder(t *testing.T) {
	ctx := context.Background()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	writer := NewTrail(db, envelope.NewSealer(envelope.Config{Secret: "secret-a"}), TrailConfig{})
	require.NoError(t, writer.Migrate(ctx))
	writer.Record(ctx, Event{Action: "save", Details: map[string]string{"quiz": "q-42"}})

	reader := NewTrail(db, envelope.NewSealer(envelope.Config{Secret: "secret-b"}), TrailConfig{})
	events, err := reader.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, map[string]string{"details": "[unreadable]"}, events[0].Details)
}

func TestTrailFilters(t *testing.T) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	trail := newTestTrail(t, TrailConfig{Now: func() time.Time { return base }})

	trail.Record(ctx, Event{Timestamp: base.UnixMilli(), Category: CategoryAuth, Action: "login", Success: true})
	trail.Record(ctx, Event{Timestamp: base.UnixMilli() + 1000, Category: CategoryAdmin, Action: "token_generate", Success: true})
	trail.Record(ctx, Event{Timestamp: base.UnixMilli() + 2000, Category: CategoryAuth, Action: "login", Success: false})

	byCategory, err := trail.Query(ctx, Filter{Category: CategoryAuth})
	require.NoError(t, err)
	assert.Len(t, byCategory, 2)

	failed := false
	byOutcome, err := trail.Query(ctx, Filter{Success: &failed})
	require.NoError(t, err)
	require.Len(t, byOutcome, 1)
	assert.Equal(t, "login", byOutcome[0].Action)

	byRange, err := trail.Query(ctx, Filter{
		Since: base.UnixMilli() + 1000,
		Until: base.UnixMilli() + 2000,
	})
	require.NoError(t, err)
	require.Len(t, byRange, 1)
	assert.Equal(t, "token_generate", byRange[0].Action)

	limited, err := trail.Query(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestTrailPruneKeepsNewest(t *testing.T) {
	ctx := context.Background()
	trail := newTestTrail(t, TrailConfig{MaxEntries: 10, PruneMargin: 2})

	for i := 0; i < 11; i++ {
		trail.Record(ctx, Event{
			Timestamp: int64(1000 + i),
			Action:    fmt.Sprintf("op-%d", i),
		})
	}

	count, err := trail.Count(ctx)
	require.NoError(t, err)
	// Crossing the cap removes overshoot plus margin.
	assert.Equal(t, 8, count)

	events, err := trail.Query(ctx, Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "op-10", events[0].Action)
	assert.Equal(t, "op-3", events[len(events)-1].Action)
}

func TestTrailStatistics(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	trail := newTestTrail(t, TrailConfig{Now: func() time.Time { return now }})

	yesterday := now.Add(-24 * time.Hour).UnixMilli()
	trail.Record(ctx, Event{Timestamp: yesterday, Action: "login", Success: true})
	trail.Record(ctx, Event{Timestamp: now.UnixMilli(), Action: "login", Success: true})
	trail.Record(ctx, Event{Timestamp: now.UnixMilli() + 1, Action: "token_consume", Success: false, Error: "already used"})
	trail.Record(ctx, Event{Timestamp: now.UnixMilli() + 2, Action: "login", Success: true})

	stats, err := trail.Statistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Today)
	assert.InDelta(t, 0.75, stats.SuccessRate, 1e-9)

	require.NotEmpty(t, stats.TopActions)
	assert.Equal(t, ActionCount{Action: "login", Count: 3}, stats.TopActions[0])

	require.Len(t, stats.RecentFailures, 1)
	assert.Equal(t, "token_consume", stats.RecentFailures[0].Action)
	assert.Equal(t, "already used", stats.RecentFailures[0].Error)
}

func TestTrailClearAndExport(t *testing.T) {
	ctx := context.Background()
	trail := newTestTrail(t, TrailConfig{})

	trail.Record(ctx, Event{Timestamp: 2000, Action: "second", Details: map[string]string{"k": "v"}})
	trail.Record(ctx, Event{Timestamp: 1000, Action: "first"})

	var buf bytes.Buffer
	require.NoError(t, trail.Export(ctx, &buf))

	var exported []Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &exported))
	require.Len(t, exported, 2)
	// Export is oldest first with details opened.
	assert.Equal(t, "first", exported[0].Action)
	assert.Equal(t, map[string]string{"k": "v"}, exported[1].Details)

	require.NoError(t, trail.Clear(ctx))
	count, err := trail.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTrailRecordNeverPropagatesFailures(t *testing.T) {
	ctx := context.Background()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	trail := NewTrail(db, nil, TrailConfig{})
	require.NoError(t, trail.Migrate(ctx))
	require.NoError(t, db.Close())

	trail.Record(ctx, Event{Action: "after-close"})
	assert.Equal(t, uint64(1), trail.WriteErrors())
}
