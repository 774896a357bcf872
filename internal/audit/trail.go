package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync/atomic"
	"time"

	"github.com/twnoc/quizgate/envelope"
	"github.com/twnoc/quizgate/internal/dbx"
)

// TrailConfig tunes the persistent trail. Zero values take the defaults
// noted per field.
type TrailConfig struct {
	MaxEntries  int // retained event cap, default 10000
	PruneMargin int // extra rows removed per prune pass, default 100

	// Now is the trail clock. Nil means time.Now.
	Now func() time.Time
}

func (c *TrailConfig) applyDefaults() {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 10000
	}
	if c.PruneMargin <= 0 {
		c.PruneMargin = 100
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// TrailSchema creates the audit_events table and its query indexes.
const TrailSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          INTEGER NOT NULL,
	category    TEXT NOT NULL,
	action      TEXT NOT NULL,
	fingerprint TEXT NOT NULL DEFAULT '',
	page        TEXT NOT NULL DEFAULT '',
	success     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events (ts);
CREATE INDEX IF NOT EXISTS idx_audit_events_category ON audit_events (category);
CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events (action);
CREATE INDEX IF NOT EXISTS idx_audit_events_success ON audit_events (success);`

// Trail is the SQLite-backed audit log. Event details are sealed with the
// trail's envelope sealer before they hit disk; the rest of the row stays
// queryable plaintext. Record never surfaces storage failures to callers,
// the audited operation must not fail because its audit write did.
type Trail struct {
	db     dbx.DBTX
	sealer *envelope.Sealer
	cfg    TrailConfig

	writeErrs atomic.Uint64
}

// NewTrail binds a trail to db. sealer may be nil, in which case details are
// stored as plaintext JSON. Call Migrate once before first use.
func NewTrail(db dbx.DBTX, sealer *envelope.Sealer, cfg TrailConfig) *Trail {
	cfg.applyDefaults()
	return &Trail{db: db, sealer: sealer, cfg: cfg}
}

// Migrate applies the audit schema.
func (t *Trail) Migrate(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, TrailSchema); err != nil {
		return fmt.Errorf("audit migrate: %w", err)
	}
	return nil
}

// Emit lets the Trail act as a dispatcher sink.
func (t *Trail) Emit(ctx context.Context, event Event) {
	t.Record(ctx, event)
}

// Record appends one event. Failures are counted, never returned.
func (t *Trail) Record(ctx context.Context, event Event) {
	if t == nil {
		return
	}
	if err := t.record(ctx, event); err != nil {
		t.writeErrs.Add(1)
	}
}

// WriteErrors reports how many Record calls failed to persist.
func (t *Trail) WriteErrors() uint64 {
	if t == nil {
		return 0
	}
	return t.writeErrs.Load()
}

func (t *Trail) record(ctx context.Context, event Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = t.cfg.Now().UnixMilli()
	}
	if event.Category == "" {
		event.Category = CategorySystem
	}

	details, err := t.sealDetails(event.Details)
	if err != nil {
		return err
	}

	_, err = t.db.ExecContext(ctx, `
		INSERT INTO audit_events (ts, category, action, fingerprint, page, success, error, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Timestamp, event.Category, event.Action, event.Fingerprint,
		event.Page, boolToInt(event.Success), event.Error, details)
	if err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}

	return t.prune(ctx)
}

func (t *Trail) sealDetails(details map[string]string) (string, error) {
	if len(details) == 0 {
		return "", nil
	}
	if t.sealer == nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	return t.sealer.Seal(details)
}

func (t *Trail) openDetails(stored string) map[string]string {
	if stored == "" {
		return nil
	}
	var details map[string]string
	if t.sealer == nil {
		if err := json.Unmarshal([]byte(stored), &details); err != nil {
			return map[string]string{"details": "[unreadable]"}
		}
		return details
	}
	if err := t.sealer.Open(stored, &details); err != nil {
		// Unreadable details must not hide the event itself.
		return map[string]string{"details": "[unreadable]"}
	}
	return details
}

// prune keeps the table under MaxEntries. When the cap is crossed it removes
// the overshoot plus PruneMargin oldest rows so pruning does not run on
// every subsequent insert.
func (t *Trail) prune(ctx context.Context) error {
	var count int
	if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&count); err != nil {
		return fmt.Errorf("audit count: %w", err)
	}
	if count <= t.cfg.MaxEntries {
		return nil
	}

	remove := count - t.cfg.MaxEntries + t.cfg.PruneMargin
	_, err := t.db.ExecContext(ctx, `
		DELETE FROM audit_events WHERE id IN (
			SELECT id FROM audit_events ORDER BY ts ASC, id ASC LIMIT ?
		)`, remove)
	if err != nil {
		return fmt.Errorf("audit prune: %w", err)
	}
	return nil
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	Category string
	Action   string
	Success  *bool // nil matches both outcomes
	Since    int64 // inclusive, milliseconds since epoch
	Until    int64 // exclusive, milliseconds since epoch
	Limit    int   // 0 means no limit
}

// Query returns matching events, newest first, with details opened.
func (t *Trail) Query(ctx context.Context, f Filter) ([]Event, error) {
	query := `SELECT ts, category, action, fingerprint, page, success, error, details
		FROM audit_events WHERE 1=1`
	var args []any

	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Action != "" {
		query += ` AND action = ?`
		args = append(args, f.Action)
	}
	if f.Success != nil {
		query += ` AND success = ?`
		args = append(args, boolToInt(*f.Success))
	}
	if f.Since > 0 {
		query += ` AND ts >= ?`
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		query += ` AND ts < ?`
		args = append(args, f.Until)
	}
	query += ` ORDER BY ts DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			success int
			details string
		)
		if err := rows.Scan(&e.Timestamp, &e.Category, &e.Action, &e.Fingerprint,
			&e.Page, &success, &e.Error, &details); err != nil {
			return nil, fmt.Errorf("audit scan: %w", err)
		}
		e.Success = success != 0
		e.Details = t.openDetails(details)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit rows: %w", err)
	}
	return events, nil
}

// ActionCount pairs an action name with its event count.
type ActionCount struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

// Stats is the aggregate view of the trail.
type Stats struct {
	Total          int           `json:"total"`
	Today          int           `json:"today"`
	SuccessRate    float64       `json:"successRate"`
	TopActions     []ActionCount `json:"topActions"`
	RecentFailures []Event       `json:"recentFailures"`
}

// Statistics computes totals, today's volume, the overall success rate, the
// five most frequent actions, and the ten most recent failures.
func (t *Trail) Statistics(ctx context.Context) (Stats, error) {
	var stats Stats

	var succeeded int
	err := t.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(success), 0) FROM audit_events`).
		Scan(&stats.Total, &succeeded)
	if err != nil {
		return Stats{}, fmt.Errorf("audit stats: %w", err)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(succeeded) / float64(stats.Total)
	}

	now := t.cfg.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err = t.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_events WHERE ts >= ?`, midnight.UnixMilli()).
		Scan(&stats.Today)
	if err != nil {
		return Stats{}, fmt.Errorf("audit stats today: %w", err)
	}

	stats.TopActions, err = t.topActions(ctx, 5)
	if err != nil {
		return Stats{}, err
	}

	failed := false
	stats.RecentFailures, err = t.Query(ctx, Filter{Success: &failed, Limit: 10})
	if err != nil {
		return Stats{}, err
	}

	return stats, nil
}

func (t *Trail) topActions(ctx context.Context, limit int) ([]ActionCount, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT action, COUNT(*) AS n FROM audit_events
		GROUP BY action ORDER BY n DESC, action ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit top actions: %w", err)
	}
	defer rows.Close()

	var top []ActionCount
	for rows.Next() {
		var ac ActionCount
		if err := rows.Scan(&ac.Action, &ac.Count); err != nil {
			return nil, fmt.Errorf("audit top actions scan: %w", err)
		}
		top = append(top, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit top actions rows: %w", err)
	}
	return top, nil
}

// Clear removes every event.
func (t *Trail) Clear(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, `DELETE FROM audit_events`); err != nil {
		return fmt.Errorf("audit clear: %w", err)
	}
	return nil
}

// Count reports the number of stored events.
func (t *Trail) Count(ctx context.Context) (int, error) {
	var count int
	err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit count: %w", err)
	}
	return count, nil
}

// Export writes every event, oldest first, as a JSON array with details
// opened. The output is meant for offline inspection, not re-import.
func (t *Trail) Export(ctx context.Context, w io.Writer) error {
	events, err := t.Query(ctx, Filter{})
	if err != nil {
		return err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return fmt.Errorf("audit export: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Sink = (*Trail)(nil)
