package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/twnoc/quizgate/internal/dbx"
)

// SQLite persists key-value pairs in a single kv table. The caller owns the
// *sql.DB (and the driver registration, typically modernc.org/sqlite).
type SQLite struct {
	db dbx.DBTX
}

// SQLiteSchema creates the kv table if it does not exist.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// NewSQLite binds a store to db. Call Migrate once before first use.
func NewSQLite(db dbx.DBTX) *SQLite {
	return &SQLite{db: db}
}

// Migrate applies the kv schema.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("localstore migrate: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("localstore get: %w", err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("localstore set: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("localstore delete: %w", err)
	}
	return nil
}
