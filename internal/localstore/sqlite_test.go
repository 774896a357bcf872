package localstore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewSQLite(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLiteGetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", "v1"))
	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	require.NoError(t, store.Set(ctx, "k", "v2"))
	v, _, _ = store.Get(ctx, "k")
	assert.Equal(t, "v2", v)

	require.NoError(t, store.Delete(ctx, "k"))
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent key is not an error.
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestMemoryMatchesSQLiteBehavior(t *testing.T) {
	ctx := context.Background()

	for name, store := range map[string]Store{
		"memory": NewMemory(),
		"sqlite": newTestSQLite(t),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, "a", "1"))
			v, ok, err := store.Get(ctx, "a")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "1", v)
			require.NoError(t, store.Delete(ctx, "a"))
			_, ok, _ = store.Get(ctx, "a")
			assert.False(t, ok)
		})
	}
}
