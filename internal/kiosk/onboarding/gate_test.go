package onboarding

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)
	return db
}

func TestGate(t *testing.T) {
	g := NewGate(setupDB(t))
	ctx := context.Background()

	done, err := g.IsComplete(ctx)
	require.NoError(t, err)
	assert.False(t, done, "fresh device starts incomplete")

	require.NoError(t, g.MarkComplete(ctx))

	done, err = g.IsComplete(ctx)
	require.NoError(t, err)
	assert.True(t, done)

	// marking again is harmless
	require.NoError(t, g.MarkComplete(ctx))
	done, err = g.IsComplete(ctx)
	require.NoError(t, err)
	assert.True(t, done)
}
