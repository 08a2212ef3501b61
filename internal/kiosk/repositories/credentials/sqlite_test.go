package credentials

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/rostermark/kiosk/internal/kiosk/kioskerr"
	"github.com/rostermark/kiosk/internal/kiosk/models"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

func TestSession_SaveLoad(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	_, err := r.LoadSession(ctx)
	assert.ErrorIs(t, err, kioskerr.ErrNotFound)

	want := &models.Session{
		PrimaryToken: "tok",
		RefreshToken: "ref",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	require.NoError(t, r.SaveSession(ctx, want))

	got, err := r.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// save again overwrites in place
	want.PrimaryToken = "tok-2"
	require.NoError(t, r.SaveSession(ctx, want))
	got, err = r.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.PrimaryToken)

	require.NoError(t, r.DeleteSession(ctx))
	_, err = r.LoadSession(ctx)
	assert.ErrorIs(t, err, kioskerr.ErrNotFound)
}

func TestPin_SaveLoadDelete(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	_, err := r.LoadPin(ctx)
	assert.ErrorIs(t, err, kioskerr.ErrNotFound)

	want := &models.PinCredential{
		Hash:      []byte{1, 2, 3},
		Salt:      []byte{4, 5, 6},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, r.SavePin(ctx, want))

	got, err := r.LoadPin(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, r.DeletePin(ctx))
	_, err = r.LoadPin(ctx)
	assert.ErrorIs(t, err, kioskerr.ErrNotFound)
}

func TestClear_RemovesBothRecords(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.SaveSession(ctx, &models.Session{PrimaryToken: "tok"}))
	require.NoError(t, r.SavePin(ctx, &models.PinCredential{Hash: []byte{1}, Salt: []byte{2}}))

	require.NoError(t, r.Clear(ctx))

	_, err := r.LoadSession(ctx)
	assert.ErrorIs(t, err, kioskerr.ErrNotFound)
	_, err = r.LoadPin(ctx)
	assert.ErrorIs(t, err, kioskerr.ErrNotFound)
}

func TestLoad_CorruptRecord(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO metadata(key, value) VALUES ('session', 'this is not json')`)
	require.NoError(t, err)

	_, err = r.LoadSession(ctx)
	assert.ErrorIs(t, err, kioskerr.ErrStorageCorrupt)
}
