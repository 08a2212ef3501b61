package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rostermark/kiosk/internal/dbx"
	"github.com/rostermark/kiosk/internal/kiosk/kioskerr"
	"github.com/rostermark/kiosk/internal/kiosk/models"
)

const (
	keySession = "session"
	keyPin     = "pin"
)

// SQLiteRepository stores credential records as JSON blobs in the metadata
// table. Each save is a single upsert, so a crash leaves either the old or
// the new record, never a torn one.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository binds the repository to db (either *sql.DB or *sql.Tx).
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) get(ctx context.Context, key string, out any) error {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return kioskerr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", kioskerr.ErrStorageCorrupt, key, err)
	}
	return nil
}

func (r *SQLiteRepository) set(ctx context.Context, key string, in any) error {
	value, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) LoadSession(ctx context.Context) (*models.Session, error) {
	s := &models.Session{}
	if err := r.get(ctx, keySession, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SQLiteRepository) SaveSession(ctx context.Context, s *models.Session) error {
	return r.set(ctx, keySession, s)
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, keySession); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LoadPin(ctx context.Context) (*models.PinCredential, error) {
	p := &models.PinCredential{}
	if err := r.get(ctx, keyPin, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *SQLiteRepository) SavePin(ctx context.Context, p *models.PinCredential) error {
	return r.set(ctx, keyPin, p)
}

func (r *SQLiteRepository) DeletePin(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, keyPin); err != nil {
		return fmt.Errorf("delete pin: %w", err)
	}
	return nil
}

// Clear removes both credential records in one statement, so logout can
// never leave a PIN behind without its session or vice versa.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM metadata WHERE key IN (?, ?)`, keySession, keyPin)
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
