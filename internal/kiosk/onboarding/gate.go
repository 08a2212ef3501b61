// Package onboarding holds the one-shot first-run flag. The session state
// machine consults it on cold start; the excluded UI layer flips it after
// its first-run flow.
package onboarding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rostermark/kiosk/internal/dbx"
)

const flagKey = "onboarding_complete"

// Gate reads and sets the persisted onboarding flag.
type Gate struct {
	db dbx.DBTX
}

// NewGate binds the gate to db.
func NewGate(db dbx.DBTX) *Gate {
	return &Gate{db: db}
}

// IsComplete reports whether onboarding has ever finished on this device.
func (g *Gate) IsComplete(ctx context.Context) (bool, error) {
	var value []byte
	err := g.db.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE key = ?`, flagKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load onboarding flag: %w", err)
	}
	return string(value) == "1", nil
}

// MarkComplete flips the flag to true. It is never reset.
func (g *Gate) MarkComplete(ctx context.Context) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, '1')
		ON CONFLICT(key) DO UPDATE SET value = '1'
	`, flagKey)
	if err != nil {
		return fmt.Errorf("mark onboarding complete: %w", err)
	}
	return nil
}
