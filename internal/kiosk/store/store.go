// Package store opens the kiosk-local sqlite database, applies migrations,
// and hands out the repositories built on top of it. sqlite gives every
// write transactional (all-or-nothing) durability, which is what the
// credential store's atomic-save contract requires.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/rostermark/kiosk/internal/kiosk/repositories/credentials"
	"github.com/rostermark/kiosk/internal/kiosk/repositories/intents"
	"github.com/rostermark/kiosk/internal/kiosk/store/migrations"
)

// Store owns the database handle and the repositories.
type Store struct {
	db *sql.DB

	Credentials credentials.Repository
	Intents     intents.Repository
}

// Open opens (creating if needed) the sqlite database at path and runs
// pending migrations. WAL mode keeps concurrent reads cheap; the busy
// timeout covers the brief writer lock during checkpoints.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o770); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return New(db), nil
}

// New builds a Store over an already-open database. Used by tests with
// in-memory databases.
func New(db *sql.DB) *Store {
	return &Store{
		db:          db,
		Credentials: credentials.NewSQLiteRepository(db),
		Intents:     intents.NewSQLiteRepository(db),
	}
}

// DB exposes the raw handle for repositories constructed elsewhere
// (onboarding gate).
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}
