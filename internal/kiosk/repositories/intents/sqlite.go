package intents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rostermark/kiosk/internal/dbx"
	"github.com/rostermark/kiosk/internal/kiosk/kioskerr"
	"github.com/rostermark/kiosk/internal/kiosk/models"
)

// SQLiteRepository implements Repository over a DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository binds the repository to db (either *sql.DB or *sql.Tx).
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const intentColumns = `generation, id, member_id, program_id, action, service_date, status, dispatched, prev_present, requested_at, last_error`

func scanIntent(row interface{ Scan(...any) error }) (*models.AttendanceIntent, error) {
	var (
		it          models.AttendanceIntent
		dispatched  int
		prevPresent int
		requestedAt string
	)
	err := row.Scan(&it.Generation, &it.ID, &it.MemberID, &it.ProgramID,
		&it.Action, &it.ServiceDate, &it.Status, &dispatched, &prevPresent, &requestedAt, &it.LastError)
	if err != nil {
		return nil, err
	}
	it.Dispatched = dispatched != 0
	it.PrevPresent = prevPresent != 0
	ts, err := time.Parse(time.RFC3339Nano, requestedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: requested_at: %v", kioskerr.ErrStorageCorrupt, err)
	}
	it.RequestedAt = ts
	return &it, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, it *models.AttendanceIntent) error {
	prevPresent := 0
	if it.PrevPresent {
		prevPresent = 1
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO intents (id, member_id, program_id, action, service_date, status, dispatched, prev_present, requested_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, '')
	`, it.ID, it.MemberID, it.ProgramID, it.Action, it.ServiceDate, it.Status, prevPresent,
		it.RequestedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert intent: %w", err)
	}
	gen, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("intent generation: %w", err)
	}
	it.Generation = gen
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.AttendanceIntent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM intents WHERE id = ?`, id)
	it, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kioskerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intent %s: %w", id, err)
	}
	return it, nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.AttendanceIntent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	var result []models.AttendanceIntent
	for rows.Next() {
		it, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Pending(ctx context.Context) ([]models.AttendanceIntent, error) {
	return r.list(ctx,
		`SELECT `+intentColumns+` FROM intents WHERE status = ? ORDER BY generation`,
		models.IntentPending)
}

func (r *SQLiteRepository) ActiveForMember(ctx context.Context, memberID, date string) ([]models.AttendanceIntent, error) {
	return r.list(ctx,
		`SELECT `+intentColumns+` FROM intents WHERE member_id = ? AND service_date = ? AND status = ? ORDER BY generation`,
		memberID, date, models.IntentPending)
}

func (r *SQLiteRepository) LatestGeneration(ctx context.Context, memberID, date string) (int64, error) {
	var gen sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(generation) FROM intents WHERE member_id = ? AND service_date = ?`,
		memberID, date).Scan(&gen)
	if err != nil {
		return 0, fmt.Errorf("latest generation: %w", err)
	}
	return gen.Int64, nil
}

func (r *SQLiteRepository) MarkDispatched(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE intents SET dispatched = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark dispatched %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status models.IntentStatus, lastError string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE intents SET status = ?, last_error = ? WHERE id = ?`,
		status, lastError, id)
	if err != nil {
		return fmt.Errorf("update intent %s: %w", id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update intent %s: rows affected: %w", id, err)
	}
	if ra == 0 {
		return kioskerr.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM intents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete intent %s: %w", id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete intent %s: rows affected: %w", id, err)
	}
	if ra == 0 {
		return kioskerr.ErrNotFound
	}
	return nil
}
