// Package intents is the durable log of attendance intents. Row order is
// submission order: the generation column is assigned by the database and
// never reused, which is what the supersede conflict resolution keys on.
package intents

import (
	"context"

	"github.com/rostermark/kiosk/internal/kiosk/models"
)

// Repository persists attendance intents until they reach a terminal status.
type Repository interface {
	// Insert appends the intent and fills in its Generation.
	Insert(ctx context.Context, it *models.AttendanceIntent) error

	// GetByID returns the intent or kioskerr.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.AttendanceIntent, error)

	// Pending lists all pending intents in generation order, including
	// dispatched ones (redelivered after a crash; marks are idempotent).
	Pending(ctx context.Context) ([]models.AttendanceIntent, error)

	// ActiveForMember lists pending intents for a member+date in
	// generation order.
	ActiveForMember(ctx context.Context, memberID, date string) ([]models.AttendanceIntent, error)

	// LatestGeneration returns the highest generation recorded for a
	// member+date, or 0 when none exists.
	LatestGeneration(ctx context.Context, memberID, date string) (int64, error)

	// MarkDispatched flags the intent as handed to the network, which
	// makes it non-cancellable.
	MarkDispatched(ctx context.Context, id string) error

	// UpdateStatus moves the intent to status, recording lastError for
	// failures.
	UpdateStatus(ctx context.Context, id string, status models.IntentStatus, lastError string) error

	// Delete removes the intent entirely (pre-dispatch cancel only).
	Delete(ctx context.Context, id string) error
}
