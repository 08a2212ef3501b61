// Package credentials persists the staff session and the device-local PIN
// credential. It is the only code that reads or writes raw credential
// records.
package credentials

import (
	"context"

	"github.com/rostermark/kiosk/internal/kiosk/models"
)

// Repository is the durable credential store.
//
// Load methods return kioskerr.ErrNotFound when no record exists and wrap
// kioskerr.ErrStorageCorrupt when a stored record fails to decode; callers
// treat corruption as fatal for that record only.
type Repository interface {
	LoadSession(ctx context.Context) (*models.Session, error)
	SaveSession(ctx context.Context, s *models.Session) error
	DeleteSession(ctx context.Context) error

	LoadPin(ctx context.Context) (*models.PinCredential, error)
	SavePin(ctx context.Context, p *models.PinCredential) error
	DeletePin(ctx context.Context) error

	// Clear removes both the session and the PIN credential as one
	// logical operation.
	Clear(ctx context.Context) error
}
