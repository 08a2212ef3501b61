// Package backend is the kiosk's view of the organization backend: staff
// authentication, roster fetches, and attendance marks. The concrete
// implementation speaks JSON over HTTP; everything above this package treats
// it as an opaque collaborator.
package backend

import (
	"context"

	"github.com/rostermark/kiosk/internal/kiosk/models"
)

// Credentials is the staff primary login.
type Credentials struct {
	Username string
	Password string
}

// RosterMember is one member as reported by the roster endpoint.
type RosterMember struct {
	MemberID       string `json:"member_id"`
	DisplayName    string `json:"display_name"`
	IsPresentToday bool   `json:"is_present_today"`
}

// MarkRequest asks the backend to record an attendance change. IntentID is
// forwarded as an idempotency key so retried marks deduplicate server-side.
type MarkRequest struct {
	IntentID  string
	MemberID  string
	ProgramID string
	Action    models.IntentAction
	Date      string
}

// MarkResult is the authoritative outcome of a mark. PresentNow is the
// server's view of the member's presence and wins over the optimistic guess.
type MarkResult struct {
	Accepted   bool `json:"accepted"`
	PresentNow bool `json:"present_now"`
}

// Client is the backend surface the kiosk consumes.
//
// Error contract: invalid staff credentials map to
// kioskerr.ErrInvalidCredentials, rejected tokens to
// kioskerr.ErrSessionExpired, per-member business rejections to
// kioskerr.ErrIntentRejected, and timeouts/5xx-class failures to
// kioskerr.ErrUnreachable. Callers match with errors.Is.
type Client interface {
	Login(ctx context.Context, creds Credentials) (models.Session, error)
	Refresh(ctx context.Context, refreshToken string) (models.Session, error)
	FetchRoster(ctx context.Context, programID, date string) ([]RosterMember, error)
	MarkAttendance(ctx context.Context, req MarkRequest) (MarkResult, error)
	Ping(ctx context.Context) error
}
