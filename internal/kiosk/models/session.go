// Package models defines the data types shared by the kiosk client:
// the session and PIN credential records persisted by the credential
// store, roster entries, and attendance intents.
package models

import "time"

// SessionPhase is the state of the kiosk auth state machine. Exactly one
// phase is active at a time; transitions happen only inside session.Manager.
type SessionPhase string

const (
	PhaseUnauthenticated       SessionPhase = "unauthenticated"
	PhasePrimaryAuthenticating SessionPhase = "primary_authenticating"
	PhaseAuthenticated         SessionPhase = "authenticated"
	PhasePinSetupPending       SessionPhase = "pin_setup_pending"
	PhaseLocked                SessionPhase = "locked"
	PhaseUnlocked              SessionPhase = "unlocked"
	PhaseError                 SessionPhase = "error"
)

// ErrorReason qualifies PhaseError.
type ErrorReason string

const (
	ReasonNone               ErrorReason = ""
	ReasonInvalidCredentials ErrorReason = "invalid_credentials"
	ReasonUnreachable        ErrorReason = "unreachable"
	ReasonSessionExpired     ErrorReason = "session_expired"
	ReasonPinLockout         ErrorReason = "pin_lockout"
)

// Session holds the backend tokens for the staff login. A zero ExpiresAt
// means the expiry is unknown; the session is then trusted locally and the
// backend drives invalidation via 401 responses.
type Session struct {
	PrimaryToken string    `json:"primary_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the session is known to be expired at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
