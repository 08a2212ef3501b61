// Package kioskerr defines the sentinel errors shared across the kiosk
// client. Callers should match them with errors.Is.
package kioskerr

import "errors"

var (
	// Auth errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrNoSession          = errors.New("no session")

	// PIN errors.
	ErrPinMismatch = errors.New("pin mismatch")
	ErrPinLockout  = errors.New("pin verification locked out")
	ErrNoPin       = errors.New("no pin configured")

	// Transport errors. Unreachable covers timeouts and 5xx-class
	// responses; it is retried by the sync coordinator and never
	// surfaced until retries are exhausted.
	ErrUnreachable = errors.New("backend unreachable")

	// Attendance errors.
	ErrIntentRejected    = errors.New("intent rejected by backend")
	ErrAlreadyDispatched = errors.New("intent already dispatched")

	// State machine errors.
	ErrInvalidPhase = errors.New("operation not valid in current phase")

	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrStorageCorrupt = errors.New("stored record corrupt")
)
