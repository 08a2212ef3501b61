package models

import "time"

// IntentAction is the attendance change a member requested.
type IntentAction string

const (
	ActionCheckIn  IntentAction = "check_in"
	ActionCheckOut IntentAction = "check_out"
)

// Present reports the isPresentToday value this action implies.
func (a IntentAction) Present() bool { return a == ActionCheckIn }

// IntentStatus is the lifecycle state of an attendance intent.
type IntentStatus string

const (
	// IntentPending: durably queued, not yet resolved against the backend.
	IntentPending IntentStatus = "pending"
	// IntentCommitted: accepted by the backend; terminal.
	IntentCommitted IntentStatus = "committed"
	// IntentFailed: rejected or retries exhausted; terminal.
	IntentFailed IntentStatus = "failed"
	// IntentSuperseded: replaced by a newer intent for the same member and
	// date before resolving; any in-flight result is discarded. Terminal.
	IntentSuperseded IntentStatus = "superseded"
)

// Terminal reports whether the status can no longer change.
func (s IntentStatus) Terminal() bool {
	return s == IntentCommitted || s == IntentFailed || s == IntentSuperseded
}

// AttendanceIntent is a client-originated request to change a member's
// attendance state. Generation is assigned by the durable log in submission
// order and is the tie-breaker when network responses arrive out of order.
type AttendanceIntent struct {
	ID          string
	MemberID    string
	ProgramID   string
	Action      IntentAction
	ServiceDate string // YYYY-MM-DD, local kiosk date the intent applies to
	Generation  int64
	Status      IntentStatus
	Dispatched  bool
	// PrevPresent is the presence flag the optimistic flip displaced,
	// restored when the intent is cancelled or fails.
	PrevPresent bool
	RequestedAt time.Time
	LastError   string
}

// ServiceDateLayout formats timestamps into intent service dates.
const ServiceDateLayout = "2006-01-02"

// ServiceDate returns the attendance date bucket for ts.
func ServiceDate(ts time.Time) string {
	return ts.Format(ServiceDateLayout)
}
