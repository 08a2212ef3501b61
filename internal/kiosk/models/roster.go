package models

import "time"

// RosterEntry is one attendance-eligible member in the cached roster for the
// active program+date window. IsPresentToday is mutated only by roster
// refreshes and by the attendance write path.
type RosterEntry struct {
	MemberID       string
	DisplayName    string
	ProgramID      string
	IsPresentToday bool
	LastSyncedAt   time.Time
}
