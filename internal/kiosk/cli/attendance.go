package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rostermark/kiosk/internal/kiosk/kioskerr"
	"github.com/rostermark/kiosk/internal/kiosk/models"
)

func (a *App) refreshRoster(ctx context.Context) error {
	date := models.ServiceDate(time.Now())
	return a.cache.Refresh(ctx, a.client, a.config.ProgramID, date)
}

// listRoster prints the cached roster, refreshing it first when stale and
// falling back to the cached snapshot if the backend is unreachable.
func (a *App) listRoster(ctx context.Context) {
	if !a.isUnlocked() {
		fmt.Println("Unlock the kiosk first.")
		return
	}

	if a.cache.Stale() {
		if err := a.refreshRoster(ctx); err != nil {
			fmt.Println("Roster refresh failed, showing cached snapshot:", err)
		}
	}

	entries := a.cache.Snapshot()
	if len(entries) == 0 {
		fmt.Println("Roster is empty. Try 'refresh'.")
		return
	}

	_, date := a.cache.Key()
	fmt.Printf("Roster for %s (%d members):\n", date, len(entries))
	for _, e := range entries {
		marker := " "
		if e.IsPresentToday {
			marker = "+"
		}
		fmt.Printf("  [%s] %-24s %s\n", marker, e.DisplayName, e.MemberID)
	}
}

// mark submits a check-in or check-out for the member. The roster flips
// immediately; the backend confirmation arrives via the sync watcher.
func (a *App) mark(ctx context.Context, memberID string, action models.IntentAction) {
	if !a.isUnlocked() {
		fmt.Println("Unlock the kiosk first.")
		return
	}

	name := memberID
	if e, ok := a.cache.Get(memberID); ok {
		name = e.DisplayName
	} else {
		fmt.Println("Warning: member not in the cached roster, submitting anyway.")
	}

	id, err := a.queue.Submit(ctx, memberID, a.config.ProgramID, action)
	if err != nil {
		fmt.Println("Submit failed:", err)
		return
	}

	verb := "checked in"
	if !action.Present() {
		verb = "checked out"
	}
	fmt.Printf("%s %s (intent %s)\n", name, verb, id)
}

// cancel withdraws a queued intent that has not reached the network yet.
func (a *App) cancel(ctx context.Context, intentID string) {
	err := a.queue.Cancel(ctx, intentID)
	switch {
	case err == nil:
		fmt.Println("Intent cancelled.")
	case errors.Is(err, kioskerr.ErrAlreadyDispatched):
		fmt.Println("Too late, the intent is already on the wire.")
	case errors.Is(err, kioskerr.ErrNotFound):
		fmt.Println("No such intent.")
	default:
		fmt.Println("Cancel failed:", err)
	}
}

// status summarizes the session, connectivity and queue depth.
func (a *App) status(ctx context.Context) {
	phase, reason := a.session.Phase()
	fmt.Printf("Session:  %s", phase)
	if reason != models.ReasonNone {
		fmt.Printf(" (%s)", reason)
	}
	fmt.Println()
	fmt.Printf("Backend:  %s\n", a.Mode)
	fmt.Printf("PIN set:  %v\n", a.session.PinSet())

	program, date := a.cache.Key()
	if date != "" {
		staleness := "fresh"
		if a.cache.Stale() {
			staleness = "stale"
		}
		fmt.Printf("Roster:   %s/%s (%s, %d members)\n", program, date, staleness, len(a.cache.Snapshot()))
	} else {
		fmt.Println("Roster:   not fetched")
	}

	pending, err := a.queue.PendingBatch(ctx)
	if err != nil {
		fmt.Println("Queue:    unavailable:", err)
		return
	}
	fmt.Printf("Queue:    %d pending\n", len(pending))
	for _, it := range pending {
		fmt.Printf("  %s %s %s\n", it.ID, it.Action, it.MemberID)
	}
}
