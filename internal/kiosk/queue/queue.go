// Package queue is the attendance write path: it turns check-in/out requests
// into durable AttendanceIntents, applies them optimistically to the roster
// cache, and resolves backend outcomes against the supersede rules. It is
// the sole writer of intent status and the only code allowed to flip
// presence flags outside a full roster refresh.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rostermark/kiosk/internal/dbx"
	"github.com/rostermark/kiosk/internal/kiosk/backend"
	"github.com/rostermark/kiosk/internal/kiosk/events"
	"github.com/rostermark/kiosk/internal/kiosk/kioskerr"
	"github.com/rostermark/kiosk/internal/kiosk/models"
	"github.com/rostermark/kiosk/internal/kiosk/repositories/intents"
	"github.com/rostermark/kiosk/internal/kiosk/roster"
	"github.com/rostermark/kiosk/internal/logging"
)

// Queue owns the intent lifecycle. Submit and Cancel are called by the UI;
// PendingBatch, BeginDispatch, Complete and Fail by the sync coordinator.
type Queue struct {
	db    *sql.DB
	repo  intents.Repository
	cache *roster.Cache
	hub   *events.Hub
	log   logging.Logger

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	onStale func()
}

// NewQueue builds the write queue over the durable intent log.
func NewQueue(db *sql.DB, cache *roster.Cache, hub *events.Hub, log logging.Logger) *Queue {
	return &Queue{
		db:    db,
		repo:  intents.NewSQLiteRepository(db),
		cache: cache,
		hub:   hub,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// OnStaleRoster registers a hook fired (on its own goroutine) when a submit
// lands on a stale roster snapshot, for opportunistic background refresh.
func (q *Queue) OnStaleRoster(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onStale = fn
}

func (q *Queue) publish(ev events.IntentChange) {
	q.hub.Intents.Publish(ev)
}

// Submit records a new attendance intent, flips the member's cached
// presence immediately, and returns the intent id. It never waits on the
// network. A still-pending intent for the same member and date is
// superseded: its status flips and any in-flight result will be discarded
// on arrival. Committed intents are history and are never superseded.
//
// Supersede and append happen in one transaction: a crash never leaves the
// prior intent retired without its replacement on disk.
func (q *Queue) Submit(ctx context.Context, memberID, programID string, action models.IntentAction) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	date := models.ServiceDate(now)

	entry, inRoster := q.cache.Get(memberID)

	it := &models.AttendanceIntent{
		ID:          q.newID(),
		MemberID:    memberID,
		ProgramID:   programID,
		Action:      action,
		ServiceDate: date,
		Status:      models.IntentPending,
		PrevPresent: entry.IsPresentToday,
		RequestedAt: now,
	}

	var superseded []string
	err := dbx.WithTx(ctx, q.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := intents.NewSQLiteRepository(tx)

		active, err := repo.ActiveForMember(ctx, memberID, date)
		if err != nil {
			return fmt.Errorf("scan active intents: %w", err)
		}
		for _, prev := range active {
			if err := repo.UpdateStatus(ctx, prev.ID, models.IntentSuperseded, ""); err != nil {
				return fmt.Errorf("supersede intent %s: %w", prev.ID, err)
			}
			superseded = append(superseded, prev.ID)
		}
		if err := repo.Insert(ctx, it); err != nil {
			return fmt.Errorf("enqueue intent: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	for _, id := range superseded {
		q.log.Debug(ctx, "intent superseded", "intent_id", id, "member_id", memberID)
		q.publish(events.IntentChange{
			IntentID: id,
			MemberID: memberID,
			Status:   models.IntentSuperseded,
		})
	}

	if !inRoster {
		// member missing from a possibly-stale snapshot; the intent
		// still goes through and the server has the final word
		q.log.Warn(ctx, "submit for member not in cached roster", "member_id", memberID)
	}
	q.cache.SetPresence(memberID, action.Present())

	q.publish(events.IntentChange{
		IntentID: it.ID,
		MemberID: memberID,
		Status:   models.IntentPending,
	})

	if q.cache.Stale() && q.onStale != nil {
		go q.onStale()
	}
	return it.ID, nil
}

// Cancel removes an intent that is still Pending and has not been handed to
// the network, restoring the presence flag the optimistic flip displaced.
// Anything already dispatched runs to completion (its result may still be
// superseded later).
func (q *Queue) Cancel(ctx context.Context, intentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, err := q.repo.GetByID(ctx, intentID)
	if err != nil {
		return err
	}
	if it.Status != models.IntentPending || it.Dispatched {
		return kioskerr.ErrAlreadyDispatched
	}

	if err := q.repo.Delete(ctx, intentID); err != nil {
		return fmt.Errorf("cancel intent %s: %w", intentID, err)
	}
	q.cache.SetPresence(it.MemberID, it.PrevPresent)
	q.log.Info(ctx, "intent cancelled", "intent_id", intentID, "member_id", it.MemberID)
	return nil
}

// PendingBatch lists pending intents in submission order, including
// dispatched-but-unresolved ones left over from a crash.
func (q *Queue) PendingBatch(ctx context.Context) ([]models.AttendanceIntent, error) {
	return q.repo.Pending(ctx)
}

// BeginDispatch flags the intent as handed to the network.
func (q *Queue) BeginDispatch(ctx context.Context, intentID string) error {
	return q.repo.MarkDispatched(ctx, intentID)
}

// Complete applies a successful backend outcome. The authoritative presence
// from the response replaces the optimistic guess — unless the intent was
// superseded while in flight, or a newer generation exists for the same
// member and date, in which case the result is discarded without touching
// the roster.
func (q *Queue) Complete(ctx context.Context, it models.AttendanceIntent, res backend.MarkResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, err := q.repo.GetByID(ctx, it.ID)
	if err != nil {
		if errors.Is(err, kioskerr.ErrNotFound) {
			return nil
		}
		return err
	}
	if cur.Status == models.IntentSuperseded {
		q.log.Debug(ctx, "discarding result of superseded intent", "intent_id", it.ID)
		return nil
	}

	latest, err := q.repo.LatestGeneration(ctx, it.MemberID, it.ServiceDate)
	if err != nil {
		return err
	}

	if err := q.repo.UpdateStatus(ctx, it.ID, models.IntentCommitted, ""); err != nil {
		return err
	}
	if it.Generation >= latest {
		q.cache.ApplyAuthoritative(it.MemberID, res.PresentNow, q.now())
	} else {
		// a newer intent owns the member's presence now
		q.log.Debug(ctx, "stale generation committed without roster apply",
			"intent_id", it.ID, "generation", it.Generation, "latest", latest)
	}

	q.publish(events.IntentChange{
		IntentID: it.ID,
		MemberID: it.MemberID,
		Status:   models.IntentCommitted,
	})
	q.log.Info(ctx, "intent committed", "intent_id", it.ID, "member_id", it.MemberID)
	return nil
}

// Fail records a terminal failure and restores the presence flag the
// optimistic flip displaced, unless a newer intent has taken over the
// member's presence in the meantime.
func (q *Queue) Fail(ctx context.Context, it models.AttendanceIntent, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, err := q.repo.GetByID(ctx, it.ID)
	if err != nil {
		if errors.Is(err, kioskerr.ErrNotFound) {
			return nil
		}
		return err
	}
	if cur.Status == models.IntentSuperseded {
		q.log.Debug(ctx, "discarding failure of superseded intent", "intent_id", it.ID)
		return nil
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := q.repo.UpdateStatus(ctx, it.ID, models.IntentFailed, msg); err != nil {
		return err
	}

	latest, err := q.repo.LatestGeneration(ctx, it.MemberID, it.ServiceDate)
	if err != nil {
		return err
	}
	if it.Generation >= latest {
		q.cache.SetPresence(it.MemberID, it.PrevPresent)
	}

	q.publish(events.IntentChange{
		IntentID: it.ID,
		MemberID: it.MemberID,
		Status:   models.IntentFailed,
		Err:      msg,
	})
	q.log.Warn(ctx, "intent failed", "intent_id", it.ID, "member_id", it.MemberID, "error", msg)
	return nil
}
