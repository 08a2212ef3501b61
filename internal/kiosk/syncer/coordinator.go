// Package syncer drains the attendance write queue against the backend.
// Intents for the same member are dispatched strictly in submission order;
// intents for different members go out concurrently up to a configured
// bound. Transient failures are retried with capped exponential backoff,
// business rejections fail the intent immediately.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"github.com/rostermark/kiosk/internal/kiosk/backend"
	"github.com/rostermark/kiosk/internal/kiosk/events"
	"github.com/rostermark/kiosk/internal/kiosk/kioskerr"
	"github.com/rostermark/kiosk/internal/kiosk/models"
	"github.com/rostermark/kiosk/internal/kiosk/queue"
	"github.com/rostermark/kiosk/internal/logging"
)

// Options tune the dispatch loop. Zero values fall back to defaults.
type Options struct {
	// Interval between full rescans of the pending set.
	Interval time.Duration
	// Workers bounds concurrent in-flight marks across members.
	Workers int
	// RequestTimeout bounds each network attempt.
	RequestTimeout time.Duration
	// BaseDelay, MaxDelay and MaxAttempts shape the per-intent retry
	// policy for transient failures.
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
}

// Coordinator moves pending intents from the local queue to the backend.
type Coordinator struct {
	q      *queue.Queue
	client backend.Client
	hub    *events.Hub
	log    logging.Logger
	opts   Options

	sem *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[string]struct{} // member ids with a dispatch running
}

// NewCoordinator builds a coordinator over the queue and backend client.
func NewCoordinator(q *queue.Queue, client backend.Client, hub *events.Hub, log logging.Logger, opts Options) *Coordinator {
	opts.defaults()
	return &Coordinator{
		q:        q,
		client:   client,
		hub:      hub,
		log:      log,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.Workers)),
		inFlight: make(map[string]struct{}),
	}
}

// Run drives the dispatch loop until ctx is cancelled. It wakes on every
// newly-pending intent and additionally rescans on a fixed interval so
// intents that failed transiently or were left dispatched by a crash get
// picked up again.
func (c *Coordinator) Run(ctx context.Context) error {
	wake, cancel := c.hub.Intents.Subscribe(16)
	defer cancel()

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	c.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-wake:
			if ev.Status == models.IntentPending {
				c.drain(ctx)
			}
		case <-ticker.C:
			c.drain(ctx)
		}
	}
}

// drain scans the pending set once and starts a dispatch goroutine for every
// member that does not already have one running.
func (c *Coordinator) drain(ctx context.Context) {
	batch, err := c.q.PendingBatch(ctx)
	if err != nil {
		c.log.Error(ctx, "scanning pending intents", "error", err)
		return
	}

	for _, it := range batch {
		if !c.claimMember(it.MemberID) {
			continue // ordering: one in-flight intent per member
		}
		if err := c.sem.Acquire(ctx, 1); err != nil {
			c.releaseMember(it.MemberID)
			return
		}
		go func(it models.AttendanceIntent) {
			defer c.sem.Release(1)
			defer c.releaseMember(it.MemberID)
			c.dispatch(ctx, it)
		}(it)
	}
}

func (c *Coordinator) claimMember(memberID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[memberID]; busy {
		return false
	}
	c.inFlight[memberID] = struct{}{}
	return true
}

func (c *Coordinator) releaseMember(memberID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, memberID)
}

// dispatch pushes one intent to the backend, retrying transient failures
// with capped exponential backoff. The outcome is handed back to the queue,
// which owns status transitions and roster effects.
func (c *Coordinator) dispatch(ctx context.Context, it models.AttendanceIntent) {
	if err := c.q.BeginDispatch(ctx, it.ID); err != nil {
		if !errors.Is(err, kioskerr.ErrNotFound) {
			c.log.Error(ctx, "marking intent dispatched", "intent_id", it.ID, "error", err)
		}
		return
	}

	req := backend.MarkRequest{
		IntentID:  it.ID,
		MemberID:  it.MemberID,
		ProgramID: it.ProgramID,
		Action:    it.Action,
		Date:      it.ServiceDate,
	}

	var res backend.MarkResult
	backoff := retry.WithMaxRetries(uint64(c.opts.MaxAttempts-1),
		retry.WithCappedDuration(c.opts.MaxDelay, retry.NewExponential(c.opts.BaseDelay)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()

		r, err := c.client.MarkAttendance(attemptCtx, req)
		if err != nil {
			if errors.Is(err, kioskerr.ErrUnreachable) {
				c.log.Debug(ctx, "mark attempt failed, will retry", "intent_id", it.ID, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		res = r
		return nil
	})

	switch {
	case errors.Is(err, kioskerr.ErrSessionExpired):
		// the intent stays queued and is redelivered after re-login
		c.log.Warn(ctx, "mark deferred, session expired", "intent_id", it.ID)
	case err != nil:
		if ferr := c.q.Fail(ctx, it, err); ferr != nil {
			c.log.Error(ctx, "recording intent failure", "intent_id", it.ID, "error", ferr)
		}
	case !res.Accepted:
		if ferr := c.q.Fail(ctx, it, kioskerr.ErrIntentRejected); ferr != nil {
			c.log.Error(ctx, "recording intent rejection", "intent_id", it.ID, "error", ferr)
		}
	default:
		if cerr := c.q.Complete(ctx, it, res); cerr != nil {
			c.log.Error(ctx, "recording intent commit", "intent_id", it.ID, "error", cerr)
		}
	}
}
