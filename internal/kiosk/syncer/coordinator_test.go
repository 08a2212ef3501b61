package syncer

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/rostermark/kiosk/internal/kiosk/backend"
	"github.com/rostermark/kiosk/internal/kiosk/events"
	"github.com/rostermark/kiosk/internal/kiosk/kioskerr"
	"github.com/rostermark/kiosk/internal/kiosk/models"
	"github.com/rostermark/kiosk/internal/kiosk/queue"
	"github.com/rostermark/kiosk/internal/kiosk/repositories/intents"
	"github.com/rostermark/kiosk/internal/kiosk/roster"
	"github.com/rostermark/kiosk/internal/logging"
)

type markReply struct {
	res backend.MarkResult
	err error
}

type fakeClient struct {
	backend.Client

	mu      sync.Mutex
	members []backend.RosterMember
	replies []markReply
	reqs    []backend.MarkRequest
}

func (f *fakeClient) FetchRoster(ctx context.Context, programID, date string) ([]backend.RosterMember, error) {
	return f.members, nil
}

func (f *fakeClient) MarkAttendance(ctx context.Context, req backend.MarkRequest) (backend.MarkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if len(f.replies) == 0 {
		return backend.MarkResult{Accepted: true, PresentNow: req.Action.Present()}, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.res, r.err
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fixture struct {
	repo   intents.Repository
	cache  *roster.Cache
	q      *queue.Queue
	client *fakeClient
	c      *Coordinator
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE intents (
  generation   INTEGER PRIMARY KEY AUTOINCREMENT,
  id           TEXT NOT NULL UNIQUE,
  member_id    TEXT NOT NULL,
  program_id   TEXT NOT NULL,
  action       TEXT NOT NULL,
  service_date TEXT NOT NULL,
  status       TEXT NOT NULL DEFAULT 'pending',
  dispatched   INTEGER NOT NULL DEFAULT 0,
  prev_present INTEGER NOT NULL DEFAULT 0,
  requested_at TIMESTAMP NOT NULL,
  last_error   TEXT NOT NULL DEFAULT ''
);
`)
	require.NoError(t, err)

	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	hub := events.NewHub()
	client := &fakeClient{members: []backend.RosterMember{
		{MemberID: "m1", DisplayName: "Ada"},
		{MemberID: "m2", DisplayName: "Ben"},
	}}
	cache := roster.NewCache(time.Hour, hub, log)
	require.NoError(t, cache.Refresh(context.Background(), client, "prog-1", "2026-08-26"))

	repo := intents.NewSQLiteRepository(db)
	q := queue.NewQueue(db, cache, hub, log)

	c := NewCoordinator(q, client, hub, log, Options{
		Interval:    50 * time.Millisecond,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		MaxAttempts: 3,
	})
	return &fixture{repo: repo, cache: cache, q: q, client: client, c: c}
}

func submit(t *testing.T, f *fixture, member string, action models.IntentAction) models.AttendanceIntent {
	t.Helper()
	id, err := f.q.Submit(context.Background(), member, "prog-1", action)
	require.NoError(t, err)
	it, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return *it
}

func TestDispatch_CommitsAcceptedMark(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	it := submit(t, f, "m1", models.ActionCheckIn)
	f.c.dispatch(ctx, it)

	got, err := f.repo.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentCommitted, got.Status)
	assert.True(t, got.Dispatched)

	require.Equal(t, 1, f.client.calls())
	req := f.client.reqs[0]
	assert.Equal(t, it.ID, req.IntentID)
	assert.Equal(t, "m1", req.MemberID)
	assert.Equal(t, "2026-08-26", req.Date)

	entry, _ := f.cache.Get("m1")
	assert.True(t, entry.IsPresentToday)
}

func TestDispatch_RejectionFailsWithoutRetry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.client.replies = []markReply{{err: kioskerr.ErrIntentRejected}}

	it := submit(t, f, "m1", models.ActionCheckIn)
	f.c.dispatch(ctx, it)

	got, err := f.repo.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentFailed, got.Status)
	assert.Equal(t, 1, f.client.calls())

	// the optimistic flip is rolled back
	entry, _ := f.cache.Get("m1")
	assert.False(t, entry.IsPresentToday)
}

func TestDispatch_NotAcceptedFailsIntent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.client.replies = []markReply{{res: backend.MarkResult{Accepted: false}}}

	it := submit(t, f, "m1", models.ActionCheckIn)
	f.c.dispatch(ctx, it)

	got, err := f.repo.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentFailed, got.Status)
}

func TestDispatch_RetriesTransientThenCommits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.client.replies = []markReply{
		{err: kioskerr.ErrUnreachable},
		{err: kioskerr.ErrUnreachable},
		{res: backend.MarkResult{Accepted: true, PresentNow: true}},
	}

	it := submit(t, f, "m1", models.ActionCheckIn)
	f.c.dispatch(ctx, it)

	got, err := f.repo.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentCommitted, got.Status)
	assert.Equal(t, 3, f.client.calls())
}

func TestDispatch_ExhaustedRetriesFailIntent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.client.replies = []markReply{
		{err: kioskerr.ErrUnreachable},
		{err: kioskerr.ErrUnreachable},
		{err: kioskerr.ErrUnreachable},
	}

	it := submit(t, f, "m1", models.ActionCheckIn)
	f.c.dispatch(ctx, it)

	got, err := f.repo.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentFailed, got.Status)
	assert.Equal(t, 3, f.client.calls())
}

func TestDispatch_SessionExpiredLeavesIntentPending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.client.replies = []markReply{{err: kioskerr.ErrSessionExpired}}

	it := submit(t, f, "m1", models.ActionCheckIn)
	f.c.dispatch(ctx, it)

	got, err := f.repo.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentPending, got.Status)
	assert.True(t, got.Dispatched)
}

func TestDispatch_SupersededWhileInFlightIsDiscarded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	it := submit(t, f, "m1", models.ActionCheckIn)

	// the member reverses the action before the reply lands
	_, err := f.q.Submit(ctx, "m1", "prog-1", models.ActionCheckOut)
	require.NoError(t, err)

	f.c.dispatch(ctx, it)

	got, err := f.repo.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentSuperseded, got.Status)

	entry, _ := f.cache.Get("m1")
	assert.False(t, entry.IsPresentToday)
}

func TestDrain_SerializesPerMember(t *testing.T) {
	f := setup(t)

	require.True(t, f.c.claimMember("m1"))
	assert.False(t, f.c.claimMember("m1"))
	assert.True(t, f.c.claimMember("m2"))

	f.c.releaseMember("m1")
	assert.True(t, f.c.claimMember("m1"))
}

func TestRun_DrainsOnPendingEvent(t *testing.T) {
	f := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = f.c.Run(ctx)
		close(done)
	}()

	it := submit(t, f, "m1", models.ActionCheckIn)

	require.Eventually(t, func() bool {
		got, err := f.repo.GetByID(ctx, it.ID)
		return err == nil && got.Status == models.IntentCommitted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
