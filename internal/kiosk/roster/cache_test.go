package roster

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostermark/kiosk/internal/kiosk/backend"
	"github.com/rostermark/kiosk/internal/kiosk/events"
	"github.com/rostermark/kiosk/internal/logging"
)

type fakeClient struct {
	backend.Client

	members []backend.RosterMember
	err     error
	calls   int
}

func (f *fakeClient) FetchRoster(ctx context.Context, programID, date string) ([]backend.RosterMember, error) {
	f.calls++
	return f.members, f.err
}

func newCache(t *testing.T) (*Cache, *events.Hub) {
	t.Helper()
	hub := events.NewHub()
	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	return NewCache(5*time.Minute, hub, log), hub
}

func TestRefresh_ReplacesSnapshot(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	client := &fakeClient{members: []backend.RosterMember{
		{MemberID: "m1", DisplayName: "Ada", IsPresentToday: true},
		{MemberID: "m2", DisplayName: "Lin"},
	}}
	require.NoError(t, c.Refresh(ctx, client, "prog-1", "2026-08-26"))

	e, ok := c.Get("m1")
	require.True(t, ok)
	assert.True(t, e.IsPresentToday)
	assert.Equal(t, "prog-1", e.ProgramID)
	assert.False(t, e.LastSyncedAt.IsZero())

	p, d := c.Key()
	assert.Equal(t, "prog-1", p)
	assert.Equal(t, "2026-08-26", d)

	// wholesale replace drops members missing from the new fetch
	client.members = []backend.RosterMember{{MemberID: "m2", DisplayName: "Lin"}}
	require.NoError(t, c.Refresh(ctx, client, "prog-1", "2026-08-26"))
	_, ok = c.Get("m1")
	assert.False(t, ok)
}

func TestRefresh_Error(t *testing.T) {
	c, _ := newCache(t)
	boom := errors.New("boom")

	err := c.Refresh(context.Background(), &fakeClient{err: boom}, "p", "d")
	assert.ErrorIs(t, err, boom)
	assert.True(t, c.Stale(), "failed refresh must not mark the cache fresh")
}

func TestStale(t *testing.T) {
	c, _ := newCache(t)
	assert.True(t, c.Stale(), "empty cache is stale")

	require.NoError(t, c.Refresh(context.Background(), &fakeClient{}, "p", "d"))
	assert.False(t, c.Stale())

	c.now = func() time.Time { return time.Now().Add(6 * time.Minute) }
	assert.True(t, c.Stale())
}

func TestSetPresence_OptimisticFlipAndEvent(t *testing.T) {
	c, hub := newCache(t)
	sub, cancel := hub.Roster.Subscribe(4)
	defer cancel()

	require.NoError(t, c.Refresh(context.Background(), &fakeClient{members: []backend.RosterMember{
		{MemberID: "m1", DisplayName: "Ada"},
	}}, "p", "d"))

	prev, ok := c.SetPresence("m1", true)
	require.True(t, ok)
	assert.False(t, prev)

	e, _ := c.Get("m1")
	assert.True(t, e.IsPresentToday)

	ev := <-sub
	assert.Equal(t, events.RosterChange{MemberID: "m1", Present: true}, ev)

	_, ok = c.SetPresence("ghost", true)
	assert.False(t, ok)
}

func TestApplyAuthoritative(t *testing.T) {
	c, _ := newCache(t)
	require.NoError(t, c.Refresh(context.Background(), &fakeClient{members: []backend.RosterMember{
		{MemberID: "m1", DisplayName: "Ada"},
	}}, "p", "d"))

	c.SetPresence("m1", true)

	// server disagrees with the optimistic guess
	syncedAt := time.Now().Add(time.Second)
	c.ApplyAuthoritative("m1", false, syncedAt)

	e, _ := c.Get("m1")
	assert.False(t, e.IsPresentToday)
	assert.Equal(t, syncedAt, e.LastSyncedAt)
}

func TestSnapshot_SortedByDisplayName(t *testing.T) {
	c, _ := newCache(t)
	require.NoError(t, c.Refresh(context.Background(), &fakeClient{members: []backend.RosterMember{
		{MemberID: "m1", DisplayName: "Zoe"},
		{MemberID: "m2", DisplayName: "Ada"},
	}}, "p", "d"))

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Ada", snap[0].DisplayName)
	assert.Equal(t, "Zoe", snap[1].DisplayName)
}
