// Package roster caches the attendance-eligible member list for the active
// program+date window. The cache is a time-boxed snapshot: staleness never
// blocks reads or writes, it only signals that a background refresh is due.
package roster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rostermark/kiosk/internal/kiosk/backend"
	"github.com/rostermark/kiosk/internal/kiosk/events"
	"github.com/rostermark/kiosk/internal/kiosk/models"
	"github.com/rostermark/kiosk/internal/logging"
)

// Cache is the in-memory roster snapshot. Presence flags are mutated only
// by Refresh (wholesale) and by the attendance write path (SetPresence and
// ApplyAuthoritative).
type Cache struct {
	ttl time.Duration
	hub *events.Hub
	log logging.Logger
	now func() time.Time

	mu        sync.RWMutex
	programID string
	date      string
	fetchedAt time.Time
	entries   map[string]models.RosterEntry
}

// NewCache builds an empty cache with the given staleness TTL.
func NewCache(ttl time.Duration, hub *events.Hub, log logging.Logger) *Cache {
	return &Cache{
		ttl:     ttl,
		hub:     hub,
		log:     log,
		now:     time.Now,
		entries: make(map[string]models.RosterEntry),
	}
}

// Refresh fetches the roster for programID+date and replaces the snapshot
// wholesale, stamping it with the fetch time. Entries whose presence flag
// changed produce roster-change events.
func (c *Cache) Refresh(ctx context.Context, client backend.Client, programID, date string) error {
	members, err := client.FetchRoster(ctx, programID, date)
	if err != nil {
		return fmt.Errorf("refresh roster %s/%s: %w", programID, date, err)
	}
	now := c.now()

	c.mu.Lock()
	old := c.entries
	c.entries = make(map[string]models.RosterEntry, len(members))
	for _, m := range members {
		c.entries[m.MemberID] = models.RosterEntry{
			MemberID:       m.MemberID,
			DisplayName:    m.DisplayName,
			ProgramID:      programID,
			IsPresentToday: m.IsPresentToday,
			LastSyncedAt:   now,
		}
	}
	c.programID = programID
	c.date = date
	c.fetchedAt = now

	var changed []events.RosterChange
	for id, e := range c.entries {
		if prev, ok := old[id]; !ok || prev.IsPresentToday != e.IsPresentToday {
			changed = append(changed, events.RosterChange{MemberID: id, Present: e.IsPresentToday})
		}
	}
	c.mu.Unlock()

	for _, ev := range changed {
		c.hub.Roster.Publish(ev)
	}
	c.log.Debug(ctx, "roster refreshed", "program_id", programID, "date", date, "members", len(members))
	return nil
}

// Get returns the cached entry for memberID, if present.
func (c *Cache) Get(memberID string) (models.RosterEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[memberID]
	return e, ok
}

// Snapshot returns all cached entries sorted by display name.
func (c *Cache) Snapshot() []models.RosterEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.RosterEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}

// Key returns the program+date window the snapshot was fetched for.
func (c *Cache) Key() (programID, date string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.programID, c.date
}

// Stale reports whether the snapshot is older than the TTL (or was never
// fetched). Stale entries are still served for optimistic display.
func (c *Cache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fetchedAt.IsZero() {
		return true
	}
	return c.now().Sub(c.fetchedAt) > c.ttl
}

// SetPresence applies an optimistic presence flip for memberID. Only the
// attendance write queue calls this. Returns the previous flag and whether
// the member is in the snapshot.
func (c *Cache) SetPresence(memberID string, present bool) (prev bool, ok bool) {
	c.mu.Lock()
	e, ok := c.entries[memberID]
	if ok {
		prev = e.IsPresentToday
		e.IsPresentToday = present
		c.entries[memberID] = e
	}
	c.mu.Unlock()

	if ok {
		c.hub.Roster.Publish(events.RosterChange{MemberID: memberID, Present: present})
	}
	return prev, ok
}

// ApplyAuthoritative records the server's view of a member's presence after
// a committed mark, replacing whatever the optimistic guess was.
func (c *Cache) ApplyAuthoritative(memberID string, present bool, at time.Time) {
	c.mu.Lock()
	e, ok := c.entries[memberID]
	if ok {
		e.IsPresentToday = present
		e.LastSyncedAt = at
		c.entries[memberID] = e
	}
	c.mu.Unlock()

	if ok {
		c.hub.Roster.Publish(events.RosterChange{MemberID: memberID, Present: present})
	}
}
