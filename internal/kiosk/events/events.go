// Package events delivers the kiosk core's change notifications to the UI
// layer as discrete typed events: session phase transitions, roster entry
// changes, and intent status changes.
package events

import (
	"sync"

	"github.com/rostermark/kiosk/internal/kiosk/models"
)

// PhaseChange announces a session state machine transition.
type PhaseChange struct {
	From   models.SessionPhase
	To     models.SessionPhase
	Reason models.ErrorReason
}

// RosterChange announces a presence flip for one member.
type RosterChange struct {
	MemberID string
	Present  bool
}

// IntentChange announces an intent status transition.
type IntentChange struct {
	IntentID string
	MemberID string
	Status   models.IntentStatus
	Err      string
}

// Bus fans out events of one type to subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event, which is acceptable
// for a kiosk UI that re-reads current state on redraw.
type Bus[T any] struct {
	mu   sync.Mutex
	subs map[int]chan T
	next int
}

// NewBus returns an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a subscriber with the given channel buffer. The
// returned cancel func removes the subscription and closes the channel;
// it is safe to call more than once.
func (b *Bus[T]) Subscribe(buffer int) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan T, buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus[T]) Publish(ev T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Hub bundles the three kiosk buses so components share one wiring point.
type Hub struct {
	Phases  *Bus[PhaseChange]
	Roster  *Bus[RosterChange]
	Intents *Bus[IntentChange]
}

// NewHub builds a hub with empty buses.
func NewHub() *Hub {
	return &Hub{
		Phases:  NewBus[PhaseChange](),
		Roster:  NewBus[RosterChange](),
		Intents: NewBus[IntentChange](),
	}
}
