// Package cli is the interactive kiosk frontend: a small REPL over the
// session state machine, the roster cache and the attendance write queue.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rostermark/kiosk/internal/kiosk/backend"
	"github.com/rostermark/kiosk/internal/kiosk/config"
	"github.com/rostermark/kiosk/internal/kiosk/events"
	"github.com/rostermark/kiosk/internal/kiosk/models"
	"github.com/rostermark/kiosk/internal/kiosk/onboarding"
	"github.com/rostermark/kiosk/internal/kiosk/queue"
	"github.com/rostermark/kiosk/internal/kiosk/roster"
	"github.com/rostermark/kiosk/internal/kiosk/session"
	"github.com/rostermark/kiosk/internal/kiosk/store"
	"github.com/rostermark/kiosk/internal/kiosk/syncer"
	"github.com/rostermark/kiosk/internal/logging"
)

// Mode reflects the last known backend reachability.
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// App wires the kiosk components together and drives the REPL.
type App struct {
	config  *config.Config
	log     logging.Logger
	store   *store.Store
	client  *backend.HTTPClient
	hub     *events.Hub
	gate    *onboarding.Gate
	session *session.Manager
	cache   *roster.Cache
	queue   *queue.Queue
	coord   *syncer.Coordinator

	reader *bufio.Reader
	Mode   Mode
}

// NewApp opens the local store and builds the full component graph.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	st, err := store.Open(ctx, c.DatabasePath)
	if err != nil {
		log.Error(ctx, "opening local store", "path", c.DatabasePath, "error", err)
		return nil, err
	}

	client := backend.NewHTTPClient(c.BackendBaseURL, c.RequestTimeout, log)
	hub := events.NewHub()
	gate := onboarding.NewGate(st.DB())

	sess := session.NewManager(st.Credentials, client, gate, hub, log, session.Options{
		PinMaxAttempts:  c.PinMaxAttempts,
		LockoutCooldown: c.PinLockoutCooldown,
	})

	cache := roster.NewCache(c.RosterTTL, hub, log)
	q := queue.NewQueue(st.DB(), cache, hub, log)

	coord := syncer.NewCoordinator(q, client, hub, log, syncer.Options{
		Interval:       c.SyncInterval,
		Workers:        c.SyncWorkers,
		RequestTimeout: c.RequestTimeout,
		BaseDelay:      c.RetryBaseDelay,
		MaxDelay:       c.RetryMaxDelay,
		MaxAttempts:    c.RetryMaxAttempts,
	})

	a := &App{
		config:  c,
		log:     log,
		store:   st,
		client:  client,
		hub:     hub,
		gate:    gate,
		session: sess,
		cache:   cache,
		queue:   q,
		coord:   coord,
		reader:  bufio.NewReader(os.Stdin),
		Mode:    ModeOffline,
	}

	q.OnStaleRoster(func() {
		rctx, cancel := context.WithTimeout(context.Background(), c.RequestTimeout)
		defer cancel()
		_ = a.refreshRoster(rctx)
	})

	return a, nil
}

// Run resumes the persisted session, starts the background workers and
// hands control to the REPL. It returns when the REPL exits or ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	if err := a.session.Resume(ctx); err != nil {
		fmt.Println("Stored session could not be resumed, please log in again.")
	}

	go func() { _ = a.coord.Run(ctx) }()
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	go a.watchIntents(ctx)

	a.Root(ctx)
	return nil
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		fmt.Printf("Backend is %s\n", mode)
	}
}

// StartOnlineStatusWatcher probes the backend on the given interval and
// flips the Mode indicator accordingly.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.client.Ping(pctx)
			cancel()

			if err != nil {
				a.setMode(ModeOffline)
			} else {
				a.setMode(ModeOnline)
			}
		case <-ctx.Done():
			return
		}
	}
}

// watchIntents echoes queue resolutions to the operator so a mark that was
// accepted optimistically but later failed does not go unnoticed.
func (a *App) watchIntents(ctx context.Context) {
	ch, cancel := a.hub.Intents.Subscribe(16)
	defer cancel()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Status {
			case models.IntentCommitted:
				fmt.Printf("[sync] mark for %s confirmed\n", ev.MemberID)
			case models.IntentFailed:
				fmt.Printf("[sync] mark for %s failed: %s\n", ev.MemberID, ev.Err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) isUnlocked() bool {
	phase, _ := a.session.Phase()
	return phase == models.PhaseUnlocked
}
