// Package session implements the kiosk auth state machine: staff primary
// login, quick-access PIN setup/verify/lockout, kiosk lock/unlock, and
// session restore on cold start. The Manager is the sole writer of the
// Session and PinCredential records.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rostermark/kiosk/internal/cryptox"
	"github.com/rostermark/kiosk/internal/kiosk/backend"
	"github.com/rostermark/kiosk/internal/kiosk/events"
	"github.com/rostermark/kiosk/internal/kiosk/kioskerr"
	"github.com/rostermark/kiosk/internal/kiosk/models"
	"github.com/rostermark/kiosk/internal/kiosk/repositories/credentials"
	"github.com/rostermark/kiosk/internal/logging"
)

// Client is the backend surface the manager drives: the API calls plus the
// token plumbing of the HTTP client.
type Client interface {
	backend.Client
	SetTokens(primary, refresh string)
	OnTokenRefresh(fn func(models.Session))
}

// Gate is the onboarding flag consulted on cold start.
type Gate interface {
	IsComplete(ctx context.Context) (bool, error)
}

// Options tune the PIN lockout policy.
type Options struct {
	// PinMaxAttempts is the number of consecutive mismatches that locks
	// verification out.
	PinMaxAttempts int
	// LockoutCooldown is how long verification stays blocked.
	LockoutCooldown time.Duration
}

// Manager is the session state machine. All operations are synchronous
// against in-memory and local-durable state except the ones that talk to
// the backend (StartPrimaryLogin, Resume).
type Manager struct {
	creds  credentials.Repository
	client Client
	gate   Gate
	hub    *events.Hub
	log    logging.Logger
	opts   Options
	now    func() time.Time

	mu           sync.Mutex
	phase        models.SessionPhase
	reason       models.ErrorReason
	session      *models.Session
	pin          *models.PinCredential
	pinFailures  int
	lockoutUntil time.Time
}

// NewManager wires the state machine. It registers itself for token
// refreshes performed by the client so renewed sessions are persisted.
func NewManager(creds credentials.Repository, client Client, gate Gate, hub *events.Hub, log logging.Logger, opts Options) *Manager {
	if opts.PinMaxAttempts <= 0 {
		opts.PinMaxAttempts = 3
	}
	if opts.LockoutCooldown <= 0 {
		opts.LockoutCooldown = 5 * time.Minute
	}
	m := &Manager{
		creds:  creds,
		client: client,
		gate:   gate,
		hub:    hub,
		log:    log,
		opts:   opts,
		now:    time.Now,
		phase:  models.PhaseUnauthenticated,
	}
	client.OnTokenRefresh(m.sessionRefreshed)
	return m
}

// Phase returns the active phase and, for PhaseError, its reason.
func (m *Manager) Phase() (models.SessionPhase, models.ErrorReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase, m.reason
}

// PinSet reports whether a PIN credential exists.
func (m *Manager) PinSet() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pin != nil
}

// setPhase transitions to a new phase and announces it. Callers hold m.mu.
func (m *Manager) setPhase(to models.SessionPhase, reason models.ErrorReason) {
	from := m.phase
	m.phase = to
	m.reason = reason
	m.hub.Phases.Publish(events.PhaseChange{From: from, To: to, Reason: reason})
}

// sessionRefreshed persists a token pair the client renewed on its own.
func (m *Manager) sessionRefreshed(s models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	if err := m.creds.SaveSession(context.Background(), &s); err != nil {
		m.log.Error(context.Background(), "persist refreshed session", "error", err)
	}
}

// Resume restores state on cold start. With a stored unexpired session it
// lands in Locked when a PIN exists, Authenticated otherwise. An expired
// session is refreshed silently (one immediate retry); when that fails the
// machine surfaces Error(SessionExpired) and primary login is required.
// Credential-store corruption degrades to Unauthenticated, never a crash.
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	complete, err := m.gate.IsComplete(ctx)
	if err != nil {
		m.log.Warn(ctx, "read onboarding flag", "error", err)
	}
	if !complete {
		m.setPhase(models.PhaseUnauthenticated, models.ReasonNone)
		return nil
	}

	// the PIN record is loaded regardless of the session record's fate:
	// a later primary login must still land in Locked when a PIN exists
	pin, err := m.creds.LoadPin(ctx)
	switch {
	case err == nil:
		m.pin = pin
	case errors.Is(err, kioskerr.ErrNotFound):
		m.pin = nil
	default:
		m.log.Error(ctx, "load pin record", "error", err)
		_ = m.creds.DeletePin(ctx)
		m.pin = nil
	}

	sess, err := m.creds.LoadSession(ctx)
	if err != nil {
		if !errors.Is(err, kioskerr.ErrNotFound) {
			// corruption is fatal for this record only
			m.log.Error(ctx, "load session record", "error", err)
			_ = m.creds.DeleteSession(ctx)
		}
		m.setPhase(models.PhaseUnauthenticated, models.ReasonNone)
		return nil
	}

	if sess.Expired(m.now()) {
		refreshed, err := m.refreshWithRetry(ctx, sess.RefreshToken)
		if err != nil {
			m.setPhase(models.PhaseError, models.ReasonSessionExpired)
			return fmt.Errorf("resume: %w", kioskerr.ErrSessionExpired)
		}
		sess = refreshed
	}

	m.session = sess
	m.client.SetTokens(sess.PrimaryToken, sess.RefreshToken)
	if m.pin != nil {
		m.setPhase(models.PhaseLocked, models.ReasonNone)
	} else {
		m.setPhase(models.PhaseAuthenticated, models.ReasonNone)
	}
	return nil
}

// refreshWithRetry exchanges the refresh token, retrying once immediately on
// transient failure. A rejected refresh token is not retried. Callers hold
// m.mu.
func (m *Manager) refreshWithRetry(ctx context.Context, refreshToken string) (*models.Session, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		s, err := m.client.Refresh(ctx, refreshToken)
		if err == nil {
			if err := m.creds.SaveSession(ctx, &s); err != nil {
				m.log.Error(ctx, "persist refreshed session", "error", err)
			}
			return &s, nil
		}
		lastErr = err
		if errors.Is(err, kioskerr.ErrSessionExpired) {
			break
		}
		m.log.Warn(ctx, "silent refresh failed, retrying once", "error", err)
	}
	return nil, lastErr
}

// StartPrimaryLogin authenticates the staff credentials against the backend.
// Valid only from Unauthenticated or Error. Invalid credentials and
// unreachable backends both land in PhaseError with a retryable reason; the
// entered state is preserved so the UI can retry.
func (m *Manager) StartPrimaryLogin(ctx context.Context, username, password string) error {
	m.mu.Lock()
	if m.phase != models.PhaseUnauthenticated && m.phase != models.PhaseError {
		m.mu.Unlock()
		return kioskerr.ErrInvalidPhase
	}
	m.setPhase(models.PhasePrimaryAuthenticating, models.ReasonNone)
	m.mu.Unlock()

	sess, err := m.client.Login(ctx, backend.Credentials{Username: username, Password: password})

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		if errors.Is(err, kioskerr.ErrInvalidCredentials) {
			m.setPhase(models.PhaseError, models.ReasonInvalidCredentials)
		} else {
			m.setPhase(models.PhaseError, models.ReasonUnreachable)
		}
		return err
	}

	if err := m.creds.SaveSession(ctx, &sess); err != nil {
		m.setPhase(models.PhaseError, models.ReasonNone)
		return fmt.Errorf("persist session: %w", err)
	}

	m.session = &sess
	m.pinFailures = 0
	m.lockoutUntil = time.Time{}
	if m.pin != nil {
		m.setPhase(models.PhaseLocked, models.ReasonNone)
	} else {
		m.setPhase(models.PhaseAuthenticated, models.ReasonNone)
	}
	return nil
}

// BeginPinSetup moves an authenticated session into the PIN setup step.
func (m *Manager) BeginPinSetup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != models.PhaseAuthenticated {
		return kioskerr.ErrInvalidPhase
	}
	m.setPhase(models.PhasePinSetupPending, models.ReasonNone)
	return nil
}

// SetPin derives and stores a new PIN credential and unlocks the kiosk.
// Valid from Authenticated or PinSetupPending; setting a PIN requires a
// live authenticated session by construction.
func (m *Manager) SetPin(ctx context.Context, pin []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != models.PhaseAuthenticated && m.phase != models.PhasePinSetupPending {
		return kioskerr.ErrInvalidPhase
	}

	salt, err := cryptox.NewSalt()
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	cred := &models.PinCredential{
		Hash:      cryptox.DerivePinHash(pin, salt),
		Salt:      salt,
		CreatedAt: m.now(),
	}
	if err := m.creds.SavePin(ctx, cred); err != nil {
		return fmt.Errorf("persist pin: %w", err)
	}

	m.pin = cred
	m.pinFailures = 0
	m.lockoutUntil = time.Time{}
	m.setPhase(models.PhaseUnlocked, models.ReasonNone)
	return nil
}

// VerifyPin checks a candidate against the stored credential. A match
// unlocks; PinMaxAttempts consecutive mismatches lock verification out for
// the cooldown window (the credential itself is kept). During the cooldown
// every attempt is rejected immediately with ErrPinLockout; once it elapses
// the machine drops back to Locked and verification resumes.
func (m *Manager) VerifyPin(ctx context.Context, candidate []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.phase == models.PhaseLocked:
	case m.phase == models.PhaseError && m.reason == models.ReasonPinLockout:
		if m.now().Before(m.lockoutUntil) {
			return kioskerr.ErrPinLockout
		}
		m.pinFailures = 0
		m.setPhase(models.PhaseLocked, models.ReasonNone)
	default:
		return kioskerr.ErrInvalidPhase
	}

	if m.pin == nil {
		return kioskerr.ErrNoPin
	}

	if cryptox.VerifyPin(candidate, m.pin.Salt, m.pin.Hash) {
		m.pinFailures = 0
		m.setPhase(models.PhaseUnlocked, models.ReasonNone)
		return nil
	}

	m.pinFailures++
	m.log.Warn(ctx, "pin mismatch", "consecutive_failures", m.pinFailures)
	if m.pinFailures >= m.opts.PinMaxAttempts {
		m.lockoutUntil = m.now().Add(m.opts.LockoutCooldown)
		m.setPhase(models.PhaseError, models.ReasonPinLockout)
		return kioskerr.ErrPinLockout
	}
	return kioskerr.ErrPinMismatch
}

// Lock re-locks the kiosk, e.g. on app backgrounding or explicit staff
// action. Valid when a PIN exists and the machine is Unlocked or
// Authenticated.
func (m *Manager) Lock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != models.PhaseUnlocked && m.phase != models.PhaseAuthenticated {
		return kioskerr.ErrInvalidPhase
	}
	if m.pin == nil {
		return kioskerr.ErrNoPin
	}
	m.setPhase(models.PhaseLocked, models.ReasonNone)
	return nil
}

// Logout clears the session and the PIN credential in one logical operation
// and returns to Unauthenticated. Valid from any phase.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.creds.Clear(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	m.session = nil
	m.pin = nil
	m.pinFailures = 0
	m.lockoutUntil = time.Time{}
	m.client.SetTokens("", "")
	m.setPhase(models.PhaseUnauthenticated, models.ReasonNone)
	return nil
}
