// Package config assembles the kiosk runtime configuration from layered
// sources: built-in defaults, then a JSON file (-c), then environment
// variables, then command-line flags. Later sources win.
package config

import "time"

// Config holds the runtime settings for the kiosk client.
type Config struct {
	// BackendBaseURL is the base URL of the organization backend API.
	BackendBaseURL string
	// DatabasePath is the kiosk-local sqlite database file.
	DatabasePath string
	// ProgramID selects the program whose roster this kiosk serves.
	ProgramID string

	// RequestTimeout bounds each network attempt.
	RequestTimeout time.Duration
	// RosterTTL is the age after which the cached roster counts as stale.
	RosterTTL time.Duration
	// SyncInterval is how often the sync coordinator rescans pending
	// intents, independent of submit wake-ups.
	SyncInterval time.Duration
	// OnlineCheckInterval is how often the backend liveness probe runs.
	OnlineCheckInterval time.Duration

	// SyncWorkers bounds concurrent in-flight attendance marks.
	SyncWorkers int
	// RetryBaseDelay, RetryMaxDelay and RetryMaxAttempts shape the
	// exponential backoff for transient mark failures.
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryMaxAttempts int

	// PinMaxAttempts is the number of consecutive PIN mismatches that
	// trigger a lockout; PinLockoutCooldown is how long the lockout
	// blocks re-verification.
	PinMaxAttempts     int
	PinLockoutCooldown time.Duration
}

// LoadDefaults populates c with the documented defaults.
func (c *Config) LoadDefaults() {
	c.BackendBaseURL = "http://127.0.0.1:8080"
	c.DatabasePath = "kiosk.db"
	c.ProgramID = ""
	c.RequestTimeout = 10 * time.Second
	c.RosterTTL = 5 * time.Minute
	c.SyncInterval = 2 * time.Second
	c.OnlineCheckInterval = 15 * time.Second
	c.SyncWorkers = 4
	c.RetryBaseDelay = 1 * time.Second
	c.RetryMaxDelay = 30 * time.Second
	c.RetryMaxAttempts = 5
	c.PinMaxAttempts = 3
	c.PinLockoutCooldown = 5 * time.Minute
}

// LoadConfig builds a Config from defaults, JSON file, environment and
// flags, in that order of precedence (lowest first).
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	parseFlags(cfg)
	return cfg, nil
}
