package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig mirrors Config with pointer fields so unset variables do not
// clobber values from earlier layers.
type envConfig struct {
	BackendBaseURL      *string        `env:"KIOSK_BACKEND_URL"`
	DatabasePath        *string        `env:"KIOSK_DATABASE_PATH"`
	ProgramID           *string        `env:"KIOSK_PROGRAM_ID"`
	RequestTimeout      *time.Duration `env:"KIOSK_REQUEST_TIMEOUT"`
	RosterTTL           *time.Duration `env:"KIOSK_ROSTER_TTL"`
	SyncInterval        *time.Duration `env:"KIOSK_SYNC_INTERVAL"`
	OnlineCheckInterval *time.Duration `env:"KIOSK_ONLINE_CHECK_INTERVAL"`
	SyncWorkers         *int           `env:"KIOSK_SYNC_WORKERS"`
	RetryBaseDelay      *time.Duration `env:"KIOSK_RETRY_BASE_DELAY"`
	RetryMaxDelay       *time.Duration `env:"KIOSK_RETRY_MAX_DELAY"`
	RetryMaxAttempts    *int           `env:"KIOSK_RETRY_MAX_ATTEMPTS"`
	PinMaxAttempts      *int           `env:"KIOSK_PIN_MAX_ATTEMPTS"`
	PinLockoutCooldown  *time.Duration `env:"KIOSK_PIN_LOCKOUT_COOLDOWN"`
}

// parseEnv overlays cfg with KIOSK_* environment variables.
func parseEnv(cfg *Config) error {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	if ec.BackendBaseURL != nil {
		cfg.BackendBaseURL = *ec.BackendBaseURL
	}
	if ec.DatabasePath != nil {
		cfg.DatabasePath = *ec.DatabasePath
	}
	if ec.ProgramID != nil {
		cfg.ProgramID = *ec.ProgramID
	}
	if ec.RequestTimeout != nil {
		cfg.RequestTimeout = *ec.RequestTimeout
	}
	if ec.RosterTTL != nil {
		cfg.RosterTTL = *ec.RosterTTL
	}
	if ec.SyncInterval != nil {
		cfg.SyncInterval = *ec.SyncInterval
	}
	if ec.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = *ec.OnlineCheckInterval
	}
	if ec.SyncWorkers != nil {
		cfg.SyncWorkers = *ec.SyncWorkers
	}
	if ec.RetryBaseDelay != nil {
		cfg.RetryBaseDelay = *ec.RetryBaseDelay
	}
	if ec.RetryMaxDelay != nil {
		cfg.RetryMaxDelay = *ec.RetryMaxDelay
	}
	if ec.RetryMaxAttempts != nil {
		cfg.RetryMaxAttempts = *ec.RetryMaxAttempts
	}
	if ec.PinMaxAttempts != nil {
		cfg.PinMaxAttempts = *ec.PinMaxAttempts
	}
	if ec.PinLockoutCooldown != nil {
		cfg.PinLockoutCooldown = *ec.PinLockoutCooldown
	}
	return nil
}
