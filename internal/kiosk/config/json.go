package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rostermark/kiosk/internal/flagx"
	"github.com/rostermark/kiosk/internal/timex"
)

// jsonConfig is the DTO for the optional JSON config file. Durations use
// timex.Duration so the file may write them as "5m" or as nanoseconds.
// Pointer fields distinguish "absent" from "zero".
type jsonConfig struct {
	BackendBaseURL      *string         `json:"backend_base_url"`
	DatabasePath        *string         `json:"database_path"`
	ProgramID           *string         `json:"program_id"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	RosterTTL           *timex.Duration `json:"roster_ttl"`
	SyncInterval        *timex.Duration `json:"sync_interval"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	SyncWorkers         *int            `json:"sync_workers"`
	RetryBaseDelay      *timex.Duration `json:"retry_base_delay"`
	RetryMaxDelay       *timex.Duration `json:"retry_max_delay"`
	RetryMaxAttempts    *int            `json:"retry_max_attempts"`
	PinMaxAttempts      *int            `json:"pin_max_attempts"`
	PinLockoutCooldown  *timex.Duration `json:"pin_lockout_cooldown"`
}

// parseJSON overlays cfg with values from the JSON file named by the -c or
// -config flag. When no config flag is present this is a no-op.
func parseJSON(cfg *Config) error {
	path := flagx.JSONConfigFlags()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.BackendBaseURL != nil {
		cfg.BackendBaseURL = *jc.BackendBaseURL
	}
	if jc.DatabasePath != nil {
		cfg.DatabasePath = *jc.DatabasePath
	}
	if jc.ProgramID != nil {
		cfg.ProgramID = *jc.ProgramID
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Std()
	}
	if jc.RosterTTL != nil {
		cfg.RosterTTL = jc.RosterTTL.Std()
	}
	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Std()
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Std()
	}
	if jc.SyncWorkers != nil {
		cfg.SyncWorkers = *jc.SyncWorkers
	}
	if jc.RetryBaseDelay != nil {
		cfg.RetryBaseDelay = jc.RetryBaseDelay.Std()
	}
	if jc.RetryMaxDelay != nil {
		cfg.RetryMaxDelay = jc.RetryMaxDelay.Std()
	}
	if jc.RetryMaxAttempts != nil {
		cfg.RetryMaxAttempts = *jc.RetryMaxAttempts
	}
	if jc.PinMaxAttempts != nil {
		cfg.PinMaxAttempts = *jc.PinMaxAttempts
	}
	if jc.PinLockoutCooldown != nil {
		cfg.PinLockoutCooldown = jc.PinLockoutCooldown.Std()
	}
	return nil
}
