package notify

import (
	"errors"
	"fmt"
	"time"
)

// Config holds ntfy notification configuration.
type Config struct {
	Enabled    bool   `mapstructure:"enabled"`
	Server     string `mapstructure:"server"`   // ntfy server URL (default: https://ntfy.sh)
	Topic      string `mapstructure:"topic"`    // required if enabled
	Priority   string `mapstructure:"priority"` // min, low, default, high, urgent
	Tags       string `mapstructure:"tags"`     // comma-separated emoji tags
	Token      string `mapstructure:"token"`    // optional access token for private topics
	MinSats    int64  `mapstructure:"min_sats"` // boosts below this are not announced
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// Validate checks configuration is valid when enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Topic == "" {
		return errors.New("notify.topic is required when notify.enabled=true")
	}

	validPriorities := map[string]bool{
		"min": true, "low": true, "default": true, "high": true, "urgent": true,
	}
	if !validPriorities[c.Priority] {
		return fmt.Errorf("invalid notify.priority: %s (valid: min, low, default, high, urgent)", c.Priority)
	}

	if c.MinSats < 0 {
		return errors.New("notify.min_sats must be >= 0")
	}

	return nil
}

func (c *Config) timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}
