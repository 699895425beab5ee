package audit

import "time"

// Config controls audit behavior.
type Config struct {
	Enabled       bool          `mapstructure:"enabled"`        // Whether audit middleware is active
	LogDenied     bool          `mapstructure:"log_denied"`     // Whether to log denied (403) actions
	RetentionDays int           `mapstructure:"retention_days"` // Default 90; 0 disables pruning
	Interval      time.Duration `mapstructure:"interval"`       // Retention pass interval, default 24h
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		LogDenied:     true,
		RetentionDays: 90,
		Interval:      24 * time.Hour,
	}
}
