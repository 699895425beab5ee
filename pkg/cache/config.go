package cache

import "time"

// Config holds configuration for the response cache.
type Config struct {
	// Enabled controls whether caching is active. When false, no middleware
	// is applied and all requests pass through uncached.
	Enabled bool `mapstructure:"enabled"`

	// StatisticsTTL is the TTL for /collections/statistics responses.
	StatisticsTTL time.Duration `mapstructure:"statistics_ttl"`

	// ReferenceTTL is the TTL for distinct herb/location lists and the
	// recent-collections feed.
	ReferenceTTL time.Duration `mapstructure:"reference_ttl"`

	// MaxSize is the maximum number of entries per cache instance.
	MaxSize int `mapstructure:"max_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		StatisticsTTL: 30 * time.Second,
		ReferenceTTL:  60 * time.Second,
		MaxSize:       1000,
	}
}
