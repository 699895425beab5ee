// Package config loads server configuration from defaults, an optional YAML
// file, HERBTRACE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/herbtrace/herbtrace/pkg/audit"
	"github.com/herbtrace/herbtrace/pkg/authz"
	"github.com/herbtrace/herbtrace/pkg/cache"
	"github.com/herbtrace/herbtrace/pkg/database"
)

// EnvPrefix is prepended to every environment key: server.listen is read
// from HERBTRACE_SERVER_LISTEN.
const EnvPrefix = "HERBTRACE"

// Config is the complete server configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   database.Config  `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Audit      audit.Config     `mapstructure:"audit"`
	Cache      cache.Config     `mapstructure:"cache"`
	Lifecycle  LifecycleConfig  `mapstructure:"lifecycle"`
	Provenance ProvenanceConfig `mapstructure:"provenance"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// AuthConfig selects how actors are identified.
type AuthConfig struct {
	Mode string      `mapstructure:"mode"` // header or jwt
	JWT  JWTSettings `mapstructure:"jwt"`
}

// JWTSettings mirrors authz.JWTConfig for file and env loading.
type JWTSettings struct {
	SubjectClaim  string `mapstructure:"subject_claim"`
	RoleClaim     string `mapstructure:"role_claim"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`
}

// LifecycleConfig tunes the collection status machine.
type LifecycleConfig struct {
	// EnforceAdjacency restricts status updates to the forward transition
	// table. When false any known status other than COLLECTED is accepted.
	EnforceAdjacency bool `mapstructure:"enforce_adjacency"`
}

// ProvenanceConfig holds the public base URL used in consumer QR links.
type ProvenanceConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"listen":            "server.listen",
	"log-level":         "log.level",
	"db-type":           "database.type",
	"db-dsn":            "database.dsn",
	"auth-mode":         "auth.mode",
	"enforce-adjacency": "lifecycle.enforce_adjacency",
}

func setDefaults(v *viper.Viper) {
	db := database.DefaultConfig()
	au := audit.DefaultConfig()
	ca := cache.DefaultConfig()

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.cors_origins", []string{"https://*", "http://*"})
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("database.type", db.Type)
	v.SetDefault("database.dsn", db.DSN)
	v.SetDefault("database.log_sql", db.LogSQL)
	v.SetDefault("database.max_open_conns", db.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", db.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", db.ConnMaxLifetime)

	v.SetDefault("auth.mode", string(authz.ModeHeader))
	v.SetDefault("auth.jwt.subject_claim", "sub")
	v.SetDefault("auth.jwt.role_claim", "role")
	v.SetDefault("auth.jwt.public_key_path", "")
	v.SetDefault("auth.jwt.issuer", "")
	v.SetDefault("auth.jwt.audience", "")

	v.SetDefault("audit.enabled", au.Enabled)
	v.SetDefault("audit.log_denied", au.LogDenied)
	v.SetDefault("audit.retention_days", au.RetentionDays)
	v.SetDefault("audit.interval", au.Interval)

	v.SetDefault("cache.enabled", ca.Enabled)
	v.SetDefault("cache.statistics_ttl", ca.StatisticsTTL)
	v.SetDefault("cache.reference_ttl", ca.ReferenceTTL)
	v.SetDefault("cache.max_size", ca.MaxSize)

	v.SetDefault("lifecycle.enforce_adjacency", false)
	v.SetDefault("provenance.base_url", "http://localhost:8080")
}

// Load builds a Config. path may be empty to skip the file; flags may be nil.
// Only flags named in flagKeys are consulted, and only when set explicitly.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Database.Type) {
	case database.TypeSQLite, database.TypePostgres, "postgresql", database.TypeMySQL:
	default:
		errs = append(errs, fmt.Errorf("database.type: unsupported %q (expected sqlite, postgres or mysql)", c.Database.Type))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn: required"))
	}
	switch authz.Mode(c.Auth.Mode) {
	case "", authz.ModeHeader, authz.ModeJWT:
	default:
		errs = append(errs, fmt.Errorf("auth.mode: unknown %q (expected jwt or header)", c.Auth.Mode))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown %q (expected text or json)", c.Log.Format))
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, errors.New("audit.retention_days: must not be negative"))
	}
	return errors.Join(errs...)
}

// JWTConfig converts the loaded settings for authz.NewExtractor.
func (a AuthConfig) JWTConfig(logger *slog.Logger) authz.JWTConfig {
	return authz.JWTConfig{
		SubjectClaim:  a.JWT.SubjectClaim,
		RoleClaim:     a.JWT.RoleClaim,
		PublicKeyPath: a.JWT.PublicKeyPath,
		Issuer:        a.JWT.Issuer,
		Audience:      a.JWT.Audience,
		Logger:        logger,
	}
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
