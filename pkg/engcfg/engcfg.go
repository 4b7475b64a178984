// Package engcfg reads the engine's environment-variable configuration,
// grounded on the teacher's pkg/config loader/validator split and
// pkg/database/config.go's env-var-to-struct conventions: Load() parses raw
// environment values into a Config with production defaults, then
// validate() checks the result before it's handed to the rest of the
// process.
package engcfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/csml-run/csml-engine/pkg/store/postgres"
)

// Connection-pool defaults, matching the teacher's pkg/database/config.go
// fallbacks for DB_CONN_MAX_LIFETIME / DB_CONN_MAX_IDLE_TIME.
const (
	defaultConnMaxLifetime = time.Hour
	defaultConnMaxIdleTime = 15 * time.Minute
)

// DBType selects the storage backend (spec.md §6 ENGINE_DB_TYPE), mirroring
// original_source/csml_engine/src/future/db_connectors/mod.rs's env var
// though with the original's mongo/sqlite/dynamo options narrowed to the
// two backends this module implements.
type DBType string

const (
	DBPostgres DBType = "postgresql"
	DBMemory   DBType = "memory"
)

// Config is the engine's ambient configuration, loaded once at process
// startup from the environment.
type Config struct {
	DBType   DBType
	Postgres postgres.Config

	// EncryptionSecret, if non-empty, turns on AES-256-GCM at-rest
	// encryption for stored message payloads; memories are stored in the
	// clear (spec.md §6
	// ENCRYPTION_SECRET).
	EncryptionSecret string

	// DefaultTTLDays is applied to new conversations/messages/memories
	// when a request doesn't specify its own ttl_duration (spec.md §6
	// TTL_DURATION).
	DefaultTTLDays *int

	LowDataMode      bool
	LogLevel         string
	Debug            bool
	DisableSSLVerify bool
}

// Load reads Config from the process environment, applying the same
// defaults the original engine falls back to when a variable is unset.
func Load() (*Config, error) {
	cfg := &Config{
		DBType:   DBType(strings.ToLower(getenv("ENGINE_DB_TYPE", string(DBPostgres)))),
		LogLevel: getenv("CSML_LOG_LEVEL", "info"),
	}

	if cfg.DBType == DBPostgres {
		port, err := getenvInt("POSTGRES_PORT", 5432)
		if err != nil {
			return nil, err
		}
		maxOpen, err := getenvInt("POSTGRES_MAX_OPEN_CONNS", 25)
		if err != nil {
			return nil, err
		}
		maxIdle, err := getenvInt("POSTGRES_MAX_IDLE_CONNS", 5)
		if err != nil {
			return nil, err
		}
		maxLifetime, err := getenvDuration("POSTGRES_CONN_MAX_LIFETIME", defaultConnMaxLifetime)
		if err != nil {
			return nil, err
		}
		maxIdleTime, err := getenvDuration("POSTGRES_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime)
		if err != nil {
			return nil, err
		}
		cfg.Postgres = postgres.Config{
			Host:            getenv("POSTGRES_HOST", "localhost"),
			Port:            port,
			User:            getenv("POSTGRES_USER", "csml"),
			Password:        os.Getenv("POSTGRES_PASSWORD"),
			Database:        getenv("POSTGRES_DB", "csml_engine"),
			SSLMode:         getenv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    maxOpen,
			MaxIdleConns:    maxIdle,
			ConnMaxLifetime: maxLifetime,
			ConnMaxIdleTime: maxIdleTime,
		}
	}

	cfg.EncryptionSecret = os.Getenv("ENCRYPTION_SECRET")

	if raw := os.Getenv("TTL_DURATION"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("engcfg: TTL_DURATION must be an integer number of days: %w", err)
		}
		cfg.DefaultTTLDays = &days
	}

	cfg.LowDataMode = getenvBool("LOW_DATA_MODE", false)
	cfg.Debug = getenvBool("DEBUG", false)
	cfg.DisableSSLVerify = getenvBool("DISABLE_SSL_VERIFY", false)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBType {
	case DBPostgres, DBMemory:
	default:
		return fmt.Errorf("engcfg: ENGINE_DB_TYPE %q is not one of %q, %q", c.DBType, DBPostgres, DBMemory)
	}
	if c.DBType == DBPostgres {
		if c.Postgres.MaxOpenConns < 1 {
			return fmt.Errorf("engcfg: POSTGRES_MAX_OPEN_CONNS must be at least 1")
		}
		if c.Postgres.MaxIdleConns < 0 {
			return fmt.Errorf("engcfg: POSTGRES_MAX_IDLE_CONNS cannot be negative")
		}
		if c.Postgres.MaxIdleConns > c.Postgres.MaxOpenConns {
			return fmt.Errorf("engcfg: POSTGRES_MAX_IDLE_CONNS (%d) cannot exceed POSTGRES_MAX_OPEN_CONNS (%d)",
				c.Postgres.MaxIdleConns, c.Postgres.MaxOpenConns)
		}
	}
	if c.DefaultTTLDays != nil && *c.DefaultTTLDays <= 0 {
		return fmt.Errorf("engcfg: TTL_DURATION must be a positive number of days, got %d", *c.DefaultTTLDays)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("engcfg: CSML_LOG_LEVEL %q is not one of debug/info/warn/error", c.LogLevel)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("engcfg: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("engcfg: %s must be a duration (e.g. \"1h\", \"15m\"): %w", key, err)
	}
	return d, nil
}
