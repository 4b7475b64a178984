package engcfg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsToPostgres(t *testing.T) {
	t.Setenv("ENGINE_DB_TYPE", "")
	t.Setenv("POSTGRES_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DBPostgres, cfg.DBType)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "csml", cfg.Postgres.User)
	assert.Equal(t, "csml_engine", cfg.Postgres.Database)
	assert.Equal(t, 25, cfg.Postgres.MaxOpenConns)
	assert.Equal(t, 5, cfg.Postgres.MaxIdleConns)
	assert.Equal(t, time.Hour, cfg.Postgres.ConnMaxLifetime)
	assert.Equal(t, 15*time.Minute, cfg.Postgres.ConnMaxIdleTime)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Nil(t, cfg.DefaultTTLDays)
}

func TestLoadMemoryBackendSkipsPostgresDefaults(t *testing.T) {
	t.Setenv("ENGINE_DB_TYPE", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DBMemory, cfg.DBType)
	assert.Zero(t, cfg.Postgres.Host)
}

func TestLoadAppliesOverrides(t *testing.T) {
	t.Setenv("ENGINE_DB_TYPE", "POSTGRESQL")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("POSTGRES_MAX_OPEN_CONNS", "50")
	t.Setenv("POSTGRES_MAX_IDLE_CONNS", "10")
	t.Setenv("POSTGRES_CONN_MAX_LIFETIME", "30m")
	t.Setenv("TTL_DURATION", "7")
	t.Setenv("LOW_DATA_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DBPostgres, cfg.DBType)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 6543, cfg.Postgres.Port)
	assert.Equal(t, 50, cfg.Postgres.MaxOpenConns)
	assert.Equal(t, 10, cfg.Postgres.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.Postgres.ConnMaxLifetime)
	require.NotNil(t, cfg.DefaultTTLDays)
	assert.Equal(t, 7, *cfg.DefaultTTLDays)
	assert.True(t, cfg.LowDataMode)
}

func TestLoadRejectsUnknownDBType(t *testing.T) {
	t.Setenv("ENGINE_DB_TYPE", "mongodb")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENGINE_DB_TYPE")
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("ENGINE_DB_TYPE", "memory")
	t.Setenv("TTL_DURATION", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TTL_DURATION")
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	t.Setenv("ENGINE_DB_TYPE", "memory")
	t.Setenv("CSML_LOG_LEVEL", "verbose")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CSML_LOG_LEVEL")
}

func TestLoadRejectsIdleExceedingOpenConns(t *testing.T) {
	t.Setenv("ENGINE_DB_TYPE", "postgresql")
	t.Setenv("POSTGRES_MAX_OPEN_CONNS", "5")
	t.Setenv("POSTGRES_MAX_IDLE_CONNS", "10")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_MAX_IDLE_CONNS")
}
