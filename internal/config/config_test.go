package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 2, cfg.Scheduler.FetchIntervalHours)
	require.Equal(t, 50, cfg.Scheduler.MaxPerFetch)
	require.Equal(t, time.Hour, cfg.Scheduler.MinFetchGap)
	require.Equal(t, 5*time.Minute, cfg.Scheduler.RecoveryDelay)
	require.True(t, cfg.Scheduler.Autostart)
	require.Equal(t, "mock", cfg.Source.Provider)
	require.Equal(t, "mock", cfg.Anchor.Provider)
	require.Equal(t, "sqlite", cfg.Store.Provider)
	require.Equal(t, "noop", cfg.Archive.Provider)
	require.Equal(t, "noop", cfg.Publisher.Provider)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
server:
  port: 9090
scheduler:
  fetch_interval_hours: 4
  max_per_fetch: 100
source:
  provider: buddi
  buddi:
    base_url: https://example.test/v1
store:
  provider: memory
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 4, cfg.Scheduler.FetchIntervalHours)
	require.Equal(t, 100, cfg.Scheduler.MaxPerFetch)
	require.Equal(t, "buddi", cfg.Source.Provider)
	require.Equal(t, 4*time.Hour, cfg.SchedulerConfig().FetchInterval)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BUDDI_SCHEDULER_FETCH_INTERVAL_HOURS", "6")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 6, cfg.Scheduler.FetchIntervalHours)
}

func TestLoadSecretsFromEnvWithoutFile(t *testing.T) {
	t.Setenv("BUDDI_SOURCE_BUDDI_API_KEY", "sk-env")
	t.Setenv("BUDDI_STORE_POSTGRES_DSN", "postgres://env/ingest")
	t.Setenv("BUDDI_SERVER_AUTH_ENABLED", "true")
	t.Setenv("BUDDI_SERVER_API_KEY", "guard")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "sk-env", cfg.Source.Buddi.APIKey)
	require.Equal(t, "postgres://env/ingest", cfg.Store.Postgres.DSN)
	require.True(t, cfg.Server.AuthEnabled)
	require.Equal(t, "guard", cfg.Server.APIKey)
}

func TestValidateRejectsOutOfRangeInterval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  fetch_interval_hours: 48\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "fetch_interval")
}

func TestValidateRejectsUnknownProviders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  provider: oracle\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown store provider")
}

func TestValidateRequiresAPIKeyWhenAuthEnabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  auth_enabled: true\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "api_key")
}
