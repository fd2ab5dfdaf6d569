package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 5*time.Minute, cfg.CacheTTL)
	require.Equal(t, 10*time.Minute, cfg.StaleWindow)
	require.Equal(t, DefaultRefreshSchedule, cfg.RefreshSchedule)
	require.NotEmpty(t, cfg.DataDir)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LEADSYNC_BASE_URL", "https://leads.example.com")
	t.Setenv("LEADSYNC_ACCOUNT_ID", "acct-42")
	t.Setenv("LEADSYNC_DATA_DIR", dir)
	t.Setenv("LEADSYNC_CACHE_TTL", "90s")
	t.Setenv("LEADSYNC_STALE_WINDOW", "30m")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "https://leads.example.com", cfg.BaseURL)
	require.Equal(t, "acct-42", cfg.AccountID)
	require.Equal(t, dir, cfg.DataDir)
	require.Equal(t, 90*time.Second, cfg.CacheTTL)
	require.Equal(t, 30*time.Minute, cfg.StaleWindow)
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{BaseURL: "https://leads.example.com"}
	applyDefaults(cfg)
	require.Equal(t, 5*time.Minute, cfg.CacheTTL)
	require.Equal(t, 10*time.Minute, cfg.StaleWindow)
	require.Equal(t, DefaultRefreshSchedule, cfg.RefreshSchedule)
	require.NotEmpty(t, cfg.DataDir)
	require.Equal(t, "https://leads.example.com", cfg.BaseURL, "set values survive")
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/leadsync-test"}
	require.Equal(t, "/tmp/leadsync-test/conversations", cfg.StorePath())
	require.Equal(t, "/tmp/leadsync-test/sync.db", cfg.SyncDBPath())
}
