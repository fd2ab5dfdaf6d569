// ABOUTME: Configuration for the lead sync layer
// ABOUTME: Merges JSON config file, .env, and environment overrides
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

const (
	// AppName is used for XDG data paths.
	AppName = "leadsync"

	// ConfigFileName is where local settings are stored.
	ConfigFileName = "config.json"

	// DefaultRefreshSchedule polls the remote service every ten
	// minutes, matching the store staleness window.
	DefaultRefreshSchedule = "@every 10m"
)

// Config holds connection and refresh settings for one deployment.
type Config struct {
	// BaseURL is the remote data service root.
	BaseURL string `json:"base_url,omitempty"`

	// AccountID scopes every request to one tenant.
	AccountID string `json:"account_id,omitempty"`

	// CacheTTL bounds the transport response cache.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// StaleWindow bounds how long the local store satisfies reads.
	StaleWindow time.Duration `json:"stale_window,omitempty"`

	// RefreshSchedule is the cron spec for background polling.
	RefreshSchedule string `json:"refresh_schedule,omitempty"`

	// DataDir overrides where the snapshot store and sync log live.
	DataDir string `json:"data_dir,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CacheTTL:        5 * time.Minute,
		StaleWindow:     10 * time.Minute,
		RefreshSchedule: DefaultRefreshSchedule,
		DataDir:         filepath.Join(xdg.DataHome, AppName),
	}
}

func configPath() (string, error) {
	dataDir := filepath.Join(xdg.DataHome, AppName)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dataDir, ConfigFileName), nil
}

// LoadConfig loads settings from disk and applies environment
// overrides. Missing files mean defaults, not errors.
func LoadConfig() (*Config, error) {
	// A .env alongside the binary is a development convenience.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path, err := configPath()
	if err == nil {
		if data, readErr := os.ReadFile(path); readErr == nil {
			// Invalid config falls back to defaults rather than failing.
			_ = json.Unmarshal(data, cfg)
		}
	}

	if v := os.Getenv("LEADSYNC_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("LEADSYNC_ACCOUNT_ID"); v != "" {
		cfg.AccountID = v
	}
	if v := os.Getenv("LEADSYNC_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LEADSYNC_REFRESH_SCHEDULE"); v != "" {
		cfg.RefreshSchedule = v
	}
	if v := os.Getenv("LEADSYNC_CACHE_TTL"); v != "" {
		if d, parseErr := time.ParseDuration(v); parseErr == nil {
			cfg.CacheTTL = d
		}
	}
	if v := os.Getenv("LEADSYNC_STALE_WINDOW"); v != "" {
		if d, parseErr := time.ParseDuration(v); parseErr == nil {
			cfg.StaleWindow = d
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

// Save persists the config to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// StorePath is where the conversation snapshot store lives.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "conversations")
}

// SyncDBPath is where the sync-state log lives.
func (c *Config) SyncDBPath() string {
	return filepath.Join(c.DataDir, "sync.db")
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.StaleWindow <= 0 {
		cfg.StaleWindow = defaults.StaleWindow
	}
	if cfg.RefreshSchedule == "" {
		cfg.RefreshSchedule = defaults.RefreshSchedule
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaults.DataDir
	}
}
