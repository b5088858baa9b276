// Package config handles TOML-based configuration loading and validation.
// TOML is parsed as data only, so a config file can never execute code.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"vodpick/internal/httputil"
)

// Config holds all application configuration.
type Config struct {
	Player           string        `toml:"player"`
	History          bool          `toml:"history"`
	DownloadDir      string        `toml:"download_dir"`
	Database         string        `toml:"database"`
	Debug            bool          `toml:"debug"`
	ProbeConcurrency int           `toml:"probe_concurrency"`
	ProbeTimeout     time.Duration `toml:"probe_timeout"`
	SearchPages      int           `toml:"search_pages"`
	SearchCacheTTL   time.Duration `toml:"search_cache_ttl"`
	WaitCeiling      time.Duration `toml:"wait_ceiling"`
	Listen           string        `toml:"listen"`
	Log              LogConfig     `toml:"log"`
	Sources          []Source      `toml:"sources"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
	Dir    string `toml:"dir"`    // rotate logs into this directory when set
}

// Source is one upstream catalog.
type Source struct {
	Key    string `toml:"key"`
	Name   string `toml:"name"`
	API    string `toml:"api"`    // Apple-CMS style JSON endpoint
	Detail string `toml:"detail"` // optional HTML site for detail pages
	Rate   int    `toml:"rate"`   // requests per second, 0 = unlimited
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Player:           "mpv",
		History:          true,
		DownloadDir:      "~/Videos/vodpick",
		Database:         "",
		Debug:            false,
		ProbeConcurrency: 12,
		ProbeTimeout:     4 * time.Second,
		SearchPages:      3,
		SearchCacheTTL:   2 * time.Minute,
		WaitCeiling:      15 * time.Second,
		Listen:           "127.0.0.1:8731",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vodpick"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vodpick"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file and merges with defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	validPlayers := map[string]bool{
		"mpv": true, "vlc": true, "iina": true, "celluloid": true,
	}
	if !validPlayers[strings.ToLower(c.Player)] {
		return fmt.Errorf("unsupported player %q (valid: mpv, vlc, iina, celluloid)", c.Player)
	}

	if c.ProbeConcurrency < 1 || c.ProbeConcurrency > 64 {
		return fmt.Errorf("probe_concurrency must be between 1 and 64, got %d", c.ProbeConcurrency)
	}

	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive")
	}

	if c.SearchPages < 1 || c.SearchPages > 10 {
		return fmt.Errorf("search_pages must be between 1 and 10, got %d", c.SearchPages)
	}

	if c.SearchCacheTTL < 0 {
		return fmt.Errorf("search_cache_ttl cannot be negative")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("unsupported log format %q (valid: console, json)", c.Log.Format)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if err := httputil.ValidateSourceKey(s.Key); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
		if seen[s.Key] {
			return fmt.Errorf("sources[%d]: duplicate key %q", i, s.Key)
		}
		seen[s.Key] = true

		if err := httputil.ValidateURL(s.API); err != nil {
			return fmt.Errorf("sources[%d] (%s): api: %w", i, s.Key, err)
		}
		if s.Detail != "" {
			if err := httputil.ValidateURL(s.Detail); err != nil {
				return fmt.Errorf("sources[%d] (%s): detail: %w", i, s.Key, err)
			}
		}
		if s.Rate < 0 {
			return fmt.Errorf("sources[%d] (%s): rate cannot be negative", i, s.Key)
		}
	}

	return nil
}

// SourceName returns the display name for a source key, falling back to the key.
func (c *Config) SourceName(key string) string {
	for _, s := range c.Sources {
		if s.Key == key {
			if s.Name != "" {
				return s.Name
			}
			return s.Key
		}
	}
	return key
}

// ExpandDownloadDir resolves ~ in the download directory path.
func (c *Config) ExpandDownloadDir() (string, error) {
	return expandHome(c.DownloadDir)
}

// DatabasePath returns the configured database path or the XDG data default.
func (c *Config) DatabasePath() (string, error) {
	if c.Database != "" {
		return expandHome(c.Database)
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "vodpick.db"), nil
}

func expandHome(dir string) (string, error) {
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}

// dataDir returns the XDG data directory for vodpick.
func dataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "vodpick"), nil
}
