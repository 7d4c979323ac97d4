// ABOUTME: Local settings for the Charm KV that syncs run presets between devices
// ABOUTME: Server host and auto-sync live in a small JSON file under the XDG data dir

package charm

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (
	// DefaultCharmHost is the self-hosted 2389 research server.
	DefaultCharmHost = "charm.2389.dev"

	// AppName names the charm KV database.
	AppName = "leadpilot"

	// ConfigFileName is the sync settings file inside the data dir.
	ConfigFileName = "charm-config.json"

	// HostEnv overrides the configured server for one process.
	HostEnv = "LEADPILOT_CHARM_HOST"
)

// Config holds charm connection settings.
type Config struct {
	Host     string `json:"host,omitempty"`
	AutoSync bool   `json:"auto_sync"`
}

func DefaultConfig() *Config {
	return &Config{Host: DefaultCharmHost, AutoSync: true}
}

func configPath() string {
	return filepath.Join(xdg.DataHome, AppName, ConfigFileName)
}

// LoadConfig reads the sync settings. A missing or unreadable file yields the
// defaults; only I/O errors other than not-exist are returned.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", configPath(), err)
	default:
		var saved Config
		if json.Unmarshal(data, &saved) == nil {
			cfg.AutoSync = saved.AutoSync
			if saved.Host != "" {
				cfg.Host = saved.Host
			}
		}
	}

	if host := os.Getenv(HostEnv); host != "" {
		cfg.Host = host
	}
	return cfg, nil
}

// Save writes the settings, creating the data dir if needed.
func (c *Config) Save() error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// SetAutoSync enables or disables auto-sync and saves.
func (c *Config) SetAutoSync(enabled bool) error {
	c.AutoSync = enabled
	return c.Save()
}
