// ABOUTME: Layered configuration for the leadpilot service and CLI
// ABOUTME: Defaults, then an optional YAML file with ${VAR} expansion, then LEADPILOT_* env vars
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/leadpilot/models"
)

const (
	AppName = "leadpilot"

	envPrefix = "LEADPILOT_"
)

type Config struct {
	ListenAddr   string             `yaml:"listen_addr"`
	DatabasePath string             `yaml:"database_path"`
	RulesPath    string             `yaml:"rules_path"`
	LeadCache    int                `yaml:"lead_cache_size"`
	Oracle       OracleConfig       `yaml:"oracle"`
	Log          LogConfig          `yaml:"log"`
	Defaults     models.RunSettings `yaml:"default_run_settings"`
}

type OracleConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Factor      float64       `yaml:"factor"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ListenAddr:   ":8080",
		DatabasePath: filepath.Join(xdg.DataHome, AppName, AppName+".db"),
		LeadCache:    512,
		Oracle: OracleConfig{
			BaseURL:     "http://localhost:11434",
			Model:       "llama3.1",
			Timeout:     20 * time.Second,
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Factor:      2,
			MaxDelay:    8 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Defaults: models.DefaultRunSettings(),
	}
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Load builds the configuration. A missing file at path is not an error when
// path is the default location.
func Load(path string) (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(raw))
		expanded = strings.ReplaceAll(expanded, "\r\n", "\n")
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, err
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	str("LISTEN_ADDR", &c.ListenAddr)
	str("DATABASE_PATH", &c.DatabasePath)
	str("RULES_PATH", &c.RulesPath)
	str("ORACLE_URL", &c.Oracle.BaseURL)
	str("ORACLE_MODEL", &c.Oracle.Model)
	str("ORACLE_API_KEY", &c.Oracle.APIKey)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := os.LookupEnv(envPrefix + "ORACLE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sORACLE_TIMEOUT: %w", envPrefix, err)
		}
		c.Oracle.Timeout = d
	}
	if v, ok := os.LookupEnv(envPrefix + "ORACLE_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sORACLE_MAX_ATTEMPTS: %w", envPrefix, err)
		}
		c.Oracle.MaxAttempts = n
	}
	if v, ok := os.LookupEnv(envPrefix + "LEAD_CACHE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sLEAD_CACHE_SIZE: %w", envPrefix, err)
		}
		c.LeadCache = n
	}
	return nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle.base_url is required")
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle.timeout must be positive")
	}
	if c.Oracle.MaxAttempts < 1 {
		return fmt.Errorf("oracle.max_attempts must be at least 1")
	}
	if c.Oracle.Factor < 1 {
		return fmt.Errorf("oracle.factor must be at least 1")
	}
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("log.format must be text, json or logfmt, got %q", c.Log.Format)
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("default_run_settings: %w", err)
	}
	return nil
}
