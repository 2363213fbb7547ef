package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig        `yaml:"server"`
	Database DatabaseConfig      `yaml:"database"`
	Auth     AuthConfig          `yaml:"auth"`
	Worker   WorkerConfig        `yaml:"worker"`
	Reports  ReportStorageConfig `yaml:"reports"`
	Log      LogConfig           `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey     string `yaml:"-"` // env-only, never in YAML
	CronSecret string `yaml:"-"` // env-only, never in YAML
}

// WorkerConfig contains background scan settings.
type WorkerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	ScanInterval   Duration `yaml:"scan_interval"`
	RunOnStart     bool     `yaml:"run_on_start"`
	NotifyCooldown Duration `yaml:"notify_cooldown"`
}

// ReportStorageConfig contains S3-compatible storage settings for job reports.
// An empty Bucket disables pre-signed upload URLs.
type ReportStorageConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	UseSSL    *bool    `yaml:"use_ssl"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
	URLExpiry Duration `yaml:"url_expiry"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// DevMode reports whether FIELDOPS_DEV_MODE is enabled.
func DevMode() bool {
	return os.Getenv("FIELDOPS_DEV_MODE") == "true"
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("FIELDOPS_CONFIG_PATH", "config/fieldops.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabaseConfig resolves only the database settings, using the same
// defaults, YAML file and env precedence as Load. Secrets are not required,
// so offline CLI commands can open the store without server credentials.
func LoadDatabaseConfig() (DatabaseConfig, error) {
	cfg := newDefaults()
	if err := loadYAMLFile(cfg, getEnv("FIELDOPS_CONFIG_PATH", "config/fieldops.yaml")); err != nil {
		return DatabaseConfig{}, err
	}
	applyEnvOverrides(cfg)
	return cfg.Database, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	useSSL := true
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/fieldops.db",
		},
		Worker: WorkerConfig{
			Enabled:        true,
			ScanInterval:   Duration(1 * time.Hour),
			RunOnStart:     false,
			NotifyCooldown: Duration(7 * 24 * time.Hour),
		},
		Reports: ReportStorageConfig{
			Region:    "us-east-1",
			UseSSL:    &useSSL,
			URLExpiry: Duration(15 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("FIELDOPS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FIELDOPS_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("FIELDOPS_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("FIELDOPS_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("FIELDOPS_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Auth
	if v := os.Getenv("FIELDOPS_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("FIELDOPS_CRON_SECRET"); v != "" {
		cfg.Auth.CronSecret = v
	}

	// Worker
	if v := os.Getenv("FIELDOPS_WORKER_ENABLED"); v != "" {
		cfg.Worker.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("FIELDOPS_SCAN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.ScanInterval = Duration(d)
		}
	}
	if v := os.Getenv("FIELDOPS_SCAN_ON_START"); v != "" {
		cfg.Worker.RunOnStart = v == "true" || v == "1"
	}
	if v := os.Getenv("FIELDOPS_NOTIFY_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.NotifyCooldown = Duration(d)
		}
	}

	// Reports
	if v := os.Getenv("FIELDOPS_REPORTS_BUCKET"); v != "" {
		cfg.Reports.Bucket = v
	}
	if v := os.Getenv("FIELDOPS_S3_ENDPOINT"); v != "" {
		cfg.Reports.Endpoint = v
	}
	if v := os.Getenv("FIELDOPS_S3_REGION"); v != "" {
		cfg.Reports.Region = v
	}
	if v := os.Getenv("FIELDOPS_S3_ACCESS_KEY"); v != "" {
		cfg.Reports.AccessKey = v
	}
	if v := os.Getenv("FIELDOPS_S3_SECRET_KEY"); v != "" {
		cfg.Reports.SecretKey = v
	}
	if v := os.Getenv("FIELDOPS_S3_USE_SSL"); v != "" {
		b := v == "true" || v == "1"
		cfg.Reports.UseSSL = &b
	}
	if v := os.Getenv("FIELDOPS_S3_URL_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reports.URLExpiry = Duration(d)
		}
	}

	// Log
	if v := os.Getenv("FIELDOPS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FIELDOPS_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (FIELDOPS_DEV_MODE=true), secret validation is skipped.
func (c *Config) validate() error {
	if c.Worker.Enabled && c.Worker.ScanInterval <= 0 {
		return errors.New("worker.scan_interval must be positive")
	}

	if DevMode() {
		return nil
	}

	if c.Auth.APIKey == "" {
		return errors.New("FIELDOPS_API_KEY is required")
	}
	if c.Auth.CronSecret == "" {
		return errors.New("FIELDOPS_CRON_SECRET is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
