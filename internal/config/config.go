// ABOUTME: Configuration loading and parsing for roster
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete roster configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	CORS    CORSConfig    `yaml:"cors" toml:"cors"`
	Notify  NotifyConfig  `yaml:"notify" toml:"notify"`
	Backup  BackupConfig  `yaml:"backup" toml:"backup"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr"`
	ReadTimeout     time.Duration `yaml:"-" toml:"-"`
	WriteTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ReadTimeoutRaw     string `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeoutRaw    string `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// StorageConfig selects where the document lives
type StorageConfig struct {
	Driver     string `yaml:"driver" toml:"driver"` // file | sqlite | memory
	Dir        string `yaml:"dir" toml:"dir"`
	SQLitePath string `yaml:"sqlite_path" toml:"sqlite_path"`
}

// AuthConfig holds token and password hashing settings
type AuthConfig struct {
	TokenTTL   time.Duration `yaml:"-" toml:"-"`
	BcryptCost int           `yaml:"bcrypt_cost" toml:"bcrypt_cost"`

	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// CORSConfig lists the browser origins allowed to call the API.
// A single "*" allows any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// NotifyConfig controls the notification stub
type NotifyConfig struct {
	DryRun       bool          `yaml:"dry_run" toml:"dry_run"`
	TestCooldown time.Duration `yaml:"-" toml:"-"`

	TestCooldownRaw string `yaml:"test_cooldown" toml:"test_cooldown"`
}

// BackupConfig controls restore behavior and archiving
type BackupConfig struct {
	// MergeTokens is "preserve" (default) or "reset".
	MergeTokens string        `yaml:"merge_tokens" toml:"merge_tokens"`
	Archive     ArchiveConfig `yaml:"archive" toml:"archive"`
}

// ArchiveConfig selects the sink for archived backups
type ArchiveConfig struct {
	Driver   string   `yaml:"driver" toml:"driver"` // none | fs | s3
	Dir      string   `yaml:"dir" toml:"dir"`
	Compress bool     `yaml:"compress" toml:"compress"`
	S3       S3Config `yaml:"s3" toml:"s3"`
}

// S3Config holds S3-compatible bucket settings
type S3Config struct {
	Bucket          string `yaml:"bucket" toml:"bucket"`
	Region          string `yaml:"region" toml:"region"`
	Endpoint        string `yaml:"endpoint" toml:"endpoint"`
	Prefix          string `yaml:"prefix" toml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style" toml:"path_style"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "localhost:8000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "data"
	}
	if c.Auth.TokenTTLRaw == "" {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Notify.TestCooldownRaw == "" {
		c.Notify.TestCooldown = 10 * time.Second
	}
	if c.Backup.MergeTokens == "" {
		c.Backup.MergeTokens = "preserve"
	}
	if c.Backup.Archive.Driver == "" {
		c.Backup.Archive.Driver = "none"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "file", "sqlite":
		if c.Storage.Dir == "" && c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.dir is required")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be file, sqlite, or memory (got %q)", c.Storage.Driver)
	}

	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl must not be negative")
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31")
	}

	switch c.Backup.MergeTokens {
	case "preserve", "reset":
	default:
		return fmt.Errorf("backup.merge_tokens must be preserve or reset (got %q)", c.Backup.MergeTokens)
	}

	switch c.Backup.Archive.Driver {
	case "none":
	case "fs":
		if c.Backup.Archive.Dir == "" {
			return fmt.Errorf("backup.archive.dir is required for the fs driver")
		}
	case "s3":
		if c.Backup.Archive.S3.Bucket == "" {
			return fmt.Errorf("backup.archive.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("backup.archive.driver must be none, fs, or s3 (got %q)", c.Backup.Archive.Driver)
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_timeout", cfg.Server.ReadTimeoutRaw, &cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeoutRaw, &cfg.Server.WriteTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"notify.test_cooldown", cfg.Notify.TestCooldownRaw, &cfg.Notify.TestCooldown},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
