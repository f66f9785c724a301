// Package config loads the xpert command configuration from YAML.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/slmyyl/xpert-framework/internal/store"
)

// Config is the on-disk configuration. Command-line flags override it.
type Config struct {
	// Driver is the database/sql driver: "sqlite3" or "pgx".
	Driver string `yaml:"driver"`

	// DSN is the data source; a file path for sqlite3.
	DSN string `yaml:"dsn"`

	// Entities is the directory of CUE entity declarations.
	Entities string `yaml:"entities"`

	// Audit turns write auditing into the audit_log table on or off.
	Audit bool `yaml:"audit"`

	// QueryAudit additionally audits reads.
	QueryAudit bool `yaml:"query_audit"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Driver:   store.DriverSQLite,
		DSN:      "xpert.db",
		Entities: "entities",
		Audit:    true,
		LogLevel: "info",
	}
}

// Load reads path over Default. Unknown keys are rejected. Relative
// entities and sqlite dsn paths are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	base := filepath.Dir(path)
	if cfg.Entities != "" && !filepath.IsAbs(cfg.Entities) {
		cfg.Entities = filepath.Join(base, cfg.Entities)
	}
	if cfg.Driver == store.DriverSQLite && cfg.DSN != "" && !filepath.IsAbs(cfg.DSN) && !strings.HasPrefix(cfg.DSN, "file:") {
		cfg.DSN = filepath.Join(base, cfg.DSN)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("driver: unsupported %q (want %s or %s)", c.Driver, store.DriverSQLite, store.DriverPostgres)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level for LogLevel, Info when it is invalid.
func (c *Config) Level() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel maps a log level name to its slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level: unknown level %q", s)
}
