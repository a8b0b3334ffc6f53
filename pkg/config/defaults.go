package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/filekv/filekv/internal/bytesize"
)

// Default values for the storage section.
const (
	DefaultGCPeriod    = 30 * time.Second
	DefaultGraceWindow = 5 * time.Second
)

// DefaultMaxFileSize is the read ceiling applied when none is configured.
const DefaultMaxFileSize = 128 * bytesize.MiB

// ApplyDefaults fills unset fields with defaults. Explicit values are
// preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyStorageDefaults(&cfg.Storage)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.OnClose == "" {
		cfg.OnClose = OnCloseDoNothing
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.GCPeriod == 0 {
		cfg.GCPeriod = DefaultGCPeriod
	}
	if cfg.GraceWindow == 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	// Dir has no default; it is required and validated.
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Validate checks the loaded configuration for values the process
// cannot run with.
func Validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid logging.level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q", cfg.Logging.Format)
	}
	switch cfg.Storage.OnClose {
	case OnCloseDoNothing, OnCloseDeleteAll:
	default:
		return fmt.Errorf("invalid storage.on_close %q", cfg.Storage.OnClose)
	}
	if cfg.Storage.GCPeriod < 0 {
		return fmt.Errorf("storage.gc_period must not be negative")
	}
	if cfg.Storage.GraceWindow < 0 {
		return fmt.Errorf("storage.grace_window must not be negative")
	}
	return nil
}
