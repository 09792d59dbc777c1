// Package config handles configuration loading, validation, and management
// for pastewatch.
package config

import (
	"fmt"
	"os"
	"strconv"

	"pastewatch/internal/watchdog"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete pastewatch configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Engine holds the scoring-engine weights, thresholds and windows.
	Engine watchdog.Config `toml:"engine" json:"engine" yaml:"engine"`

	// Factors are exogenous session signals passed through to the engine.
	Factors watchdog.Factors `toml:"factors" json:"factors" yaml:"factors"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Storage configuration for field-state persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr" or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output is "file".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the SQLite database path for persisted field state. Empty
	// disables persistence.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Engine:  watchdog.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Storage: StorageConfig{
			BusyTimeoutMs: 5000,
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	w := c.Engine.Weights
	for _, pair := range []struct {
		name  string
		value float64
	}{
		{"copy_relates_to_paste", w.CopyRelatesToPaste},
		{"content_contains_ai_signatures", w.ContentContainsAISignatures},
		{"unmodified_pastes", w.UnmodifiedPastes},
		{"keeps_switching_tabs_and_copy_pasting", w.KeepsSwitchingTabs},
	} {
		if pair.value < 0 {
			return fmt.Errorf("engine.weights.%s: must not be negative", pair.name)
		}
	}

	sum := w.CopyRelatesToPaste + w.ContentContainsAISignatures +
		w.UnmodifiedPastes + w.KeepsSwitchingTabs
	if sum > 1+1e-6 {
		return fmt.Errorf("engine.weights: sum %.4f exceeds 1.0", sum)
	}

	if c.Engine.CopySizeThreshold < 0 {
		return fmt.Errorf("engine.copy_size_threshold: must not be negative")
	}
	if c.Engine.PasteSizeThreshold < 0 {
		return fmt.Errorf("engine.paste_size_threshold: must not be negative")
	}
	if c.Engine.RelevantCopyEventMinutes < 0 {
		return fmt.Errorf("engine.relevant_copy_event_minutes: must not be negative")
	}
	if c.Engine.RelevantTabInOutEventMinutes < 0 {
		return fmt.Errorf("engine.relevant_tab_in_out_event_minutes: must not be negative")
	}
	for _, pair := range []struct {
		name  string
		value float64
	}{
		{"min_copy_event_time_weight", c.Engine.MinCopyEventTimeWeight},
		{"min_tab_event_time_weight", c.Engine.MinTabEventTimeWeight},
	} {
		if pair.value < 0 || pair.value > 1 {
			return fmt.Errorf("engine.%s: must be in [0, 1]", pair.name)
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path: required when output is \"file\"")
	}

	return nil
}

// ApplyEnvOverrides applies PASTEWATCH_* environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PASTEWATCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PASTEWATCH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("PASTEWATCH_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("PASTEWATCH_PASTE_SIZE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.PasteSizeThreshold = n
		}
	}
	if v := os.Getenv("PASTEWATCH_COPY_SIZE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.CopySizeThreshold = n
		}
	}
}
