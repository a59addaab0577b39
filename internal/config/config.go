package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Watch adapter names accepted in MonitoringConfig.Adapter.
const (
	AdapterFSNotify = "fsnotify"
	AdapterPoll     = "poll"
)

// Duration is a time.Duration that marshals to and from YAML
// strings like "5s" or "100ms".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config represents the agent configuration
type Config struct {
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Detection  DetectionConfig  `yaml:"detection"`
	Quarantine QuarantineConfig `yaml:"quarantine"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MonitoringConfig controls which paths are watched and how
type MonitoringConfig struct {
	AutoDetectPaths bool     `yaml:"auto_detect_paths"`
	WatchPaths      []string `yaml:"watch_paths"`
	ExcludedPaths   []string `yaml:"excluded_paths"`
	ExcludeGlobs    []string `yaml:"exclude_globs"`
	Adapter         string   `yaml:"adapter"`
	PollInterval    Duration `yaml:"poll_interval"`
	SettleDelay     Duration `yaml:"settle_delay"`
}

// DetectionConfig controls inspection and enrichment behavior
type DetectionConfig struct {
	CalculateHash      bool     `yaml:"calculate_hash"`
	GetFileOwner       bool     `yaml:"get_file_owner"`
	MaxFileSizeMB      int64    `yaml:"max_file_size_mb"`
	HeaderBytes        int      `yaml:"header_bytes"`
	DebounceWindow     Duration `yaml:"debounce_window"`
	DebounceMaxEntries int      `yaml:"debounce_max_entries"`
	Workers            int      `yaml:"workers"`
}

// QuarantineConfig controls the response to detections
type QuarantineConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	KeepOriginal bool   `yaml:"keep_original"`
	IndexPath    string `yaml:"index_path"`
}

// LoggingConfig controls the SIEM event stream and operational logging
type LoggingConfig struct {
	LogFile       string `yaml:"log_file"`
	LogLevel      string `yaml:"log_level"`
	ConsoleOutput bool   `yaml:"console_output"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Monitoring: MonitoringConfig{
			AutoDetectPaths: true,
			WatchPaths:      []string{},
			ExcludedPaths:   defaultExcludedPaths(),
			ExcludeGlobs:    []string{},
			Adapter:         AdapterFSNotify,
			PollInterval:    Duration(10 * time.Second),
			SettleDelay:     Duration(100 * time.Millisecond),
		},
		Detection: DetectionConfig{
			CalculateHash:      true,
			GetFileOwner:       true,
			MaxFileSizeMB:      100,
			HeaderBytes:        32,
			DebounceWindow:     Duration(5 * time.Second),
			DebounceMaxEntries: 4096,
			Workers:            4,
		},
		Quarantine: QuarantineConfig{
			Enabled:      true,
			KeepOriginal: false,
		},
		Logging: LoggingConfig{
			LogLevel:      "info",
			ConsoleOutput: true,
		},
	}
}

// BaseDir returns the per-user data directory (~/.filesentry).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".filesentry"), nil
}

// Validate normalizes empty fields to their defaults and rejects
// values the agent cannot run with.
func (c *Config) Validate() error {
	base, err := BaseDir()
	if err != nil {
		return err
	}

	if c.Monitoring.Adapter == "" {
		c.Monitoring.Adapter = AdapterFSNotify
	}
	switch c.Monitoring.Adapter {
	case AdapterFSNotify, AdapterPoll:
	default:
		return fmt.Errorf("unknown adapter %q (want %q or %q)",
			c.Monitoring.Adapter, AdapterFSNotify, AdapterPoll)
	}

	if c.Monitoring.PollInterval <= 0 {
		c.Monitoring.PollInterval = Duration(10 * time.Second)
	}
	if c.Monitoring.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative")
	}

	if c.Detection.MaxFileSizeMB <= 0 {
		c.Detection.MaxFileSizeMB = 100
	}
	if c.Detection.HeaderBytes == 0 {
		c.Detection.HeaderBytes = 32
	}
	if c.Detection.HeaderBytes < 8 {
		return fmt.Errorf("header_bytes must be at least 8, got %d", c.Detection.HeaderBytes)
	}
	if c.Detection.DebounceWindow <= 0 {
		c.Detection.DebounceWindow = Duration(5 * time.Second)
	}
	if c.Detection.DebounceMaxEntries <= 0 {
		c.Detection.DebounceMaxEntries = 4096
	}
	if c.Detection.Workers == 0 {
		c.Detection.Workers = 4
	}
	if c.Detection.Workers < 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Detection.Workers)
	}

	if c.Quarantine.Path == "" {
		c.Quarantine.Path = filepath.Join(base, "quarantine")
	}
	if c.Quarantine.IndexPath == "" {
		c.Quarantine.IndexPath = filepath.Join(base, "quarantine.db")
	}

	if c.Logging.LogFile == "" {
		c.Logging.LogFile = filepath.Join(base, "events.log")
	}
	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = "info"
	}
	switch c.Logging.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.Logging.LogLevel)
	}

	return nil
}

// ResolveWatchPaths returns the deduplicated list of existing
// directories to monitor: the user's Downloads, Desktop and Documents
// folders when auto-detection is on, plus the configured watch paths.
func (c *Config) ResolveWatchPaths() []string {
	var candidates []string

	if c.Monitoring.AutoDetectPaths {
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates,
				filepath.Join(home, "Downloads"),
				filepath.Join(home, "Desktop"),
				filepath.Join(home, "Documents"),
			)
		}
	}
	candidates = append(candidates, c.Monitoring.WatchPaths...)

	seen := make(map[string]bool)
	var paths []string
	for _, p := range candidates {
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true

		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			continue
		}
		paths = append(paths, p)
	}

	return paths
}
