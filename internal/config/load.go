package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load loads the agent configuration with 3-level fallback:
// 1. Explicit path (--config flag)
// 2. Home directory (~/.filesentry/config.yaml)
// 3. Built-in default
//
// When neither file exists the default configuration is written to the
// home directory so users have a template to customize. The write is
// best effort.
func Load(path string) (*Config, error) {
	// Level 1: Explicit path (for development/debugging)
	if path != "" {
		return loadFile(path)
	}

	// Level 2: Home directory (for advanced users)
	home, err := BaseDir()
	if err == nil {
		homeConfig := filepath.Join(home, "config.yaml")
		if fileExists(homeConfig) {
			return loadFile(homeConfig)
		}

		// Level 3: Built-in default, persisted for customization
		cfg := Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		_ = cfg.Save(homeConfig)
		return cfg, nil
	}

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile reads and validates a single configuration file.
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
