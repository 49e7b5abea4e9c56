// Package config loads and saves the bashpipe configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the application configuration
type Config struct {
	Shell            string `json:"shell"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
	WaitForLocks     bool   `json:"wait_for_locks"`
	RaiseOnLockWait  bool   `json:"raise_on_lock_wait"`
	PrintCommand     bool   `json:"print_command"`
	PrintPrompt      bool   `json:"print_prompt"`
	ThreadedDelivery bool   `json:"threaded_delivery"`
	LogLevel         string `json:"log_level"`
	LogFormat        string `json:"log_format"`
	LogFile          string `json:"log_file"`
}

// Default returns a configuration with default values
func Default() Config {
	return Config{
		Shell:          "/bin/bash",
		TimeoutSeconds: 30,
		WaitForLocks:   true,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// GetConfigPath returns the path to the configuration file,
// ~/.bashpipe/config.json unless BASHPIPE_CONFIG overrides it
func GetConfigPath() string {
	if path := os.Getenv("BASHPIPE_CONFIG"); path != "" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".bashpipe", "config.json")
	}
	return filepath.Join(homeDir, ".bashpipe", "config.json")
}

// Load loads configuration from the specified path
// If the file doesn't exist, creates one with default values
func Load(configPath string) (Config, error) {
	// Ensure directory exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return Config{}, fmt.Errorf("failed to create config directory: %w", err)
	}

	// Try to read existing config
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Create default config
			cfg := Default()
			if err := Save(configPath, cfg); err != nil {
				return Config{}, fmt.Errorf("failed to create default config: %w", err)
			}
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	// Parse config
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to the specified path
func Save(configPath string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Shell == "" {
		return fmt.Errorf("shell must not be empty")
	}

	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative, got: %d", c.TimeoutSeconds)
	}

	switch c.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("unsupported log format: %s", c.LogFormat)
	}

	return nil
}
