// config.go - Configuration management for the relayer daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the daemon configuration
type Config struct {
	// Network
	ListenAddr string `json:"listen_addr"`

	// Ledger and storage
	Chain      string `json:"chain"`
	LedgerPath string `json:"ledger_path"`
	DataDir    string `json:"data_dir"`

	// Relayer identity
	RelayerKeypairPath string `json:"relayer_keypair_path"`

	// Relay policy
	RateLimitSeconds  int    `json:"rate_limit_seconds"`
	MinRelayerBalance uint64 `json:"min_relayer_balance"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Performance
	TimeoutSeconds int `json:"timeout_seconds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:         ":8080",
		Chain:              "solana",
		LedgerPath:         "ledger.json",
		DataDir:            "data",
		RelayerKeypairPath: "keys/relayer.json",
		RateLimitSeconds:   60,
		MinRelayerBalance:  0, // 0 means the coordinator default
		LogLevel:           "info",
		LogFile:            "relayd.log",
		TimeoutSeconds:     30,
	}
}

// LoadConfig loads configuration from file or creates the default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		return &config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.Chain == "" {
		return fmt.Errorf("chain must be set")
	}
	if c.RelayerKeypairPath == "" {
		return fmt.Errorf("relayer_keypair_path must be set")
	}
	if c.RateLimitSeconds <= 0 {
		return fmt.Errorf("rate_limit_seconds must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	return nil
}

// RateLimitWindow returns the configured window as a duration
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitSeconds) * time.Second
}

// RequestTimeout returns the configured per-request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
