// config.go - Configuration management for the pool daemon
package main

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/zorb-labs/zorbcore/internal/reward"
)

// Config represents the daemon configuration
type Config struct {
	// Pool settings
	TreeDepth   int    `json:"tree_depth"`
	InitialRate string `json:"initial_rate"` // decimal, 1e18-scaled

	// File paths
	SnapshotPath string `json:"snapshot_path"`
	KeyDir       string `json:"key_dir"`

	// HTTP server
	ListenAddr string `json:"listen_addr"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Proving
	EnableVerifier bool `json:"enable_verifier"`

	// Rate limiting for spend submission, per client
	SubmitBurst     int `json:"submit_burst"`
	SubmitPerSecond int `json:"submit_per_second"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		TreeDepth:       16,
		InitialRate:     reward.Scale.String(),
		SnapshotPath:    "pool.json",
		KeyDir:          "keys",
		ListenAddr:      ":8480",
		LogLevel:        "info",
		LogFile:         "zorbd.log",
		EnableVerifier:  true,
		SubmitBurst:     10,
		SubmitPerSecond: 2,
	}
}

// LoadConfig loads configuration from file, creating the default on first run
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "open config file")
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, errors.Wrap(err, "decode config file")
		}
		if err := config.Validate(); err != nil {
			return nil, err
		}
		return &config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, errors.Wrap(err, "save default config")
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	file, err := os.Create(configPath)
	if err != nil {
		return errors.Wrap(err, "create config file")
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return errors.Wrap(encoder.Encode(config), "encode config")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.TreeDepth <= 0 || c.TreeDepth > 32 {
		return errors.New("tree_depth must be between 1 and 32")
	}
	if _, ok := new(big.Int).SetString(c.InitialRate, 10); !ok {
		return errors.Errorf("initial_rate %q is not a decimal integer", c.InitialRate)
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr must be set")
	}
	if c.SubmitBurst <= 0 {
		return errors.New("submit_burst must be positive")
	}
	if c.SubmitPerSecond <= 0 {
		return errors.New("submit_per_second must be positive")
	}
	return nil
}
