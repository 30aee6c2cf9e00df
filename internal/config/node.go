package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultNodeConfigDir returns the default node config directory
// (~/.licsync).
func DefaultNodeConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".licsync"), nil
}

// DefaultNodeConfigPath returns the default node config file path.
func DefaultNodeConfigPath() (string, error) {
	dir, err := DefaultNodeConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// NodeConfig holds the enforcement node's configuration.
type NodeConfig struct {
	ServerURL    string        `yaml:"server_url,omitempty"`
	APIKey       string        `yaml:"api_key,omitempty"`
	DataDir      string        `yaml:"data_dir,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

// Validate checks that the configuration has required fields.
func (c *NodeConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if c.APIKey == "" {
		return errors.New("api_key is required")
	}
	return nil
}

// LoadNode reads the node configuration from the given path and applies
// defaults. A missing file yields a config of pure defaults.
func LoadNode(path string) (*NodeConfig, error) {
	var cfg NodeConfig

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if cfg.DataDir == "" {
		dir, err := DefaultNodeConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}

	return &cfg, nil
}

// Save writes the configuration to the given path, creating directories
// as needed.
func (c *NodeConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// The api key lives in here.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
