// Package config provides configuration management for licsync.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/licsync/licsync/internal/validate"
)

// ServerConfig holds the server's configuration.
type ServerConfig struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr,omitempty"`
	// DatabaseURL is the enrollment directory connection string. Falls
	// back to the DATABASE_URL environment variable.
	DatabaseURL string `yaml:"database_url,omitempty"`
	// SnapshotDir holds the domain snapshot files.
	SnapshotDir string `yaml:"snapshot_dir,omitempty"`
	// ReferenceFeedPath is the dropped reference feed file.
	ReferenceFeedPath string `yaml:"reference_feed_path,omitempty"`
	// DictionaryLogPath receives the enrollment run report.
	DictionaryLogPath string `yaml:"dictionary_log_path,omitempty"`
	// ReferenceLogPath receives the reference run report.
	ReferenceLogPath string `yaml:"reference_log_path,omitempty"`
	// NodeKeys are the API keys accepted from enforcement nodes.
	NodeKeys []string `yaml:"node_keys,omitempty"`
	// Validation carries the optional length limit overrides.
	Validation map[string]string `yaml:"validation,omitempty"`
	// Directory carries the enrollment directory table layout.
	Directory DirectoryConfig `yaml:"directory,omitempty"`
}

// DirectoryConfig names the enrollment directory tables and fields.
type DirectoryConfig struct {
	EnrollmentTable string `yaml:"enrollment_table,omitempty"`
	UserTable       string `yaml:"user_table,omitempty"`
	UpdatedAtColumn string `yaml:"updated_at_column,omitempty"`
	UserIDField     string `yaml:"user_id_field,omitempty"`
	LicenseField    string `yaml:"license_field,omitempty"`
	LoaField        string `yaml:"loa_field,omitempty"`
}

// LoadServer reads the server configuration from the given path and
// applies defaults.
func LoadServer(path string) (*ServerConfig, error) {
	var cfg ServerConfig

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *ServerConfig) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8470"
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = "/var/lib/licsync/snapshots"
	}
	if c.ReferenceFeedPath == "" {
		c.ReferenceFeedPath = "/var/lib/licsync/reference-feed.csv"
	}
	if c.Directory.EnrollmentTable == "" {
		c.Directory.EnrollmentTable = "enrollments"
	}
	if c.Directory.UserTable == "" {
		c.Directory.UserTable = "enrollment_users"
	}
	if c.Directory.UpdatedAtColumn == "" {
		c.Directory.UpdatedAtColumn = "updated_at"
	}
}

// Validate checks that the configuration can run a server.
func (c *ServerConfig) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is required (or set DATABASE_URL)")
	}
	if len(c.NodeKeys) == 0 {
		return errors.New("at least one node key is required")
	}
	return nil
}

// Limits resolves the validation length limits from the overrides.
func (c *ServerConfig) Limits() validate.Limits {
	return validate.LimitsFromOptions(c.Validation)
}

// Fields resolves the directory field names, defaulting the unset ones.
func (c *ServerConfig) Fields() validate.FieldNames {
	fields := validate.DefaultFieldNames()
	if c.Directory.UserIDField != "" {
		fields.UserID = c.Directory.UserIDField
	}
	if c.Directory.LicenseField != "" {
		fields.License = c.Directory.LicenseField
	}
	if c.Directory.LoaField != "" {
		fields.Loa = c.Directory.LoaField
	}
	return fields
}
