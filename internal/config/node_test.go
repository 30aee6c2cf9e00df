package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNodeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     NodeConfig
		wantErr bool
	}{
		{
			name:    "empty config",
			cfg:     NodeConfig{},
			wantErr: true,
		},
		{
			name: "missing api_key",
			cfg: NodeConfig{
				ServerURL: "https://licsync.example.com",
			},
			wantErr: true,
		},
		{
			name: "missing server_url",
			cfg: NodeConfig{
				APIKey: "test-key",
			},
			wantErr: true,
		},
		{
			name: "valid config",
			cfg: NodeConfig{
				ServerURL: "https://licsync.example.com",
				APIKey:    "test-key",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadNode_Defaults(t *testing.T) {
	cfg, err := LoadNode(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("LoadNode() error = %v", err)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval = %v, want 5m", cfg.PollInterval)
	}
	if cfg.DataDir == "" {
		t.Error("DataDir should default to the config directory")
	}
}

func TestNodeConfig_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")

	want := &NodeConfig{
		ServerURL:    "https://licsync.example.com",
		APIKey:       "secret",
		DataDir:      "/var/lib/licsync-node",
		PollInterval: time.Minute,
	}
	if err := want.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := LoadNode(path)
	if err != nil {
		t.Fatalf("LoadNode() error = %v", err)
	}
	if *got != *want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}
