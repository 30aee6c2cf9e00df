package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadServer_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg, err := LoadServer(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.ListenAddr != ":8470" {
		t.Errorf("ListenAddr = %q, want :8470", cfg.ListenAddr)
	}
	if cfg.Directory.EnrollmentTable != "enrollments" {
		t.Errorf("EnrollmentTable = %q", cfg.Directory.EnrollmentTable)
	}
}

func TestLoadServer_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9000"
database_url: "postgres://localhost/licsync"
node_keys:
  - key-one
validation:
  license_length: "12"
directory:
  user_id_field: employee_id
`)

	cfg, err := LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if got := cfg.Limits().License; got != 12 {
		t.Errorf("license limit = %d, want 12", got)
	}
	if got := cfg.Fields().UserID; got != "employee_id" {
		t.Errorf("user id field = %q, want employee_id", got)
	}
	if got := cfg.Fields().License; got != "licenses" {
		t.Errorf("license field = %q, want default licenses", got)
	}
}

func TestServerConfig_ValidateRequiresDatabaseAndKeys(t *testing.T) {
	cfg := &ServerConfig{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing database_url")
	}

	cfg.DatabaseURL = "postgres://localhost/licsync"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing node keys")
	}

	cfg.NodeKeys = []string{"k"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadServer_DatabaseURLFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/licsync")

	cfg, err := LoadServer(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.DatabaseURL != "postgres://env/licsync" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}
