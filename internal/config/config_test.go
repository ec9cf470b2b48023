package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Listen != ":8700" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":8700")
	}
	if cfg.Component != "ex-google-drive" {
		t.Errorf("Component = %q, want %q", cfg.Component, "ex-google-drive")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := `
listen: ":9000"
component: ex-drive-test
database_path: /var/lib/sheetport/data.db
google:
  client_id: id-from-file
  client_secret: secret-from-file
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":9000")
	}
	if cfg.Component != "ex-drive-test" {
		t.Errorf("Component = %q, want %q", cfg.Component, "ex-drive-test")
	}
	if cfg.Google.ClientID != "id-from-file" {
		t.Errorf("ClientID = %q, want %q", cfg.Google.ClientID, "id-from-file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("listen: \":9000\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHEETPORT_LISTEN", ":9100")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Listen != ":9100" {
		t.Errorf("Listen = %q, want env override %q", cfg.Listen, ":9100")
	}
	if cfg.Google.ClientSecret != "secret-from-env" {
		t.Errorf("ClientSecret = %q, want env override", cfg.Google.ClientSecret)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() = nil error for invalid YAML")
	}
}

func TestOAuthConfig(t *testing.T) {
	g := GoogleConfig{ClientID: "id", ClientSecret: "secret"}
	oc := g.OAuth()
	if oc.ClientID != "id" || oc.ClientSecret != "secret" {
		t.Errorf("OAuth() credentials = %q/%q", oc.ClientID, oc.ClientSecret)
	}
	if len(oc.Scopes) != 1 || oc.Scopes[0] != DriveScope {
		t.Errorf("OAuth() scopes = %v, want [%s]", oc.Scopes, DriveScope)
	}
}
