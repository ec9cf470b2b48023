// Package config loads application settings from a YAML file with
// environment variable overrides for deploy-time secrets.
package config

import (
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gopkg.in/yaml.v3"
)

// DriveScope is the only OAuth scope the extractor needs: it reads
// spreadsheets, it never writes them.
const DriveScope = "https://www.googleapis.com/auth/drive.readonly"

// Config is the full application configuration.
type Config struct {
	// Listen is the HTTP bind address, e.g. ":8700".
	Listen string `yaml:"listen"`

	// Component names the extractor in generated bucket and table ids.
	Component string `yaml:"component"`

	// DatabasePath is the SQLite file backing the storage client.
	DatabasePath string `yaml:"database_path"`

	// TempDir holds in-flight CSV files; empty means the OS default.
	TempDir string `yaml:"temp_dir"`

	Google GoogleConfig `yaml:"google"`
}

// GoogleConfig carries the OAuth application credentials.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Listen:       ":8700",
		Component:    "ex-google-drive",
		DatabasePath: "sheetport.db",
	}
}

// Load reads the YAML file at path, falling back to defaults when the file
// does not exist, then applies environment overrides. Secrets belong in the
// environment rather than on disk.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrideEnv(&c.Listen, "SHEETPORT_LISTEN")
	overrideEnv(&c.Component, "SHEETPORT_COMPONENT")
	overrideEnv(&c.DatabasePath, "SHEETPORT_DB")
	overrideEnv(&c.TempDir, "SHEETPORT_TEMP_DIR")
	overrideEnv(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	overrideEnv(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	overrideEnv(&c.Google.RedirectURL, "GOOGLE_REDIRECT_URL")
}

func overrideEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// OAuth builds the oauth2 client configuration for the Drive API.
func (g GoogleConfig) OAuth() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RedirectURL:  g.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{DriveScope},
	}
}
