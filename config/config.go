// Package config loads the experiment configuration. The database target
// derived here is fixed for the process lifetime; runtime re-targeting is
// deliberately unsupported.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ConfigPathEnv selects an alternate configuration file, read once at
	// startup.
	ConfigPathEnv = "YSERVER_CONFIG"

	DefaultPath = "config_files/exp_config.json"

	ModuleNews   = "news"
	ModuleVoting = "voting"
)

type Config struct {
	// Name identifies the experiment and derives the default sqlite
	// location under experiments/.
	Name string `json:"name"`

	Host string `json:"host"`
	Port int    `json:"port"`

	// ResetDB truncates and recreates storage at startup.
	ResetDB bool `json:"reset_db"`

	// Modules enables optional feature flags; recognized values are
	// ModuleNews and ModuleVoting.
	Modules []string `json:"modules"`

	// DatabaseURI overrides the default storage location. Accepts the
	// sqlite:// and postgres:// forms understood by util.SetupDatabase.
	DatabaseURI string `json:"database_uri"`

	// PerspectiveAPIKey enables the external toxicity scorer when set.
	PerspectiveAPIKey string `json:"perspective_api_key"`
}

// Load reads the config file at path, falling back to the ConfigPathEnv
// env var and then DefaultPath when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: experiment name is required")
	}
	for _, m := range c.Modules {
		if m != ModuleNews && m != ModuleVoting {
			return fmt.Errorf("config: unrecognized module %q", m)
		}
	}
	return nil
}

// DatabaseURL returns the explicit database_uri, or the per-experiment
// sqlite default.
func (c *Config) DatabaseURL() string {
	if c.DatabaseURI != "" {
		return c.DatabaseURI
	}
	return "sqlite://" + filepath.Join("experiments", c.Name+".db")
}

// BindAddr joins host and port for the API listener.
func (c *Config) BindAddr() string {
	host := c.Host
	port := c.Port
	if port == 0 {
		port = 5010
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func (c *Config) HasModule(name string) bool {
	for _, m := range c.Modules {
		if m == name {
			return true
		}
	}
	return false
}
