package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// envOverrides is the small set of sensitive keys that may be supplied via
// the environment instead of the config file, checked in this order of
// precedence: environment, then file. Mirrors the teacher's secrets.go
// env-var-first precedence for credentials that should never be committed
// to a config file on disk.
var envOverrides = map[string]func(c *Config, v string){
	"TRACKER_API_TOKEN": func(c *Config, v string) { c.Tracker.APIToken = v },
	"TRACKER_EMAIL":      func(c *Config, v string) { c.Tracker.Email = v },
	"AI_API_KEY":        func(c *Config, v string) { c.AI.APIKey = v },
}

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, validates it, installs it as the process-wide
// singleton, and returns a copy.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	Set(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	for key, apply := range envOverrides {
		if v := os.Getenv(key); v != "" {
			apply(cfg, v)
		}
	}
}
