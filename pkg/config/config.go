// Package config loads, validates, and serves the agent's configuration: a
// single YAML file plus a small set of environment-variable overrides for
// sensitive keys (§6).
//
// A single global Config instance is held in memory behind a mutex, the way
// the teacher's pkg/config holds its project/orchestrator config — but
// generalized here to one flat YAML document instead of a split
// project-config/orchestrator-config JSON pair, since this agent has no
// per-project persisted state to separate from system-wide settings.
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// TrackerConfig configures the issue-tracker HTTP client (§6).
type TrackerConfig struct {
	Domain         string `yaml:"domain"`
	Email          string `yaml:"email"`
	APIToken       string `yaml:"api_token"`
	BotAccountID   string `yaml:"bot_account_id"`
	BotAccountName string `yaml:"bot_account_name"`
}

// BackendConfig configures the identity backend HTTP client (§6).
type BackendConfig struct {
	BaseURL    string `yaml:"base_url"`
	BaseAltURL string `yaml:"base_alt_url"`
	Mock       bool   `yaml:"mock"`
}

// AIConfig configures the LLM facade (§6).
type AIConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Provider string `yaml:"provider"` // "anthropic" (default) or "openai"
}

// VaultConfig configures the credential-vault CLI integration (§6).
type VaultConfig struct {
	Binary        string `yaml:"binary"`
	VaultName     string `yaml:"vault_name"`
	EmailTemplate string `yaml:"email_template"`
}

// ApprovalConfig configures the approval marker contract (§6).
type ApprovalConfig struct {
	MarkerPrefix string `yaml:"marker_prefix"`
}

// TeamConfig configures team-creation defaults (§6, §4.9).
type TeamConfig struct {
	DefaultEscalationMinutes int `yaml:"default_escalation_minutes"`
}

// Config is the agent's full configuration (§6 table).
type Config struct {
	Tracker             TrackerConfig  `yaml:"tracker"`
	Backend             BackendConfig  `yaml:"backend"`
	AI                  AIConfig       `yaml:"ai"`
	Vault               VaultConfig    `yaml:"vault"`
	JQL                 string         `yaml:"jql"`
	PollIntervalSeconds int            `yaml:"poll_interval_seconds"`
	AttachmentMaxBytes  int64          `yaml:"attachment_max_bytes"`
	Approval            ApprovalConfig `yaml:"approval"`
	Team                TeamConfig     `yaml:"team"`
	LogLevel            string         `yaml:"log_level"`
	JournalPath         string         `yaml:"journal_path"`
	MetricsAddr         string         `yaml:"metrics_addr"`
}

// Defaults, per §6.
const (
	DefaultAttachmentMaxBytes  = 31457280 // 30 MiB
	DefaultMarkerPrefix        = "[BOT:user-upload:approval-request:v2]"
	DefaultEscalationMinutes   = 180
	DefaultPollIntervalSeconds = 60
	DefaultVaultEmailTemplate  = "customersolutions+%s@%s"
)

// applyDefaults fills in zero-valued fields with the §6 defaults. Called once
// after decoding, before validation.
func (c *Config) applyDefaults() {
	if c.AttachmentMaxBytes == 0 {
		c.AttachmentMaxBytes = DefaultAttachmentMaxBytes
	}
	// The marker prefix is fixed by spec; any configured value is overwritten.
	c.Approval.MarkerPrefix = DefaultMarkerPrefix
	if c.Team.DefaultEscalationMinutes == 0 {
		c.Team.DefaultEscalationMinutes = DefaultEscalationMinutes
	}
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.Vault.EmailTemplate == "" {
		c.Vault.EmailTemplate = fmt.Sprintf(DefaultVaultEmailTemplate, "%s", c.Tracker.Domain)
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "anthropic"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that the fields the core pipeline cannot run without are
// present. A failure here is a ConfigError (§7), fatal to the run.
func (c *Config) Validate() error {
	if c.Tracker.Domain == "" {
		return fmt.Errorf("tracker.domain is required")
	}
	if c.Tracker.Email == "" || c.Tracker.APIToken == "" {
		return fmt.Errorf("tracker.email and tracker.api_token are required")
	}
	if !c.Backend.Mock && c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required unless backend.mock is set")
	}
	if c.Vault.Binary == "" && !c.Backend.Mock {
		return fmt.Errorf("vault.binary is required unless backend.mock is set")
	}
	return nil
}

// Load reads and decodes the YAML file at path, applies environment-variable
// overrides for sensitive keys, fills in §6 defaults, and validates the
// result. It does not install the result as the process-wide singleton —
// callers do that explicitly with Set once startup has otherwise succeeded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets a handful of sensitive values be supplied out of
// band instead of committed to the YAML file, the way the teacher's config
// layer lets environment variables override API keys in its own config.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("TRACKER_API_TOKEN"); v != "" {
		c.Tracker.APIToken = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
}

// Global holds the process-wide singleton, mutex-guarded like the teacher's
// package-level config/mu pair.
//
//nolint:gochecknoglobals // intentional singleton, mirrors teacher's pkg/config
var (
	current *Config
	mu      sync.RWMutex
)

// Set installs cfg as the process-wide configuration. Tests construct a
// Config directly and call Set rather than going through a file.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	current = cfg
}

// Get returns a copy of the current configuration. Panics if Load/Set has not
// been called — callers are expected to load configuration once at startup.
func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		panic("config: Get called before Load/Set")
	}
	return *current
}
