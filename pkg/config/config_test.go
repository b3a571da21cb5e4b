package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
tracker:
  domain: example.atlassian.net
  email: bot@example.com
  api_token: tok
backend:
  mock: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AttachmentMaxBytes != DefaultAttachmentMaxBytes {
		t.Errorf("expected default attachment max bytes, got %d", cfg.AttachmentMaxBytes)
	}
	if cfg.Approval.MarkerPrefix != DefaultMarkerPrefix {
		t.Errorf("marker prefix must always be the fixed v2 prefix, got %q", cfg.Approval.MarkerPrefix)
	}
	if cfg.Team.DefaultEscalationMinutes != DefaultEscalationMinutes {
		t.Errorf("expected default escalation minutes, got %d", cfg.Team.DefaultEscalationMinutes)
	}
}

func TestLoadRejectsMissingTrackerCreds(t *testing.T) {
	path := writeTestConfig(t, `
backend:
  mock: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing tracker credentials")
	}
}

func TestEnvOverrideTakesPrecedence(t *testing.T) {
	path := writeTestConfig(t, `
tracker:
  domain: example.atlassian.net
  email: bot@example.com
  api_token: file-token
backend:
  mock: true
`)
	t.Setenv("TRACKER_API_TOKEN", "env-token")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tracker.APIToken != "env-token" {
		t.Errorf("expected env override to win, got %q", cfg.Tracker.APIToken)
	}
}

func TestGetPanicsBeforeLoad(t *testing.T) {
	mu.Lock()
	current = nil
	mu.Unlock()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when Get called before Load/Set")
		}
	}()
	Get()
}
