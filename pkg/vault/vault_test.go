package vault

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"useruploadagent/pkg/agenterr"
)

// writeFakeVault writes a shell script acting as the vault CLI: it looks up
// tenant in a hardcoded table and either prints the password, exits 1 with
// "not found" on stderr, or exits 2 with an unrelated error for "boom".
func writeFakeVault(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake vault script is a shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-vault.sh")
	script := `#!/bin/sh
tenant="$2"
case "$tenant" in
  acme) echo "acme-secret"; exit 0 ;;
  boom) echo "kaboom" >&2; exit 2 ;;
  *) echo "credential not found" >&2; exit 1 ;;
esac
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake vault script: %v", err)
	}
	return path
}

func TestGetFoundReturnsPassword(t *testing.T) {
	s := New(writeFakeVault(t), "not found")
	r, err := s.Get(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !r.Found || r.Password != "acme-secret" {
		t.Errorf("unexpected result: %+v", r)
	}
}

func TestGetNotFound(t *testing.T) {
	s := New(writeFakeVault(t), "not found")
	r, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Found {
		t.Errorf("expected not found, got %+v", r)
	}
}

func TestGetVaultUnavailableOnUnrelatedExit(t *testing.T) {
	s := New(writeFakeVault(t), "not found")
	_, err := s.Get(context.Background(), "boom")
	var agErr *agenterr.Error
	if !agenterr.As(err, &agErr) || agErr.Kind != agenterr.KindVaultUnavailable {
		t.Fatalf("expected vault-unavailable error, got %v", err)
	}
}

func TestGetCachesAcrossCalls(t *testing.T) {
	path := writeFakeVault(t)
	s := New(path, "not found")

	first, err := s.Get(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Remove the binary out from under the store; a cache hit must not
	// invoke it again, so the result should be unchanged.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove fake vault: %v", err)
	}

	second, err := s.Get(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Get on cache hit should not invoke the (now-missing) binary: %v", err)
	}
	if second != first {
		t.Errorf("expected cached result %+v, got %+v", first, second)
	}
}

func TestPreloadAllSeedsCache(t *testing.T) {
	path := writeFakeVault(t)
	s := New(path, "not found")

	if err := s.PreloadAll(context.Background(), []string{"acme", "nope"}); err != nil {
		t.Fatalf("PreloadAll: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove fake vault: %v", err)
	}

	r, err := s.Get(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Get after preload should be a cache hit: %v", err)
	}
	if !r.Found || r.Password != "acme-secret" {
		t.Errorf("unexpected preloaded result: %+v", r)
	}

	r, err = s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get after preload should be a cache hit: %v", err)
	}
	if r.Found {
		t.Errorf("expected not-found preloaded result, got %+v", r)
	}
}
