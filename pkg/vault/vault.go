// Package vault is the Credential Store (§4.8): it shells out to a
// configurable CLI binary to resolve a tenant's backend password, caching
// results so repeated lookups within a run never call the external vault
// again. Modeled on the teacher's pkg/exec.LocalExec subprocess pattern.
package vault

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"useruploadagent/pkg/agenterr"
)

// Result is one tenant's credential lookup outcome.
type Result struct {
	Password string
	Found    bool
}

// Store is the process-wide credential cache. Binary is the CLI executable
// invoked as `<binary> get <tenant>`; its stdout (trimmed) is the password,
// a non-zero exit with stderr containing NotFoundMarker means "not found",
// any other non-zero exit is vault-unavailable (§4.8, §7 fatal kind).
type Store struct {
	Binary         string
	NotFoundMarker string

	mu    sync.Mutex
	cache map[string]Result
}

// New builds an empty Store. Call PreloadAll to populate eagerly, or rely on
// lazy population via Get.
func New(binary, notFoundMarker string) *Store {
	if notFoundMarker == "" {
		notFoundMarker = "not found"
	}
	return &Store{Binary: binary, NotFoundMarker: notFoundMarker, cache: make(map[string]Result)}
}

// Get returns the cached result for tenant if present; otherwise it invokes
// the vault binary, caches the outcome, and returns it. A cache hit never
// calls the external vault again (§4.8).
func (s *Store) Get(ctx context.Context, tenant string) (Result, error) {
	s.mu.Lock()
	if r, ok := s.cache[tenant]; ok {
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	r, err := s.lookup(ctx, tenant)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	s.cache[tenant] = r
	s.mu.Unlock()
	return r, nil
}

// PreloadAll runs the same `<binary> get <tenant>` lookup as Get for each
// tenant in the given list and seeds the cache with the results, stopping at
// the first lookup error (§4.8 "eagerly at startup (preload_all)").
func (s *Store) PreloadAll(ctx context.Context, tenants []string) error {
	for _, tenant := range tenants {
		r, err := s.lookup(ctx, tenant)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.cache[tenant] = r
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) lookup(ctx context.Context, tenant string) (Result, error) {
	cmd := exec.CommandContext(ctx, s.Binary, "get", tenant)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr == nil {
		return Result{Password: strings.TrimSpace(stdout.String()), Found: true}, nil
	}

	if _, ok := runErr.(*exec.ExitError); ok {
		if strings.Contains(strings.ToLower(stderr.String()), s.NotFoundMarker) {
			return Result{Found: false}, nil
		}
		return Result{}, agenterr.NewVaultUnavailable("vault command failed for tenant %q: %s", tenant, stderr.String())
	}

	return Result{}, agenterr.NewVaultUnavailable("could not invoke vault binary %q: %v", s.Binary, runErr)
}
