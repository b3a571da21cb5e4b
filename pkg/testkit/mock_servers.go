// Package testkit provides httptest-based mock servers for exercising the
// HTTP-backed clients (pkg/backend, pkg/tracker/jiracloud) against real
// request/response plumbing instead of hand-rolled interface fakes.
package testkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockBackendServer emulates the identity backend's REST API well enough to
// drive backend.HTTPClient through login, role/team/user listing, and
// creation. State is held in memory for the life of one server instance.
type MockBackendServer struct {
	mu     sync.Mutex
	Server *httptest.Server
	Token  string
	Roles  []map[string]any
	Teams  []map[string]any
	Users  []map[string]any
	nextID int

	// Requests records every request the server has handled, for
	// assertions on auth headers or call counts.
	Requests []*http.Request
}

// NewMockBackendServer starts a backend mock seeded with two default roles.
func NewMockBackendServer() *MockBackendServer {
	m := &MockBackendServer{
		Token: "mock-token",
		Roles: []map[string]any{
			{"id": "role-team-member", "name": "TEAM MEMBER"},
			{"id": "role-manager", "name": "MANAGER"},
		},
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the underlying httptest.Server.
func (m *MockBackendServer) Close() { m.Server.Close() }

// URL is the mock server's base URL, for backend.NewHTTPClient.
func (m *MockBackendServer) URL() string { return m.Server.URL }

func (m *MockBackendServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, r)

	switch {
	case r.URL.Path == "/api/v1/login" && r.Method == http.MethodPost:
		writeJSON(w, http.StatusOK, map[string]any{"token": m.Token})

	case r.URL.Path == "/api/v1/roles" && r.Method == http.MethodGet:
		if !m.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, m.Roles)

	case r.URL.Path == "/api/v1/teams" && r.Method == http.MethodGet:
		if !m.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, m.Teams)

	case r.URL.Path == "/api/v1/teams" && r.Method == http.MethodPost:
		if !m.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		m.nextID++
		team := map[string]any{"id": idOf("team", m.nextID), "name": req["name"], "members": req["members"]}
		m.Teams = append(m.Teams, team)
		writeJSON(w, http.StatusCreated, team)

	case r.URL.Path == "/api/v1/users" && r.Method == http.MethodGet:
		if !m.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, m.Users)

	case r.URL.Path == "/api/v1/users" && r.Method == http.MethodPost:
		if !m.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		m.nextID++
		user := map[string]any{"id": idOf("user", m.nextID), "email": req["email"]}
		m.Users = append(m.Users, user)
		writeJSON(w, http.StatusCreated, user)

	case strings.HasSuffix(r.URL.Path, "/teams") && r.Method == http.MethodPost:
		if !m.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *MockBackendServer) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+m.Token
}

// MockTrackerServer emulates the JIRA-Cloud-shaped REST v3 surface
// pkg/tracker/jiracloud.Client drives: issue search/fetch, comments,
// transitions, and attachment upload.
type MockTrackerServer struct {
	mu       sync.Mutex
	Server   *httptest.Server
	Issues   map[string]map[string]any
	nextID   int
	Requests []*http.Request
}

// NewMockTrackerServer starts a tracker mock with no issues seeded; use
// AddIssue to populate it.
func NewMockTrackerServer() *MockTrackerServer {
	m := &MockTrackerServer{Issues: map[string]map[string]any{}}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *MockTrackerServer) Close() { m.Server.Close() }
func (m *MockTrackerServer) URL() string { return m.Server.URL }

// AddIssue seeds one issue, in the wire shape jiracloud.Client decodes:
// {key, fields: {summary, description, status, attachment, comment}}.
func (m *MockTrackerServer) AddIssue(key string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Issues[key] = map[string]any{"key": key, "fields": fields}
}

func (m *MockTrackerServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, r)

	path := strings.TrimPrefix(r.URL.Path, "/rest/api/3")

	switch {
	case path == "/search" && r.Method == http.MethodGet:
		issues := make([]map[string]any, 0, len(m.Issues))
		for _, v := range m.Issues {
			issues = append(issues, v)
		}
		writeJSON(w, http.StatusOK, map[string]any{"issues": issues})

	case strings.HasPrefix(path, "/issue/") && strings.HasSuffix(path, "/transitions") && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"transitions": []map[string]any{
			{"id": "1", "name": "Review", "to": map[string]any{"name": "Review"}},
			{"id": "2", "name": "Info Required", "to": map[string]any{"name": "Info Required"}},
			{"id": "3", "name": "Done", "to": map[string]any{"name": "Done"}},
		}})

	case strings.HasPrefix(path, "/issue/") && strings.HasSuffix(path, "/transitions") && r.Method == http.MethodPost:
		w.WriteHeader(http.StatusNoContent)

	case strings.HasPrefix(path, "/issue/") && strings.HasSuffix(path, "/comment") && r.Method == http.MethodPost:
		m.nextID++
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":      idOf("comment", m.nextID),
			"author":  map[string]any{"accountId": "bot", "displayName": "Agent"},
			"created": "2026-01-01T00:00:00.000-0700",
		})

	case strings.HasPrefix(path, "/issue/") && strings.HasSuffix(path, "/attachments") && r.Method == http.MethodPost:
		w.WriteHeader(http.StatusOK)

	case strings.HasPrefix(path, "/issue/") && r.Method == http.MethodGet:
		key := strings.TrimPrefix(path, "/issue/")
		issue, ok := m.Issues[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, issue)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func idOf(kind string, n int) string {
	return kind + "-" + strconv.Itoa(n)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
