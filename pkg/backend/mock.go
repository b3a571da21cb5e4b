package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockClient is the §4.9 "mock mode" implementation behind the Client
// interface, for offline tests: creation returns deterministic synthetic
// ids rather than calling any real service.
type MockClient struct {
	Roles []Role

	mu        sync.Mutex
	teams     []Team
	users     []User
	nextTeam  int
	nextUser  int
	userTeams map[string][]string
}

// NewMockClient builds a MockClient seeded with the default §3 role set.
func NewMockClient() *MockClient {
	return &MockClient{
		Roles: []Role{
			{ID: "role-team-member", Name: "TEAM MEMBER"},
			{ID: "role-manager", Name: "MANAGER"},
			{ID: "role-monitor", Name: "MONITOR"},
			{ID: "role-administrator", Name: "ADMINISTRATOR"},
			{ID: "role-company-administrator", Name: "COMPANY ADMINISTRATOR"},
		},
		userTeams: make(map[string][]string),
	}
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) Login(ctx context.Context, email, password string) (Session, error) {
	return Session{Token: "mock-session-" + email}, nil
}

func (m *MockClient) ListRoles(ctx context.Context, s Session) ([]Role, error) {
	return m.Roles, nil
}

func (m *MockClient) ListTeams(ctx context.Context, s Session) ([]Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Team, len(m.teams))
	copy(out, m.teams)
	return out, nil
}

func (m *MockClient) ListUsers(ctx context.Context, s Session) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, len(m.users))
	copy(out, m.users)
	return out, nil
}

func (m *MockClient) FindUser(ctx context.Context, s Session, email string) (*User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if strings.EqualFold(m.users[i].Email, email) {
			u := m.users[i]
			return &u, true, nil
		}
	}
	return nil, false, nil
}

func (m *MockClient) FindTeam(ctx context.Context, s Session, name string) (*Team, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.teams {
		if m.teams[i].Name == name {
			t := m.teams[i]
			return &t, true, nil
		}
	}
	return nil, false, nil
}

func (m *MockClient) CreateTeam(ctx context.Context, s Session, team NewTeam) (Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTeam++
	created := Team{ID: fmt.Sprintf("mock-team-%d", m.nextTeam), Name: team.Name, Members: team.Members}
	m.teams = append(m.teams, created)
	return created, nil
}

func (m *MockClient) CreateUser(ctx context.Context, s Session, user NewUser) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUser++
	created := User{ID: fmt.Sprintf("mock-user-%d", m.nextUser), Email: user.Email}
	m.users = append(m.users, created)
	return created, nil
}

func (m *MockClient) AssociateUserToTeams(ctx context.Context, s Session, userID string, teamIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userTeams[userID] = append(m.userTeams[userID], teamIDs...)
	return nil
}
