package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"useruploadagent/pkg/backend"
	"useruploadagent/pkg/tracker/jiracloud"
)

func TestMockBackendServerLoginAndListRoles(t *testing.T) {
	mock := NewMockBackendServer()
	defer mock.Close()

	client := backend.NewHTTPClient(mock.URL(), 5*time.Second)
	ctx := context.Background()

	session, err := client.Login(ctx, "a@b.io", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.Token != mock.Token {
		t.Fatalf("expected session token %q, got %q", mock.Token, session.Token)
	}

	roles, err := client.ListRoles(ctx, session)
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected 2 seeded roles, got %d", len(roles))
	}
}

func TestMockBackendServerRejectsUnauthenticatedRequests(t *testing.T) {
	mock := NewMockBackendServer()
	defer mock.Close()

	client := backend.NewHTTPClient(mock.URL(), 5*time.Second)
	if _, err := client.ListRoles(context.Background(), backend.Session{Token: "wrong"}); err == nil {
		t.Fatal("expected an error for an unauthenticated request, got nil")
	}
}

func TestMockBackendServerCreateTeamAndUser(t *testing.T) {
	mock := NewMockBackendServer()
	defer mock.Close()

	client := backend.NewHTTPClient(mock.URL(), 5*time.Second)
	ctx := context.Background()
	session, err := client.Login(ctx, "a@b.io", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	team, err := client.CreateTeam(ctx, session, backend.NewTeamWithDefaultEscalation("Eng", []string{"ann@x.io"}))
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if team.Name != "Eng" {
		t.Errorf("expected team name Eng, got %q", team.Name)
	}

	user, err := client.CreateUser(ctx, session, backend.NewUser{Email: "ann@x.io", FirstName: "Ann", LastName: "Lee"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "ann@x.io" {
		t.Errorf("expected user email ann@x.io, got %q", user.Email)
	}

	if err := client.AssociateUserToTeams(ctx, session, user.ID, []string{team.ID}); err != nil {
		t.Fatalf("AssociateUserToTeams: %v", err)
	}

	if len(mock.Requests) == 0 {
		t.Fatal("expected the mock server to have recorded requests")
	}
}

func TestMockTrackerServerSearchAndGetTicket(t *testing.T) {
	mock := NewMockTrackerServer()
	defer mock.Close()
	mock.AddIssue("REQ-1", map[string]any{
		"summary":     "New hires for Acme",
		"description": map[string]any{"content": []any{}},
		"status":      map[string]any{"name": "Open"},
		"attachment":  []any{},
		"comment":     map[string]any{"comments": []any{}},
	})

	client := jiracloud.New(jiracloud.Config{BaseURL: mock.URL(), Email: "bot@acme.io", APIToken: "tok"})
	ctx := context.Background()

	tickets, err := client.Search(ctx, "status = Open")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	require.Equal(t, "REQ-1", tickets[0].Key)

	ticket, err := client.GetTicket(ctx, "REQ-1")
	require.NoError(t, err)
	require.Equal(t, "New hires for Acme", ticket.Summary)

	if _, err := client.GetTicket(ctx, "MISSING-1"); err == nil {
		t.Fatal("expected an error for an unknown ticket key")
	}
}

func TestMockTrackerServerAddCommentAndTransition(t *testing.T) {
	mock := NewMockTrackerServer()
	defer mock.Close()
	mock.AddIssue("REQ-2", map[string]any{
		"summary":     "Follow-up",
		"description": map[string]any{"content": []any{}},
		"status":      map[string]any{"name": "Open"},
		"attachment":  []any{},
		"comment":     map[string]any{"comments": []any{}},
	})

	client := jiracloud.New(jiracloud.Config{BaseURL: mock.URL(), Email: "bot@acme.io", APIToken: "tok"})
	ctx := context.Background()

	comment, err := client.AddComment(ctx, "REQ-2", "approval requested")
	require.NoError(t, err)
	require.Equal(t, "approval requested", comment.Body)

	require.NoError(t, client.Transition(ctx, "REQ-2", "Review", ""))
}
