// Package backend defines the abstraction over the downstream identity
// backend (§4.9): login, role/team/user lookup, and idempotent team/user
// creation. A concrete HTTP implementation lives alongside a mock
// implementation behind the same interface for offline tests (§4.9 "A mock
// mode MUST exist behind the same interface").
package backend

import "context"

// Role is one backend role available to assign to a user.
type Role struct {
	ID   string
	Name string
}

// Team is one backend team.
type Team struct {
	ID      string
	Name    string
	Members []string // member ids
}

// User is one backend user.
type User struct {
	ID    string
	Email string
}

// EscalationContact is one contact in a team's escalation chain.
type EscalationContact struct {
	MemberID string
}

// EscalationLevel is one tier of a team's escalation policy.
type EscalationLevel struct {
	Minutes  int
	Contacts []EscalationContact
}

// NewTeam is the payload to create a team (§4.9).
type NewTeam struct {
	Name             string
	Members          []string
	EscalationLevels []EscalationLevel
}

// DefaultEscalationMinutes is the §4.9 default: exactly one escalation level
// at 180 minutes, contacts set to the team's members at creation time.
const DefaultEscalationMinutes = 180

// NewTeamWithDefaultEscalation builds a NewTeam payload with the default
// single-level 180-minute escalation policy, contacts = members.
func NewTeamWithDefaultEscalation(name string, members []string) NewTeam {
	contacts := make([]EscalationContact, len(members))
	for i, m := range members {
		contacts[i] = EscalationContact{MemberID: m}
	}
	return NewTeam{
		Name:    name,
		Members: members,
		EscalationLevels: []EscalationLevel{
			{Minutes: DefaultEscalationMinutes, Contacts: contacts},
		},
	}
}

// MobileNumber is one phone number entry on a user (§4.9).
type MobileNumber struct {
	Number   string
	IsActive bool
}

// NewUser is the payload to create a user (§4.9).
type NewUser struct {
	FirstName     string
	LastName      string
	Email         string
	Title         string
	MobileNumbers []MobileNumber
	TeamIDs       []string
	DefaultTeam   string
	RoleID        string
}

// Session is an authenticated handle returned by Login. Nothing caches it:
// the orchestrator calls Login afresh on every user-creation pass, so a
// session is not shared across tickets of the same tenant.
type Session struct {
	Token string
}

// Client is the Backend Client contract (§4.9).
type Client interface {
	Login(ctx context.Context, email, password string) (Session, error)
	ListRoles(ctx context.Context, s Session) ([]Role, error)
	ListTeams(ctx context.Context, s Session) ([]Team, error)
	ListUsers(ctx context.Context, s Session) ([]User, error)

	// FindUser matches by email, case-insensitively.
	FindUser(ctx context.Context, s Session, email string) (*User, bool, error)

	// FindTeam matches by name, exactly.
	FindTeam(ctx context.Context, s Session, name string) (*Team, bool, error)

	CreateTeam(ctx context.Context, s Session, team NewTeam) (Team, error)
	CreateUser(ctx context.Context, s Session, user NewUser) (User, error)

	// AssociateUserToTeams attaches an already-created user to teams.
	AssociateUserToTeams(ctx context.Context, s Session, userID string, teamIDs []string) error
}
