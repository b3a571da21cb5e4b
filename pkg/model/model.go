// Package model defines the data types shared across the ticket-reconciliation
// pipeline: tickets, attachments, comments, datasets, and processing results.
package model

import "time"

// TicketStatus is the tracker status driving the orchestrator's state machine.
type TicketStatus string

const (
	StatusOpen          TicketStatus = "Open"
	StatusReview         TicketStatus = "Review"
	StatusInfoRequired   TicketStatus = "Info Required"
	StatusDone           TicketStatus = "Done"
)

// Ticket is the tracker issue the agent reconciles.
type Ticket struct {
	Key         string
	Summary     string
	Description string
	Status      TicketStatus
	Attachments []Attachment
	Comments    []Comment
}

// Text concatenates summary and description the way the Tenant Resolver (§4.8)
// scans for a tenant identifier.
func (t *Ticket) Text() string {
	return t.Summary + "\n" + t.Description
}

// Attachment is a file referenced by a ticket; Content is populated only for
// the duration of one processing pass (§3 Attachment lifecycle).
type Attachment struct {
	Filename    string
	MIMEType    string
	Size        int64
	DownloadURL string
	Content     []byte
}

// CommentAuthor identifies who wrote a comment.
type CommentAuthor struct {
	ID          string
	DisplayName string
}

// Comment is one entry in a ticket's ordered comment stream. Ordering is by
// Created, ties broken by ID ascending (§5).
type Comment struct {
	ID      string
	Author  CommentAuthor
	Created time.Time
	Body    string
}

// UserRole is the closed set of roles the backend accepts (§3).
type UserRole string

const (
	RoleTeamMember          UserRole = "TEAM MEMBER"
	RoleManager              UserRole = "MANAGER"
	RoleMonitor              UserRole = "MONITOR"
	RoleAdministrator        UserRole = "ADMINISTRATOR"
	RoleCompanyAdministrator UserRole = "COMPANY ADMINISTRATOR"
)

// ValidRoles is the closed role set used by the Validator (§4.4, §8 property 7).
var ValidRoles = map[UserRole]bool{
	RoleTeamMember:           true,
	RoleManager:              true,
	RoleMonitor:              true,
	RoleAdministrator:        true,
	RoleCompanyAdministrator: true,
}

// UserRow is one canonicalized, validated row of the import dataset (§3).
type UserRow struct {
	Email        string
	FirstName    string
	LastName     string
	JobTitle     string
	MobileNumber string
	Teams        []string
	UserRole     UserRole

	// RowNumber is the 1-based row number in the source attachment, preserved
	// for error reporting and for the generated approval CSV.
	RowNumber int

	// FieldErrors holds per-field validation errors; empty means the row is valid.
	FieldErrors []FieldError
}

// Valid reports whether the row passed validation.
func (r *UserRow) Valid() bool { return len(r.FieldErrors) == 0 }

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field string
	Error string
}

// Dataset is an ordered collection of user rows assembled from one or more
// attachments, after parsing, normalization, validation, and team splitting.
type Dataset struct {
	Rows []UserRow

	// TeamSplitNotice is set when the Team Splitter rewrote any cell (§4.5.5).
	TeamSplitNotice string
}

// ValidRows returns the subset of rows that passed validation, preserving order.
func (d *Dataset) ValidRows() []UserRow {
	out := make([]UserRow, 0, len(d.Rows))
	for _, r := range d.Rows {
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// ErrorHistogram tallies field-error messages across all rows.
func (d *Dataset) ErrorHistogram() map[string]int {
	hist := make(map[string]int)
	for _, r := range d.Rows {
		for _, fe := range r.FieldErrors {
			hist[fe.Error]++
		}
	}
	return hist
}

// Fingerprint pins one attachment's content for tamper-evident approval (§3, §4.6).
type Fingerprint struct {
	Filename     string
	Size         int64
	SHA256Base64 string
}

// Tenant identifies a customer partition of the backend (§3).
type Tenant struct {
	ID       string
	Email    string
	Password string
}

// ApprovalVerdict is the outcome of consulting the Approval Engine (§4.7).
type ApprovalVerdict string

const (
	VerdictApproved    ApprovalVerdict = "approved"
	VerdictPending     ApprovalVerdict = "pending"
	VerdictNoRequest   ApprovalVerdict = "no-request"
	VerdictInvalidated ApprovalVerdict = "invalidated"
)

// ApprovalContext is the payload materialized into a marker comment (§3).
type ApprovalContext struct {
	TicketKey    string
	Tenant       string
	UserCount    int
	TeamCount    int
	Attachments  []Fingerprint
	GeneratedAt  time.Time
	SplitNotice  string
}

// ResultStatus is the per-ticket outcome of one orchestrator pass (§3).
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultPartial ResultStatus = "partial"
	ResultPending ResultStatus = "pending"
	ResultSkipped ResultStatus = "skipped"
	ResultFailed  ResultStatus = "failed"
)

// CreationFailure reports one failed user or team creation (§3).
type CreationFailure struct {
	Email  string
	Team   string
	Reason string
}

// ProcessingResult is the per-ticket outcome of one orchestrator step (§3).
type ProcessingResult struct {
	TicketKey     string
	Status        ResultStatus
	CreatedUsers  []string
	ExistingUsers []string
	CreatedTeams  []string
	Failures      []CreationFailure
	NextState     TicketStatus
	Message       string
}
