// Package tracker defines the abstraction over the issue-tracker HTTP API
// (§6: "modeled on JIRA Cloud REST v3") that the orchestrator drives: ticket
// search and fetch, attachment download, comment posting, and status
// transitions. A concrete implementation lives in pkg/tracker/jiracloud;
// tests use the httptest-backed mock in pkg/testkit.
package tracker

import (
	"context"

	"useruploadagent/pkg/model"
)

// Client is the Tracker Client contract (§6).
type Client interface {
	// Search returns the tickets matching the configured query (jql/query, §6).
	Search(ctx context.Context, query string) ([]model.Ticket, error)

	// GetTicket fetches one ticket with summary, description, status,
	// attachments, and comments populated (§6 fields list).
	GetTicket(ctx context.Context, key string) (*model.Ticket, error)

	// DownloadAttachment fetches one attachment's bytes.
	DownloadAttachment(ctx context.Context, att model.Attachment) ([]byte, error)

	// AddComment posts a plain-text comment and returns it with its
	// server-assigned id and timestamp.
	AddComment(ctx context.Context, key, body string) (*model.Comment, error)

	// UploadAttachment attaches a generated file (e.g. the approval CSV) to a
	// ticket via multipart upload (§6).
	UploadAttachment(ctx context.Context, key, filename string, content []byte) error

	// Transition moves a ticket to a new status, optionally posting a comment
	// as part of the same call (§6: "perform transition with optional comment").
	Transition(ctx context.Context, key string, status model.TicketStatus, comment string) error
}

// IsBotComment reports whether a comment was authored by the agent itself,
// matching by account id or display name — either suffices (§9 Design Notes
// "Bot identity"). The marker prefix (checked by callers against Body) is the
// definitive signal for markers; no caller in this repository invokes
// IsBotComment.
func IsBotComment(c model.CommentAuthor, botAccountID, botAccountName string) bool {
	if botAccountID != "" && c.ID == botAccountID {
		return true
	}
	if botAccountName != "" && c.DisplayName == botAccountName {
		return true
	}
	return false
}
