package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"useruploadagent/pkg/aiadapter"
	"useruploadagent/pkg/aiadapter/stub"
	"useruploadagent/pkg/backend"
	"useruploadagent/pkg/model"
	"useruploadagent/pkg/vault"
)

type fakeTracker struct {
	ticket      *model.Ticket
	attachments map[string][]byte

	comments    []string
	transitions []model.TicketStatus
	uploaded    map[string][]byte
}

func newFakeTracker(t *model.Ticket) *fakeTracker {
	return &fakeTracker{ticket: t, attachments: map[string][]byte{}, uploaded: map[string][]byte{}}
}

func (f *fakeTracker) Search(ctx context.Context, query string) ([]model.Ticket, error) {
	return []model.Ticket{*f.ticket}, nil
}

func (f *fakeTracker) GetTicket(ctx context.Context, key string) (*model.Ticket, error) {
	return f.ticket, nil
}

func (f *fakeTracker) DownloadAttachment(ctx context.Context, att model.Attachment) ([]byte, error) {
	return f.attachments[att.Filename], nil
}

func (f *fakeTracker) AddComment(ctx context.Context, key, body string) (*model.Comment, error) {
	f.comments = append(f.comments, body)
	c := model.Comment{
		ID:      nextCommentID(f),
		Author:  model.CommentAuthor{ID: "bot", DisplayName: "Agent"},
		Created: time.Now(),
		Body:    body,
	}
	f.ticket.Comments = append(f.ticket.Comments, c)
	return &c, nil
}

func nextCommentID(f *fakeTracker) string {
	return fmt.Sprintf("c%d", len(f.ticket.Comments))
}

func (f *fakeTracker) UploadAttachment(ctx context.Context, key, filename string, content []byte) error {
	f.uploaded[filename] = content
	return nil
}

func (f *fakeTracker) Transition(ctx context.Context, key string, status model.TicketStatus, comment string) error {
	if comment != "" {
		if _, err := f.AddComment(ctx, key, comment); err != nil {
			return err
		}
	}
	f.transitions = append(f.transitions, status)
	f.ticket.Status = status
	return nil
}

func writeFakeVaultScript(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake vault script is a shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-vault.sh")
	script := `#!/bin/sh
case "$2" in
  acme) echo "acme-secret"; exit 0 ;;
  *) echo "credential not found" >&2; exit 1 ;;
esac
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake vault script: %v", err)
	}
	return path
}

const csvContent = "email,first name,last name,teams,user role\nann@acme.io,Ann,Lee,Eng,MANAGER\n"

func baseTicket() *model.Ticket {
	return &model.Ticket{
		Key:         "TICK-1",
		Summary:     "Bulk import for tenant: acme",
		Description: "Please onboard these users.",
		Status:      model.StatusOpen,
		Attachments: []model.Attachment{{Filename: "users.csv"}},
	}
}

func newTestOrchestrator(t *testing.T, trk *fakeTracker, be backend.Client) *Orchestrator {
	ai := &stub.Client{
		ClassifyIntentFunc: func(ctx context.Context, summary, description string) (aiadapter.IntentResult, error) {
			return aiadapter.IntentResult{IsUserUpload: true}, nil
		},
	}
	return New(trk, ai, vault.New(writeFakeVaultScript(t), "not found"), be, Config{TrackerDomain: "example.atlassian.net"})
}

func TestOpenMovesToReviewWhenApprovalRequired(t *testing.T) {
	ticket := baseTicket()
	trk := newFakeTracker(ticket)
	trk.attachments["users.csv"] = []byte(csvContent)

	o := newTestOrchestrator(t, trk, backend.NewMockClient())

	result, err := o.ProcessTicket(context.Background(), ticket)
	if err != nil {
		t.Fatalf("ProcessTicket: %v", err)
	}
	if result.NextState != model.StatusReview {
		t.Fatalf("expected transition to Review, got %v (result=%+v)", result.NextState, result)
	}
	if len(trk.comments) != 1 {
		t.Fatalf("expected one marker comment, got %d", len(trk.comments))
	}
	if len(trk.uploaded) != 1 {
		t.Fatalf("expected the approval CSV to be uploaded, got %d files", len(trk.uploaded))
	}
}

func TestOpenTransitionsToInfoRequiredWhenNoTenant(t *testing.T) {
	ticket := baseTicket()
	ticket.Summary = "Bulk import, no tenant mentioned"
	ticket.Description = "please help"
	trk := newFakeTracker(ticket)

	o := newTestOrchestrator(t, trk, backend.NewMockClient())

	result, err := o.ProcessTicket(context.Background(), ticket)
	if err != nil {
		t.Fatalf("ProcessTicket: %v", err)
	}
	if result.NextState != model.StatusInfoRequired {
		t.Fatalf("expected Info Required, got %v", result.NextState)
	}
}

func TestOpenTransitionsToInfoRequiredWhenCredentialMissing(t *testing.T) {
	ticket := baseTicket()
	ticket.Summary = "Bulk import for tenant: ghost"
	trk := newFakeTracker(ticket)

	o := newTestOrchestrator(t, trk, backend.NewMockClient())

	result, err := o.ProcessTicket(context.Background(), ticket)
	if err != nil {
		t.Fatalf("ProcessTicket: %v", err)
	}
	if result.NextState != model.StatusInfoRequired {
		t.Fatalf("expected Info Required for missing credential, got %v", result.NextState)
	}
}

func TestReviewPendingWithoutApproval(t *testing.T) {
	ticket := baseTicket()
	trk := newFakeTracker(ticket)
	trk.attachments["users.csv"] = []byte(csvContent)
	o := newTestOrchestrator(t, trk, backend.NewMockClient())

	// First pass posts the marker and moves the ticket to Review.
	if _, err := o.ProcessTicket(context.Background(), ticket); err != nil {
		t.Fatalf("first ProcessTicket: %v", err)
	}
	if ticket.Status != model.StatusReview {
		t.Fatalf("expected ticket to be in Review after first pass, got %v", ticket.Status)
	}

	// Second pass: no approval comment posted yet.
	result, err := o.ProcessTicket(context.Background(), ticket)
	if err != nil {
		t.Fatalf("second ProcessTicket: %v", err)
	}
	if result.NextState != model.StatusReview {
		t.Fatalf("expected to remain in Review while pending, got %v", result.NextState)
	}
}

func TestReviewApprovedCreatesUsersAndTransitionsToDone(t *testing.T) {
	ticket := baseTicket()
	trk := newFakeTracker(ticket)
	trk.attachments["users.csv"] = []byte(csvContent)
	o := newTestOrchestrator(t, trk, backend.NewMockClient())

	if _, err := o.ProcessTicket(context.Background(), ticket); err != nil {
		t.Fatalf("first ProcessTicket: %v", err)
	}
	if ticket.Status != model.StatusReview {
		t.Fatalf("expected ticket to be in Review after first pass, got %v", ticket.Status)
	}

	ticket.Comments = append(ticket.Comments, model.Comment{
		ID:      "approval",
		Author:  model.CommentAuthor{ID: "human", DisplayName: "Alice"},
		Created: time.Now().Add(time.Minute),
		Body:    "approved",
	})

	result, err := o.ProcessTicket(context.Background(), ticket)
	if err != nil {
		t.Fatalf("ProcessTicket: %v", err)
	}
	if result.NextState != model.StatusDone {
		t.Fatalf("expected Done, got %v (result=%+v)", result.NextState, result)
	}
	if len(result.CreatedUsers) != 1 {
		t.Fatalf("expected one created user, got %v", result.CreatedUsers)
	}
}
