// Package testkit provides testing utilities for exercising the ticket
// pipeline and mock identity-backend services.
package testkit

import (
	"strings"
	"testing"

	"useruploadagent/pkg/model"
)

// AssertTicketStatus verifies the ticket's current status.
func AssertTicketStatus(t *testing.T, ticket *model.Ticket, expected model.TicketStatus) {
	t.Helper()
	if ticket.Status != expected {
		t.Errorf("expected ticket status %s, got %s", expected, ticket.Status)
	}
}

// AssertResultStatus verifies a ProcessingResult's status.
func AssertResultStatus(t *testing.T, result model.ProcessingResult, expected model.ResultStatus) {
	t.Helper()
	if result.Status != expected {
		t.Errorf("expected result status %s, got %s (message=%q)", expected, result.Status, result.Message)
	}
}

// AssertNextState verifies a ProcessingResult's NextState.
func AssertNextState(t *testing.T, result model.ProcessingResult, expected model.TicketStatus) {
	t.Helper()
	if result.NextState != expected {
		t.Errorf("expected next state %s, got %s", expected, result.NextState)
	}
}

// AssertNoFailures verifies a ProcessingResult recorded zero creation failures.
func AssertNoFailures(t *testing.T, result model.ProcessingResult) {
	t.Helper()
	if len(result.Failures) != 0 {
		t.Errorf("expected no failures, got %+v", result.Failures)
	}
}

// AssertLatestCommentContains verifies the ticket's most recent comment
// contains the given substring.
func AssertLatestCommentContains(t *testing.T, ticket *model.Ticket, substr string) {
	t.Helper()
	if len(ticket.Comments) == 0 {
		t.Fatalf("expected at least one comment, ticket has none")
	}
	latest := ticket.Comments[len(ticket.Comments)-1]
	if !strings.Contains(latest.Body, substr) {
		t.Errorf("expected latest comment to contain %q, got %q", substr, latest.Body)
	}
}

// AssertCreatedUsers verifies the exact set of created user emails,
// ignoring order.
func AssertCreatedUsers(t *testing.T, result model.ProcessingResult, expected ...string) {
	t.Helper()
	if len(result.CreatedUsers) != len(expected) {
		t.Fatalf("expected %d created users, got %v", len(expected), result.CreatedUsers)
	}
	want := make(map[string]bool, len(expected))
	for _, e := range expected {
		want[e] = true
	}
	for _, got := range result.CreatedUsers {
		if !want[got] {
			t.Errorf("unexpected created user %q", got)
		}
	}
}
