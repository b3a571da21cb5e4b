package approval

import (
	"strings"
	"testing"
	"time"

	"useruploadagent/pkg/model"
)

func TestRenderParseRoundTrip(t *testing.T) {
	ctx := model.ApprovalContext{
		Tenant:    "acme",
		UserCount: 3,
		TeamCount: 2,
		Attachments: []model.Fingerprint{
			{Filename: "users.csv", SHA256Base64: "abc123==", Size: 42},
		},
		SplitNotice: "Team cells used whitespace as the team separator; rewritten into separate teams.",
	}
	body := Render(ctx)
	if !strings.HasPrefix(body, MarkerPrefix) {
		t.Fatalf("expected body to start with marker prefix, got %q", body)
	}

	marker, ok := Parse(body)
	if !ok {
		t.Fatal("expected Parse to recognize rendered marker")
	}
	if marker.Tenant != "acme" || marker.UserCount != 3 || marker.TeamCount != 2 {
		t.Errorf("unexpected parsed fields: %+v", marker)
	}
	if len(marker.Attachments) != 1 || marker.Attachments[0].Filename != "users.csv" || marker.Attachments[0].Size != 42 {
		t.Errorf("unexpected parsed attachments: %+v", marker.Attachments)
	}
}

func TestParseRejectsNonMarkerBody(t *testing.T) {
	if _, ok := Parse("just a regular comment"); ok {
		t.Fatal("expected non-marker body to be rejected")
	}
}

func botAuthor() model.CommentAuthor { return model.CommentAuthor{ID: "bot-1", DisplayName: "Agent"} }
func humanAuthor() model.CommentAuthor { return model.CommentAuthor{ID: "user-1", DisplayName: "Alice"} }

func TestEvaluateNoRequestWhenNoMarker(t *testing.T) {
	comments := []model.Comment{{ID: "1", Author: humanAuthor(), Body: "hello"}}
	verdict, _, _ := Evaluate(comments, nil)
	if verdict != model.VerdictNoRequest {
		t.Errorf("expected no-request, got %v", verdict)
	}
}

func TestEvaluatePendingWhenNoApprovalYet(t *testing.T) {
	now := time.Now()
	markerBody := Render(model.ApprovalContext{Tenant: "acme", UserCount: 1, TeamCount: 1, Attachments: []model.Fingerprint{
		{Filename: "users.csv", SHA256Base64: "h1", Size: 10},
	}})
	comments := []model.Comment{
		{ID: "1", Author: botAuthor(), Created: now, Body: markerBody},
	}
	verdict, marker, _ := Evaluate(comments, []model.Fingerprint{{Filename: "users.csv", SHA256Base64: "h1", Size: 10}})
	if verdict != model.VerdictPending {
		t.Errorf("expected pending, got %v", verdict)
	}
	if marker == nil {
		t.Fatal("expected non-nil marker comment")
	}
}

func TestEvaluateApprovedWhenFingerprintsMatch(t *testing.T) {
	now := time.Now()
	markerBody := Render(model.ApprovalContext{Tenant: "acme", UserCount: 1, TeamCount: 1, Attachments: []model.Fingerprint{
		{Filename: "users.csv", SHA256Base64: "h1", Size: 10},
	}})
	comments := []model.Comment{
		{ID: "1", Author: botAuthor(), Created: now, Body: markerBody},
		{ID: "2", Author: humanAuthor(), Created: now.Add(time.Minute), Body: "Approved"},
	}
	verdict, _, _ := Evaluate(comments, []model.Fingerprint{{Filename: "users.csv", SHA256Base64: "h1", Size: 10}})
	if verdict != model.VerdictApproved {
		t.Errorf("expected approved, got %v", verdict)
	}
}

func TestEvaluateInvalidatedWhenFingerprintsDiverge(t *testing.T) {
	now := time.Now()
	markerBody := Render(model.ApprovalContext{Tenant: "acme", UserCount: 1, TeamCount: 1, Attachments: []model.Fingerprint{
		{Filename: "users.csv", SHA256Base64: "h1", Size: 10},
	}})
	comments := []model.Comment{
		{ID: "1", Author: botAuthor(), Created: now, Body: markerBody},
		{ID: "2", Author: humanAuthor(), Created: now.Add(time.Minute), Body: "approved"},
	}
	verdict, _, _ := Evaluate(comments, []model.Fingerprint{{Filename: "users.csv", SHA256Base64: "CHANGED", Size: 10}})
	if verdict != model.VerdictInvalidated {
		t.Errorf("expected invalidated, got %v", verdict)
	}
}

func TestEvaluateIgnoresApprovalFromMarkerAuthor(t *testing.T) {
	now := time.Now()
	markerBody := Render(model.ApprovalContext{Tenant: "acme", UserCount: 1, TeamCount: 1})
	comments := []model.Comment{
		{ID: "1", Author: botAuthor(), Created: now, Body: markerBody},
		{ID: "2", Author: botAuthor(), Created: now.Add(time.Minute), Body: "approved"},
	}
	verdict, _, _ := Evaluate(comments, nil)
	if verdict != model.VerdictPending {
		t.Errorf("expected pending since approval must come from a different author, got %v", verdict)
	}
}

func TestEvaluateLatestMarkerWins(t *testing.T) {
	now := time.Now()
	firstMarker := Render(model.ApprovalContext{Tenant: "acme", UserCount: 1, TeamCount: 1, Attachments: []model.Fingerprint{
		{Filename: "users.csv", SHA256Base64: "old", Size: 10},
	}})
	secondMarker := Render(model.ApprovalContext{Tenant: "acme", UserCount: 2, TeamCount: 1, Attachments: []model.Fingerprint{
		{Filename: "users.csv", SHA256Base64: "new", Size: 20},
	}})
	comments := []model.Comment{
		{ID: "1", Author: botAuthor(), Created: now, Body: firstMarker},
		{ID: "2", Author: humanAuthor(), Created: now.Add(time.Minute), Body: "approved"},
		{ID: "3", Author: botAuthor(), Created: now.Add(2 * time.Minute), Body: secondMarker},
	}
	verdict, markerComment, marker := Evaluate(comments, []model.Fingerprint{{Filename: "users.csv", SHA256Base64: "new", Size: 20}})
	if markerComment.ID != "3" {
		t.Fatalf("expected latest marker (id 3) to be active, got %s", markerComment.ID)
	}
	if marker.UserCount != 2 {
		t.Errorf("expected second marker's fields, got %+v", marker)
	}
	// The old approval (id 2) predates the new marker, so it doesn't count.
	if verdict != model.VerdictPending {
		t.Errorf("expected pending since no approval follows the latest marker, got %v", verdict)
	}
}

func TestGenerateCSV(t *testing.T) {
	rows := []model.UserRow{
		{Email: "a@x.io", FirstName: "Ann", LastName: "Lee", Teams: []string{"Eng", "Sales"}, UserRole: model.RoleManager},
	}
	csvBytes, err := GenerateCSV(rows)
	if err != nil {
		t.Fatalf("GenerateCSV: %v", err)
	}
	text := string(csvBytes)
	if !strings.Contains(text, "a@x.io") || !strings.Contains(text, "Eng|Sales") {
		t.Errorf("unexpected csv content: %q", text)
	}
}

func TestGenerateCSVFilenameIsUnique(t *testing.T) {
	a := GenerateCSVFilename()
	b := GenerateCSVFilename()
	if a == b {
		t.Error("expected distinct filenames across calls")
	}
	if !strings.HasPrefix(a, "users-for-approval-") || !strings.HasSuffix(a, ".csv") {
		t.Errorf("unexpected filename shape: %q", a)
	}
}
