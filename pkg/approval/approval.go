// Package approval implements the Approval Engine (§4.7): rendering and
// parsing the versioned marker comment, generating the approval CSV
// attachment, and evaluating the approval state machine against a ticket's
// comment history.
package approval

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"useruploadagent/pkg/model"
)

// MarkerPrefix is the fixed v2 marker envelope header. Older marker
// versions are never recognized (an explicit design decision: see
// SPEC_FULL.md's Open Question decisions).
const MarkerPrefix = "[BOT:user-upload:approval-request:v2]"

// Marker is the parsed content of one marker comment body.
type Marker struct {
	Tenant      string
	UserCount   int
	TeamCount   int
	Attachments []model.Fingerprint
	SplitNotice string
}

// Render builds a marker comment body per the §4.7 schema.
func Render(ctx model.ApprovalContext) string {
	var b strings.Builder
	b.WriteString(MarkerPrefix)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Tenant: %s\n", ctx.Tenant)
	fmt.Fprintf(&b, "Users to create: %d\n", ctx.UserCount)
	fmt.Fprintf(&b, "Teams involved: %d\n", ctx.TeamCount)
	b.WriteString("Attachments:\n")
	for _, fp := range ctx.Attachments {
		fmt.Fprintf(&b, "  %s: %s size: %d\n", fp.Filename, fp.SHA256Base64, fp.Size)
	}
	if ctx.SplitNotice != "" {
		b.WriteString(ctx.SplitNotice)
		b.WriteString("\n")
	}
	return b.String()
}

// Parse extracts a Marker from a comment body, or false if the body doesn't
// begin with the v2 prefix.
func Parse(body string) (Marker, bool) {
	if !strings.HasPrefix(body, MarkerPrefix) {
		return Marker{}, false
	}
	var m Marker
	lines := strings.Split(body, "\n")
	inAttachments := false
	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Tenant:"):
			m.Tenant = strings.TrimSpace(strings.TrimPrefix(trimmed, "Tenant:"))
			inAttachments = false
		case strings.HasPrefix(trimmed, "Users to create:"):
			m.UserCount, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(trimmed, "Users to create:")))
			inAttachments = false
		case strings.HasPrefix(trimmed, "Teams involved:"):
			m.TeamCount, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(trimmed, "Teams involved:")))
			inAttachments = false
		case trimmed == "Attachments:":
			inAttachments = true
		case inAttachments && strings.Contains(trimmed, ": ") && strings.Contains(trimmed, " size: "):
			fp, ok := parseAttachmentLine(trimmed)
			if ok {
				m.Attachments = append(m.Attachments, fp)
			}
		case trimmed == "":
			// ignore blank lines between sections
		default:
			// anything else (e.g. the team-split notice) ends the attachments block
			inAttachments = false
		}
	}
	return m, true
}

func parseAttachmentLine(line string) (model.Fingerprint, bool) {
	sizeIdx := strings.LastIndex(line, " size: ")
	if sizeIdx < 0 {
		return model.Fingerprint{}, false
	}
	head := line[:sizeIdx]
	sizeStr := strings.TrimSpace(line[sizeIdx+len(" size: "):])
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return model.Fingerprint{}, false
	}
	colonIdx := strings.Index(head, ": ")
	if colonIdx < 0 {
		return model.Fingerprint{}, false
	}
	filename := strings.TrimSpace(head[:colonIdx])
	hash := strings.TrimSpace(head[colonIdx+2:])
	return model.Fingerprint{Filename: filename, SHA256Base64: hash, Size: size}, true
}

// FindActiveMarker returns the chronologically latest comment whose body
// begins with the v2 prefix (§4.7). comments must already be ordered by
// Created, ties broken by ID ascending (model.Comment's documented
// invariant), same-second ties are resolved by that ordering (SPEC_FULL.md
// Open Question decision).
func FindActiveMarker(comments []model.Comment) (*model.Comment, Marker, bool) {
	var active *model.Comment
	var marker Marker
	for i := range comments {
		c := &comments[i]
		if parsed, ok := Parse(c.Body); ok {
			active = c
			marker = parsed
		}
	}
	if active == nil {
		return nil, Marker{}, false
	}
	return active, marker, true
}

// Evaluate implements the §4.7 approval state machine. currentFingerprints
// is the set of fingerprints for the attachments presently on the ticket.
func Evaluate(comments []model.Comment, currentFingerprints []model.Fingerprint) (model.ApprovalVerdict, *model.Comment, Marker) {
	markerComment, marker, ok := FindActiveMarker(comments)
	if !ok {
		return model.VerdictNoRequest, nil, Marker{}
	}

	markerIndex := -1
	for i := range comments {
		if comments[i].ID == markerComment.ID {
			markerIndex = i
		}
	}

	var approvalComment *model.Comment
	for i := markerIndex + 1; i < len(comments); i++ {
		c := &comments[i]
		if c.Author.ID == markerComment.Author.ID {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(c.Body), "approved") {
			approvalComment = c
			break
		}
	}

	if approvalComment == nil {
		return model.VerdictPending, markerComment, marker
	}

	if fingerprintsMatch(marker.Attachments, currentFingerprints) {
		return model.VerdictApproved, markerComment, marker
	}
	return model.VerdictInvalidated, markerComment, marker
}

func fingerprintsMatch(pinned, current []model.Fingerprint) bool {
	if len(pinned) != len(current) {
		return false
	}
	byName := make(map[string]model.Fingerprint, len(pinned))
	for _, fp := range pinned {
		byName[fp.Filename] = fp
	}
	for _, fp := range current {
		want, ok := byName[fp.Filename]
		if !ok || want.SHA256Base64 != fp.SHA256Base64 || want.Size != fp.Size {
			return false
		}
	}
	return true
}

// GenerateCSVFilename returns a collision-resistant attachment filename for
// the generated approval CSV (SPEC_FULL.md DOMAIN STACK: google/uuid).
func GenerateCSVFilename() string {
	return fmt.Sprintf("users-for-approval-%s.csv", uuid.New().String())
}

// GenerateCSV renders the validated/split dataset as the CSV attached
// alongside the marker comment (§4.7).
func GenerateCSV(rows []model.UserRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"email", "first_name", "last_name", "job_title", "mobile_number", "teams", "user_role"}); err != nil {
		return nil, fmt.Errorf("approval: writing csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Email,
			r.FirstName,
			r.LastName,
			r.JobTitle,
			r.MobileNumber,
			strings.Join(r.Teams, "|"),
			string(r.UserRole),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("approval: writing csv row for %q: %w", r.Email, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("approval: flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildContext assembles the marker payload from a completed dataset and
// its attachments' fingerprints (§3 ApprovalContext).
func BuildContext(ticketKey, tenant string, rows []model.UserRow, fingerprints []model.Fingerprint, splitNotice string, now time.Time) model.ApprovalContext {
	teams := make(map[string]bool)
	for _, r := range rows {
		for _, t := range r.Teams {
			teams[t] = true
		}
	}
	return model.ApprovalContext{
		TicketKey:   ticketKey,
		Tenant:      tenant,
		UserCount:   len(rows),
		TeamCount:   len(teams),
		Attachments: fingerprints,
		GeneratedAt: now,
		SplitNotice: splitNotice,
	}
}
