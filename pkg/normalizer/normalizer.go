// Package normalizer maps heterogeneous spreadsheet column headers onto the
// fixed canonical schema the rest of the pipeline works with (§4.3).
package normalizer

import (
	"context"
	"strings"
	"unicode"

	"useruploadagent/pkg/aiadapter"
)

// CanonicalFields is the closed set of fields the Validator requires input
// for (§4.3, §4.4). Order matches spec.md's glossary listing.
var CanonicalFields = []string{
	"email", "first name", "last name", "job title", "mobile number", "teams", "user role",
}

// RequiredFields is the subset whose absence makes a dataset schema-invalid
// (§4.3 "Required-headers check").
var RequiredFields = []string{"email", "first name", "last name", "teams", "user role"}

// synonyms maps normalized raw header text to its canonical field. Entries
// are drawn from spec.md's glossary example list plus the canonical names
// themselves (a header that already reads "email" maps to itself).
var synonyms = map[string]string{
	"email":        "email",
	"e mail":       "email",
	"e-mail":       "email",
	"mail":         "email",
	"email address": "email",

	"first name":  "first name",
	"firstname":   "first name",
	"given name":  "first name",
	"fname":       "first name",
	"forename":    "first name",

	"last name": "last name",
	"lastname":  "last name",
	"surname":   "last name",
	"lname":     "last name",
	"family name": "last name",

	"job title": "job title",
	"jobtitle":  "job title",
	"title":     "job title",
	"position":  "job title",
	"role title": "job title",

	"mobile number": "mobile number",
	"mobile":        "mobile number",
	"cell":          "mobile number",
	"cell number":   "mobile number",
	"phone":         "mobile number",
	"phone number":  "mobile number",
	"mobile phone":  "mobile number",

	"teams":      "teams",
	"team":       "teams",
	"group":      "teams",
	"groups":     "teams",
	"department": "teams",
	"dept":       "teams",

	"user role": "user role",
	"role":      "user role",
	"userrole":  "user role",
	"access level": "user role",
	"permission":   "user role",
}

// normalizeHeader implements §4.3 step 1: lowercase, collapse internal
// whitespace, strip non-alphanumeric except '-' and '_', trim.
func normalizeHeader(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	lastWasSpace := false
	for _, r := range lower {
		switch {
		case r == ' ' || unicode.IsSpace(r):
			if !lastWasSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastWasSpace = true
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
			lastWasSpace = false
		default:
			// dropped
		}
	}
	return strings.TrimSpace(b.String())
}

// Result is the outcome of mapping one dataset's raw headers (§4.3).
type Result struct {
	Mapping  map[string]string // raw header -> canonical field
	Unmapped []string          // raw headers with no mapping, in original order
	Missing  []string          // required canonical fields still unmapped
}

// SchemaInvalid reports whether any required canonical field is unmapped.
func (r Result) SchemaInvalid() bool { return len(r.Missing) > 0 }

// Normalize runs the full §4.3 algorithm: deterministic synonym matching,
// then an AI Adapter fallback for anything still unmapped. A nil ai skips
// step 4 entirely (deterministic matches only) — the caller still gets a
// correct Missing list and can decide how to handle SchemaInvalid.
func Normalize(ctx context.Context, ai aiadapter.Client, rawHeaders []string) Result {
	mapping := make(map[string]string, len(rawHeaders))
	canonicalSeen := make(map[string]bool, len(CanonicalFields))
	var unmapped []string

	for _, raw := range rawHeaders {
		norm := normalizeHeader(raw)
		canonical, ok := synonyms[norm]
		if !ok {
			unmapped = append(unmapped, raw)
			continue
		}
		if canonicalSeen[canonical] {
			// §4.3 step 3: keep the first raw header mapping to each canonical;
			// later duplicates are reported as unmapped.
			unmapped = append(unmapped, raw)
			continue
		}
		mapping[raw] = canonical
		canonicalSeen[canonical] = true
	}

	missingCanonical := missingFields(canonicalSeen)

	if len(unmapped) > 0 && len(missingCanonical) > 0 && ai != nil {
		if llmResult, err := ai.MapHeaders(ctx, unmapped, missingCanonical); err == nil {
			stillUnmapped := make([]string, 0, len(unmapped))
			for _, raw := range unmapped {
				canonical, ok := llmResult.Mapping[raw]
				if !ok || canonicalSeen[canonical] || !isCanonical(canonical) {
					stillUnmapped = append(stillUnmapped, raw)
					continue
				}
				mapping[raw] = canonical
				canonicalSeen[canonical] = true
			}
			unmapped = stillUnmapped
		}
	}

	return Result{
		Mapping:  mapping,
		Unmapped: unmapped,
		Missing:  missingFields(canonicalSeen),
	}
}

func isCanonical(field string) bool {
	for _, f := range CanonicalFields {
		if f == field {
			return true
		}
	}
	return false
}

func missingFields(seen map[string]bool) []string {
	var missing []string
	for _, f := range RequiredFields {
		if !seen[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// HasCanonicalHeader reports whether any cell in a header row normalizes to
// a recognized canonical synonym (§4.2 XLSX single-sheet fast path).
func HasCanonicalHeader(row []string) bool {
	for _, cell := range row {
		if _, ok := synonyms[normalizeHeader(cell)]; ok {
			return true
		}
	}
	return false
}
