package normalizer

import (
	"context"
	"testing"

	"useruploadagent/pkg/aiadapter"
)

func TestNormalizeDeterministicSynonyms(t *testing.T) {
	headers := []string{"E-Mail", "Given Name", "Surname", "Dept", "Role", "Mobile"}
	result := Normalize(context.Background(), nil, headers)

	want := map[string]string{
		"E-Mail":     "email",
		"Given Name": "first name",
		"Surname":    "last name",
		"Dept":       "teams",
		"Role":       "user role",
		"Mobile":     "mobile number",
	}
	for raw, canonical := range want {
		if got := result.Mapping[raw]; got != canonical {
			t.Errorf("header %q: got %q, want %q", raw, got, canonical)
		}
	}
	if result.SchemaInvalid() {
		t.Errorf("expected all required fields present, missing=%v", result.Missing)
	}
}

func TestNormalizeDedupesByCanonicalKeepingFirst(t *testing.T) {
	headers := []string{"Email", "E-Mail", "first name", "last name", "teams", "role"}
	result := Normalize(context.Background(), nil, headers)
	if result.Mapping["Email"] != "email" {
		t.Errorf("expected first Email header to win")
	}
	if _, ok := result.Mapping["E-Mail"]; ok {
		t.Errorf("expected second email-synonym header to stay unmapped, got mapped")
	}
	found := false
	for _, u := range result.Unmapped {
		if u == "E-Mail" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected duplicate header in Unmapped, got %v", result.Unmapped)
	}
}

func TestNormalizeMissingRequiredFieldsSchemaInvalid(t *testing.T) {
	headers := []string{"email", "first name"}
	result := Normalize(context.Background(), nil, headers)
	if !result.SchemaInvalid() {
		t.Fatal("expected schema-invalid when last name/teams/user role are missing")
	}
}

func TestNormalizeUsesAIAdapterFallback(t *testing.T) {
	headers := []string{"email", "first name", "last name", "Crew", "Access"}
	ai := &fakeAI{
		mapping: map[string]string{"Crew": "teams", "Access": "user role"},
	}
	result := Normalize(context.Background(), ai, headers)
	if result.SchemaInvalid() {
		t.Fatalf("expected AI fallback to resolve remaining fields, missing=%v", result.Missing)
	}
	if result.Mapping["Crew"] != "teams" {
		t.Errorf("expected Crew mapped to teams via AI fallback")
	}
}

func TestNormalizeIgnoresAIAdapterErrorLeavesUnmapped(t *testing.T) {
	headers := []string{"email", "first name", "last name", "Crew", "Access"}
	ai := &fakeAI{err: errBoom}
	result := Normalize(context.Background(), ai, headers)
	if !result.SchemaInvalid() {
		t.Fatal("expected schema-invalid when AI adapter errors and leaves required fields unmapped")
	}
}

func TestHasCanonicalHeader(t *testing.T) {
	if !HasCanonicalHeader([]string{"Email", "Notes"}) {
		t.Error("expected Email to be recognized as a canonical synonym")
	}
	if HasCanonicalHeader([]string{"Foo", "Bar"}) {
		t.Error("expected no canonical synonym to be found")
	}
}

type fakeAI struct {
	mapping map[string]string
	err     error
}

var errBoom = context.DeadlineExceeded

func (f *fakeAI) ClassifyIntent(context.Context, string, string) (aiadapter.IntentResult, error) {
	return aiadapter.IntentResult{}, nil
}

func (f *fakeAI) MapHeaders(_ context.Context, unmapped, _ []string) (aiadapter.HeaderMappingResult, error) {
	if f.err != nil {
		return aiadapter.HeaderMappingResult{}, f.err
	}
	var stillUnmapped []string
	for _, raw := range unmapped {
		if _, ok := f.mapping[raw]; !ok {
			stillUnmapped = append(stillUnmapped, raw)
		}
	}
	return aiadapter.HeaderMappingResult{Mapping: f.mapping, Unmapped: stillUnmapped}, nil
}

func (f *fakeAI) DetectSheet(context.Context, []aiadapter.SheetPreview) (aiadapter.SheetDetectionResult, error) {
	return aiadapter.SheetDetectionResult{}, nil
}

func (f *fakeAI) SummarizeErrors(context.Context, map[string]int, []string) (aiadapter.ErrorSummaryResult, error) {
	return aiadapter.ErrorSummaryResult{}, nil
}
