package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// mockAnthropicServer emulates the Messages endpoint, returning text whose
// content is controlled by the caller.
func mockAnthropicServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		resp := map[string]any{
			"id":    "msg_mock",
			"type":  "message",
			"role":  "assistant",
			"model": "claude-mock",
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
			"stop_reason": "end_turn",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, text string) *Client {
	t.Helper()
	srv := mockAnthropicServer(t, text)
	return newWithOptions("test-key", "", option.WithBaseURL(srv.URL))
}

func TestClassifyIntentParsesJSON(t *testing.T) {
	c := newTestClient(t, `{"is_user_upload": true}`)
	result, err := c.ClassifyIntent(context.Background(), "Onboard users", "please create these users")
	if err != nil {
		t.Fatalf("ClassifyIntent: %v", err)
	}
	if !result.IsUserUpload {
		t.Errorf("expected IsUserUpload=true")
	}
}

func TestClassifyIntentRejectsMalformedJSON(t *testing.T) {
	c := newTestClient(t, "not json at all")
	if _, err := c.ClassifyIntent(context.Background(), "s", "d"); err == nil {
		t.Fatal("expected error for malformed JSON response")
	}
}

func TestDecodeJSONToleratesSurroundingProse(t *testing.T) {
	c := newTestClient(t, "Sure, here you go:\n```json\n{\"is_user_upload\": false}\n```\nHope that helps!")
	result, err := c.ClassifyIntent(context.Background(), "s", "d")
	if err != nil {
		t.Fatalf("ClassifyIntent: %v", err)
	}
	if result.IsUserUpload {
		t.Errorf("expected IsUserUpload=false")
	}
}

func TestMapHeadersParsesJSON(t *testing.T) {
	c := newTestClient(t, `{"mapping": {"E-Mail": "email"}, "unmapped": ["Notes"]}`)
	result, err := c.MapHeaders(context.Background(), []string{"E-Mail", "Notes"}, []string{"email"})
	if err != nil {
		t.Fatalf("MapHeaders: %v", err)
	}
	if result.Mapping["E-Mail"] != "email" {
		t.Errorf("expected E-Mail mapped to email, got %+v", result.Mapping)
	}
	if len(result.Unmapped) != 1 || result.Unmapped[0] != "Notes" {
		t.Errorf("expected Notes unmapped, got %v", result.Unmapped)
	}
}
