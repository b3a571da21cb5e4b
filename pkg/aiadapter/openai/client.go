// Package openai implements aiadapter.Client as the secondary AI Adapter
// provider (§4.10, config-selected), using the Chat Completions API of the
// official github.com/openai/openai-go SDK. The Client wiring and
// constructor shape mirror the teacher's
// pkg/agent/internal/llmimpl/openaiofficial package; Chat Completions is
// used here instead of the Responses API because a single JSON-only text
// reply is all four tasks need.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"useruploadagent/pkg/aiadapter"
)

const defaultModel = openai.ChatModelGPT4o

// Client issues the four advisory tasks against OpenAI Chat Completions.
type Client struct {
	client openai.Client
	model  string
}

// New builds a Client from an API key. An empty model falls back to the
// package default.
func New(apiKey, model string) *Client {
	return newWithOptions(apiKey, model)
}

func newWithOptions(apiKey, model string, extra ...option.RequestOption) *Client {
	opts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, extra...)
	c := openai.NewClient(opts...)
	m := defaultModel
	if model != "" {
		m = model
	}
	return &Client{client: c, model: m}
}

func (c *Client) complete(ctx context.Context, systemPrompt, userMsg string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMsg),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return "", fmt.Errorf("openai: no text content in response")
	}
	return text, nil
}

func decodeJSON(text string, dst any) error {
	if err := json.Unmarshal(extractJSON(text), dst); err != nil {
		return fmt.Errorf("openai: response did not match expected JSON shape: %w", err)
	}
	return nil
}

func extractJSON(text string) []byte {
	start := -1
	depth := 0
	for i, r := range text {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				return []byte(text[start : i+1])
			}
		}
	}
	return []byte(text)
}

const intentSystemPrompt = `You classify whether a support ticket is a user-upload request.
Respond with exactly one JSON object matching this shape and nothing else:
{"is_user_upload": true|false}`

func (c *Client) ClassifyIntent(ctx context.Context, summary, description string) (aiadapter.IntentResult, error) {
	msg := fmt.Sprintf("Summary: %s\n\nDescription:\n%s", summary, description)
	text, err := c.complete(ctx, intentSystemPrompt, msg)
	if err != nil {
		return aiadapter.IntentResult{}, err
	}
	var out aiadapter.IntentResult
	if err := decodeJSON(text, &out); err != nil {
		return aiadapter.IntentResult{}, err
	}
	return out, nil
}

const headerMappingSystemPrompt = `You map spreadsheet column headers onto a fixed set of canonical fields:
first_name, last_name, email, job_title, mobile_number, teams, user_role.
Respond with exactly one JSON object matching this shape and nothing else:
{"mapping": {"raw header text": "canonical_field", ...}, "unmapped": ["raw header text", ...]}
Only include a raw header in "mapping" if you are confident of its canonical field.
Any header you are not confident about, or any canonical field not covered above, goes in "unmapped".`

func (c *Client) MapHeaders(ctx context.Context, unmapped []string, missingCanonical []string) (aiadapter.HeaderMappingResult, error) {
	msg := fmt.Sprintf("Unmapped headers: %v\nStill-missing canonical fields: %v", unmapped, missingCanonical)
	text, err := c.complete(ctx, headerMappingSystemPrompt, msg)
	if err != nil {
		return aiadapter.HeaderMappingResult{}, err
	}
	var out aiadapter.HeaderMappingResult
	if err := decodeJSON(text, &out); err != nil {
		return aiadapter.HeaderMappingResult{}, err
	}
	return out, nil
}

const sheetDetectionSystemPrompt = `You are given previews (up to the first 10 rows) of one or more spreadsheet
sheets. Identify which sheet holds the user-upload data table, which row holds
the headers, and which row the data starts on.
Respond with exactly one JSON object matching this shape and nothing else:
{"sheet_name": "...", "header_row": 0, "data_start_row": 1, "confidence": "high|medium|low", "reasoning": "..."}
Row numbers are zero-based offsets into the preview you were given.`

func (c *Client) DetectSheet(ctx context.Context, previews []aiadapter.SheetPreview) (aiadapter.SheetDetectionResult, error) {
	b, err := json.Marshal(previews)
	if err != nil {
		return aiadapter.SheetDetectionResult{}, fmt.Errorf("openai: encoding sheet previews: %w", err)
	}
	text, err := c.complete(ctx, sheetDetectionSystemPrompt, string(b))
	if err != nil {
		return aiadapter.SheetDetectionResult{}, err
	}
	var out aiadapter.SheetDetectionResult
	if err := decodeJSON(text, &out); err != nil {
		return aiadapter.SheetDetectionResult{}, err
	}
	return out, nil
}

const errorSummarySystemPrompt = `You summarize a batch of row-validation errors for a human reader.
Respond with exactly one JSON object matching this shape and nothing else:
{"summary": "one or two sentences", "bullet_points": ["...", "..."]}`

func (c *Client) SummarizeErrors(ctx context.Context, histogram map[string]int, sample []string) (aiadapter.ErrorSummaryResult, error) {
	msg := fmt.Sprintf("Error histogram: %v\nSample messages: %v", histogram, sample)
	text, err := c.complete(ctx, errorSummarySystemPrompt, msg)
	if err != nil {
		return aiadapter.ErrorSummaryResult{}, err
	}
	var out aiadapter.ErrorSummaryResult
	if err := decodeJSON(text, &out); err != nil {
		return aiadapter.ErrorSummaryResult{}, err
	}
	return out, nil
}
