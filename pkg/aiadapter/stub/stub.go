// Package stub is a deterministic, in-process aiadapter.Client used by other
// packages' tests so they don't depend on a live model. It never returns an
// error; callers still exercise their own deterministic-fallback paths by
// configuring the stub to produce results that won't cover every field.
package stub

import (
	"context"

	"useruploadagent/pkg/aiadapter"
)

// Client is a canned aiadapter.Client. Each field is a function the test can
// override; the zero value behaves like a model that is confident of
// nothing, forcing callers onto their deterministic fallback.
type Client struct {
	ClassifyIntentFunc  func(ctx context.Context, summary, description string) (aiadapter.IntentResult, error)
	MapHeadersFunc      func(ctx context.Context, unmapped, missingCanonical []string) (aiadapter.HeaderMappingResult, error)
	DetectSheetFunc     func(ctx context.Context, previews []aiadapter.SheetPreview) (aiadapter.SheetDetectionResult, error)
	SummarizeErrorsFunc func(ctx context.Context, histogram map[string]int, sample []string) (aiadapter.ErrorSummaryResult, error)
}

var _ aiadapter.Client = (*Client)(nil)

func (c *Client) ClassifyIntent(ctx context.Context, summary, description string) (aiadapter.IntentResult, error) {
	if c.ClassifyIntentFunc != nil {
		return c.ClassifyIntentFunc(ctx, summary, description)
	}
	return aiadapter.IntentResult{IsUserUpload: false}, nil
}

func (c *Client) MapHeaders(ctx context.Context, unmapped, missingCanonical []string) (aiadapter.HeaderMappingResult, error) {
	if c.MapHeadersFunc != nil {
		return c.MapHeadersFunc(ctx, unmapped, missingCanonical)
	}
	return aiadapter.HeaderMappingResult{Unmapped: unmapped}, nil
}

func (c *Client) DetectSheet(ctx context.Context, previews []aiadapter.SheetPreview) (aiadapter.SheetDetectionResult, error) {
	if c.DetectSheetFunc != nil {
		return c.DetectSheetFunc(ctx, previews)
	}
	return aiadapter.SheetDetectionResult{Confidence: aiadapter.ConfidenceLow}, nil
}

func (c *Client) SummarizeErrors(ctx context.Context, histogram map[string]int, sample []string) (aiadapter.ErrorSummaryResult, error) {
	if c.SummarizeErrorsFunc != nil {
		return c.SummarizeErrorsFunc(ctx, histogram, sample)
	}
	return aiadapter.ErrorSummaryResult{Summary: "validation errors occurred"}, nil
}
