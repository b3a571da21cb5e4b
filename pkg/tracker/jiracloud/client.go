// Package jiracloud implements tracker.Client against a JIRA-Cloud-shaped
// REST v3 API: basic auth with email+token, issue search/fetch, comments as
// Atlassian Document Format, transitions, and multipart attachment upload.
//
// Request plumbing (doRequest, status-code handling, JSON decoding) is
// modeled directly on the teacher's pkg/forge/gitea.Client — the pack's
// closest analogue to an HTTP REST client with bearer-style auth and typed
// response structs — generalized from PR operations to issue/comment/
// transition operations.
package jiracloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"useruploadagent/pkg/agenterr"
	"useruploadagent/pkg/logx"
	"useruploadagent/pkg/model"
)

// Client implements tracker.Client against a JIRA Cloud REST v3 API.
type Client struct {
	baseURL  string
	email    string
	apiToken string
	logger   *logx.Logger
	http     *http.Client
}

// Config carries the connection details needed to construct a Client (§6).
type Config struct {
	Domain        string // e.g. "example.atlassian.net"
	Email         string
	APIToken      string
	ConnectTimeout time.Duration // not read by New; no separate connect timeout is applied
	ReadTimeout    time.Duration // whole-request timeout of the HTTP client; default 120s (§5)

	// BaseURL overrides the derived "https://<Domain>" root, for pointing
	// the client at an httptest mock server in tests.
	BaseURL string
}

// New creates a JIRA Cloud client from the given connection details.
func New(cfg Config) *Client {
	timeout := cfg.ReadTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://" + strings.TrimSuffix(cfg.Domain, "/")
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		logger:   logx.New("tracker"),
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) apiURL(path string) string {
	return fmt.Sprintf("%s/rest/api/3%s", c.baseURL, path)
}

func (c *Client) authHeader() string {
	raw := c.email + ":" + c.apiToken
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL(path), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("%s %s", method, path)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, agenterr.NewTrackerTransient(err)
	}
	return resp, nil
}

// classifyStatus turns an unexpected HTTP status into the right tagged error
// (§7: transient vs permanent; 429 is transient, other 4xx permanent).
func classifyStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return agenterr.NewTrackerTransient(fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}
	return agenterr.NewTrackerPermanent(fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
}

// --- wire types -------------------------------------------------------------

type searchResponse struct {
	Issues []issueResponse `json:"issues"`
}

type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string        `json:"summary"`
		Description adfDoc        `json:"description"`
		Status      statusField   `json:"status"`
		Attachment  []attachment  `json:"attachment"`
		Comment     commentsField `json:"comment"`
	} `json:"fields"`
}

type statusField struct {
	Name string `json:"name"`
}

type attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Content  string `json:"content"` // download URL
}

type commentsField struct {
	Comments []commentWire `json:"comments"`
}

type commentWire struct {
	ID      string  `json:"id"`
	Author  author  `json:"author"`
	Created string  `json:"created"`
	Body    adfDoc  `json:"body"`
}

type author struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

// adfDoc is a minimal Atlassian Document Format node tree. Only text
// extraction is needed (§6: "extraction collapses to concatenated text").
type adfDoc struct {
	Content []adfNode `json:"content"`
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

// flatten concatenates all text leaves of an ADF document, in document order,
// separating block-level nodes with newlines.
func (d adfDoc) flatten() string {
	var sb strings.Builder
	for _, n := range d.Content {
		n.flattenInto(&sb)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (n adfNode) flattenInto(sb *strings.Builder) {
	if n.Text != "" {
		sb.WriteString(n.Text)
	}
	for _, c := range n.Content {
		c.flattenInto(sb)
	}
}

// plainTextADF wraps a plain string in the minimal ADF envelope required to
// post a comment body.
func plainTextADF(text string) map[string]any {
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []map[string]any{
			{
				"type": "paragraph",
				"content": []map[string]any{
					{"type": "text", "text": text},
				},
			},
		},
	}
}

func toStatus(name string) model.TicketStatus {
	return model.TicketStatus(name)
}

func toTicket(ir issueResponse) model.Ticket {
	t := model.Ticket{
		Key:         ir.Key,
		Summary:     ir.Fields.Summary,
		Description: ir.Fields.Description.flatten(),
		Status:      toStatus(ir.Fields.Status.Name),
	}
	for _, a := range ir.Fields.Attachment {
		t.Attachments = append(t.Attachments, model.Attachment{
			Filename:    a.Filename,
			MIMEType:    a.MimeType,
			Size:        a.Size,
			DownloadURL: a.Content,
		})
	}
	for _, cm := range ir.Fields.Comment.Comments {
		created, _ := time.Parse(time.RFC3339, cm.Created)
		t.Comments = append(t.Comments, model.Comment{
			ID:      cm.ID,
			Author:  model.CommentAuthor{ID: cm.Author.AccountID, DisplayName: cm.Author.DisplayName},
			Created: created,
			Body:    cm.Body.flatten(),
		})
	}
	return t
}

// --- Client methods ----------------------------------------------------------

const issueFields = "summary,description,status,attachment,comment"

// Search returns tickets matching a JQL query (§6: "search by query language").
func (c *Client) Search(ctx context.Context, query string) ([]model.Ticket, error) {
	path := fmt.Sprintf("/search?jql=%s&fields=%s", url.QueryEscape(query), issueFields)
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp, body)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, agenterr.NewTrackerPermanent(fmt.Errorf("decode search response: %w", err))
	}

	tickets := make([]model.Ticket, 0, len(sr.Issues))
	for _, ir := range sr.Issues {
		tickets = append(tickets, toTicket(ir))
	}
	return tickets, nil
}

// GetTicket fetches one issue with the fields the orchestrator needs.
func (c *Client) GetTicket(ctx context.Context, key string) (*model.Ticket, error) {
	path := fmt.Sprintf("/issue/%s?fields=%s", key, issueFields)
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil, agenterr.NewTrackerPermanent(fmt.Errorf("ticket %s not found", key))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp, body)
	}

	var ir issueResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		return nil, agenterr.NewTrackerPermanent(fmt.Errorf("decode issue response: %w", err))
	}
	t := toTicket(ir)
	return &t, nil
}

// DownloadAttachment fetches the raw bytes of an attachment from its download URL.
func (c *Client) DownloadAttachment(ctx context.Context, att model.Attachment) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.DownloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create attachment request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, agenterr.NewTrackerTransient(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, agenterr.NewTrackerTransient(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp, body)
	}
	return body, nil
}

// AddComment posts a plain-text comment, wrapped in the minimal ADF envelope.
func (c *Client) AddComment(ctx context.Context, key, text string) (*model.Comment, error) {
	payload := map[string]any{"body": plainTextADF(text)}
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/issue/%s/comment", key), payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp, body)
	}

	var cw commentWire
	if err := json.Unmarshal(body, &cw); err != nil {
		return nil, agenterr.NewTrackerPermanent(fmt.Errorf("decode comment response: %w", err))
	}
	created, _ := time.Parse(time.RFC3339, cw.Created)
	return &model.Comment{
		ID:      cw.ID,
		Author:  model.CommentAuthor{ID: cw.Author.AccountID, DisplayName: cw.Author.DisplayName},
		Created: created,
		Body:    text,
	}, nil
}

// UploadAttachment attaches a file via multipart upload (§6).
func (c *Client) UploadAttachment(ctx context.Context, key, filename string, content []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create multipart field: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(fmt.Sprintf("/issue/%s/attachments", key)), &buf)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Atlassian-Token", "no-check")

	resp, err := c.http.Do(req)
	if err != nil {
		return agenterr.NewTrackerTransient(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp, body)
	}
	return nil
}

type transitionsResponse struct {
	Transitions []struct {
		ID   string      `json:"id"`
		To   statusField `json:"to"`
		Name string      `json:"name"`
	} `json:"transitions"`
}

// Transition moves a ticket to the named status, posting an optional comment
// as part of the same call (§6).
func (c *Client) Transition(ctx context.Context, key string, status model.TicketStatus, comment string) error {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/issue/%s/transitions", key), nil)
	if err != nil {
		return err
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp, body)
	}

	var tr transitionsResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return agenterr.NewTrackerPermanent(fmt.Errorf("decode transitions response: %w", err))
	}

	var transitionID string
	for _, t := range tr.Transitions {
		if t.To.Name == string(status) {
			transitionID = t.ID
			break
		}
	}
	if transitionID == "" {
		return agenterr.NewTrackerPermanent(fmt.Errorf("no transition to status %q available for %s", status, key))
	}

	payload := map[string]any{
		"transition": map[string]string{"id": transitionID},
	}
	if comment != "" {
		payload["update"] = map[string]any{
			"comment": []map[string]any{
				{"add": map[string]any{"body": plainTextADF(comment)}},
			},
		}
	}

	resp2, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/issue/%s/transitions", key), payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp2.Body.Close() }()
	body2, _ := io.ReadAll(resp2.Body)
	if resp2.StatusCode != http.StatusNoContent && resp2.StatusCode != http.StatusOK {
		return classifyStatus(resp2, body2)
	}
	return nil
}
