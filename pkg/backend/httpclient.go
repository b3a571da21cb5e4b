package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"useruploadagent/pkg/agenterr"
	"useruploadagent/pkg/logx"
)

// HTTPClient implements Client against a JSON REST identity backend.
// Request plumbing mirrors pkg/tracker/jiracloud.Client: a bearer-token
// session header, JSON marshal/decode, and status-code based error
// classification.
type HTTPClient struct {
	baseURL string
	logger  *logx.Logger
	http    *http.Client
}

// NewHTTPClient creates an HTTP-backed backend client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logx.New("backend-client"),
		http:    &http.Client{Timeout: timeout},
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) url(path string) string {
	return c.baseURL + path
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, token string, body, dst interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("%s %s", method, path)
	resp, err := c.http.Do(req)
	if err != nil {
		return agenterr.NewBackendFailure(1)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(respBody))
	}

	if dst != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, dst); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (Session, error) {
	var resp struct {
		Token string `json:"token"`
	}
	payload := map[string]string{"email": email, "password": password}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/login", "", payload, &resp); err != nil {
		return Session{}, err
	}
	return Session{Token: resp.Token}, nil
}

func (c *HTTPClient) ListRoles(ctx context.Context, s Session) ([]Role, error) {
	var resp []Role
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/roles", s.Token, nil, &resp)
	return resp, err
}

func (c *HTTPClient) ListTeams(ctx context.Context, s Session) ([]Team, error) {
	var resp []Team
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/teams", s.Token, nil, &resp)
	return resp, err
}

func (c *HTTPClient) ListUsers(ctx context.Context, s Session) ([]User, error) {
	var resp []User
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/users", s.Token, nil, &resp)
	return resp, err
}

func (c *HTTPClient) FindUser(ctx context.Context, s Session, email string) (*User, bool, error) {
	users, err := c.ListUsers(ctx, s)
	if err != nil {
		return nil, false, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return &users[i], true, nil
		}
	}
	return nil, false, nil
}

func (c *HTTPClient) FindTeam(ctx context.Context, s Session, name string) (*Team, bool, error) {
	teams, err := c.ListTeams(ctx, s)
	if err != nil {
		return nil, false, err
	}
	for i := range teams {
		if teams[i].Name == name {
			return &teams[i], true, nil
		}
	}
	return nil, false, nil
}

func (c *HTTPClient) CreateTeam(ctx context.Context, s Session, team NewTeam) (Team, error) {
	var resp Team
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/teams", s.Token, team, &resp)
	return resp, err
}

func (c *HTTPClient) CreateUser(ctx context.Context, s Session, user NewUser) (User, error) {
	var resp User
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/users", s.Token, user, &resp)
	return resp, err
}

func (c *HTTPClient) AssociateUserToTeams(ctx context.Context, s Session, userID string, teamIDs []string) error {
	payload := map[string]interface{}{"team_ids": teamIDs}
	path := fmt.Sprintf("/api/v1/users/%s/teams", userID)
	return c.doRequest(ctx, http.MethodPost, path, s.Token, payload, nil)
}
