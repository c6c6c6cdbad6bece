// Package client is a typed SDK for the Jira Lite HTTP API. It also provides
// the remote halves of the optimistic lists and the kanban board.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jiralite/api/internal/aicache"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api returned status %d (%s): %s", e.Status, e.Code, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	policy  aicache.Policy
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithPolicy sets the limits used for AI pre-flight checks. They should
// match the server's; the server stays authoritative either way.
func WithPolicy(p aicache.Policy) Option {
	return func(c *Client) { c.policy = p }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		policy:  aicache.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope struct {
		Code    string         `json:"code"`
		Error   string         `json:"error"`
		Details map[string]any `json:"details"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}
	apiErr.Code = envelope.Code
	apiErr.Message = envelope.Error
	apiErr.Details = envelope.Details
	return apiErr
}

// Session is the token pair returned by sign-in and refresh.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	Email        string `json:"email"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// SignIn authenticates and switches the client to the new access token.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var sess Session
	err := c.do(ctx, http.MethodPost, "/api/auth/signin", map[string]string{
		"email":    email,
		"password": password,
	}, &sess)
	if err != nil {
		return Session{}, err
	}
	c.token = sess.AccessToken
	return sess, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/api/session/refresh", map[string]string{"refreshToken": refreshToken}, &sess); err != nil {
		return Session{}, err
	}
	c.token = sess.AccessToken
	return sess, nil
}

type Team struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	MyRole string `json:"myRole"`
}

func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	var out struct {
		Teams []Team `json:"teams"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/teams", nil, &out); err != nil {
		return nil, err
	}
	return out.Teams, nil
}

type Project struct {
	ID          string `json:"id"`
	TeamID      string `json:"teamId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsArchived  bool   `json:"isArchived"`
	IsFavorite  bool   `json:"isFavorite"`
}

func (c *Client) Projects(ctx context.Context, teamID string) ([]Project, error) {
	var out struct {
		Projects []Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/teams/"+teamID+"/projects", nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

type Issue struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"projectId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	StatusID    string  `json:"statusId"`
	StatusName  string  `json:"statusName"`
	Priority    string  `json:"priority"`
	AssigneeID  *string `json:"assigneeId"`
	DueDate     *string `json:"dueDate"`
	Position    int     `json:"position"`
}

func (c *Client) Issue(ctx context.Context, issueID string) (Issue, error) {
	var out Issue
	if err := c.do(ctx, http.MethodGet, "/api/issues/"+issueID, nil, &out); err != nil {
		return Issue{}, err
	}
	return out, nil
}

type NewIssue struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StatusID    string `json:"statusId,omitempty"`
	Priority    string `json:"priority,omitempty"`
	AssigneeID  string `json:"assigneeId,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
}

func (c *Client) CreateIssue(ctx context.Context, projectID string, in NewIssue) (Issue, error) {
	var out Issue
	if err := c.do(ctx, http.MethodPost, "/api/projects/"+projectID+"/issues", in, &out); err != nil {
		return Issue{}, err
	}
	return out, nil
}

// IssuePatch is a partial issue update. Nil fields are left alone; an empty
// assignee or due date clears it.
type IssuePatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	AssigneeID  *string `json:"assigneeId,omitempty"`
	DueDate     *string `json:"dueDate,omitempty"`
}

// UpdateIssue applies patch and, once the server accepts a new description,
// drops the issue's description-derived artifacts from cache.
func (c *Client) UpdateIssue(ctx context.Context, before Issue, patch IssuePatch, cache *aicache.Cache) (Issue, error) {
	var out Issue
	if err := c.do(ctx, http.MethodPut, "/api/issues/"+before.ID, patch, &out); err != nil {
		return Issue{}, err
	}
	if cache != nil && patch.Description != nil && out.Description != before.Description {
		cache.Apply(before.ID, aicache.DescriptionChanged)
	}
	return out, nil
}

type SearchResult struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	ProjectID string `json:"projectId"`
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	var out struct {
		Results []SearchResult `json:"results"`
	}
	path := fmt.Sprintf("/api/search?q=%s&limit=%d", url.QueryEscape(query), limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
