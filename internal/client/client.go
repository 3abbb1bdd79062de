// ABOUTME: HTTP client for the roster API used by the CLI
// ABOUTME: Wraps JSON requests, bearer auth, and {"error": ...} responses

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/roster/internal/store"
)

// Error is a non-2xx response from the API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("roster api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("roster api: %s (status %d)", e.Message, e.StatusCode)
}

// IsStatus reports whether err is an API error with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Client talks to one roster server.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New returns a client for baseURL, e.g. "http://localhost:8000".
// A bare host:port is given an http scheme.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// User is the public view of an account.
type User struct {
	ID       int64      `json:"id"`
	Username string     `json:"username"`
	Role     store.Role `json:"role"`
	IsActive bool       `json:"is_active"`
}

// UserPage is one page of GET /admin/users.
type UserPage struct {
	Items   []User `json:"items"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Total   int    `json:"total"`
}

// MissionInput is the body of a mission create request.
type MissionInput struct {
	Title     string              `json:"title"`
	Start     time.Time           `json:"start"`
	End       time.Time           `json:"end"`
	Location  string              `json:"location,omitempty"`
	Status    store.MissionStatus `json:"status,omitempty"`
	Positions []store.Position    `json:"positions"`
}

// AssignInput is the body of an assign request.
type AssignInput struct {
	RoleLabel string                 `json:"role_label"`
	UserID    int64                  `json:"user_id"`
	Status    store.AssignmentStatus `json:"status,omitempty"`
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Register creates an intermittent account.
func (c *Client) Register(ctx context.Context, username, password string) (User, error) {
	var u User
	err := c.do(ctx, http.MethodPost, "/auth/register", credentials(username, password), &u)
	return u, err
}

// Login exchanges credentials for a bearer token. The client keeps using
// the returned token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/token-json", credentials(username, password), &resp); err != nil {
		return "", err
	}
	c.token = resp.AccessToken
	return resp.AccessToken, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u)
	return u, err
}

// CreateMission creates a mission.
func (c *Client) CreateMission(ctx context.Context, in MissionInput) (store.Mission, error) {
	var m store.Mission
	err := c.do(ctx, http.MethodPost, "/missions", in, &m)
	return m, err
}

// Assign places a user on a mission position.
func (c *Client) Assign(ctx context.Context, missionID int64, in AssignInput) (store.Assignment, error) {
	var a store.Assignment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/missions/%d/assign", missionID), in, &a)
	return a, err
}

// ListUsers searches non-deleted users by username substring.
func (c *Client) ListUsers(ctx context.Context, q string, page, perPage int) (UserPage, error) {
	query := url.Values{}
	if q != "" {
		query.Set("q", q)
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		query.Set("per_page", strconv.Itoa(perPage))
	}
	path := "/admin/users"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var p UserPage
	err := c.do(ctx, http.MethodGet, path, nil, &p)
	return p, err
}

// DeleteUser soft-deletes a user.
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/admin/users/%d", id), nil, nil)
}

// Reset empties the whole document, including the caller's own account.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/admin/reset", nil, nil)
}

// Backup downloads the current envelope. filename is taken from the
// Content-Disposition header and may be empty.
func (c *Client) Backup(ctx context.Context) (data []byte, filename string, err error) {
	resp, err := c.send(ctx, http.MethodGet, "/admin/backup", nil, "")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading backup: %w", err)
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	return data, filename, nil
}

// Restore uploads an envelope, raw or zstd-compressed. wipe selects wipe
// mode; otherwise the server merges.
func (c *Client) Restore(ctx context.Context, data []byte, wipe bool) error {
	path := "/admin/restore?wipe=" + strconv.FormatBool(wipe)
	resp, err := c.send(ctx, http.MethodPost, path, bytes.NewReader(data), "application/octet-stream")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Archive asks the server to write the current envelope to its archive sink
// and returns the object key.
func (c *Client) Archive(ctx context.Context) (string, error) {
	var resp struct {
		Key string `json:"key"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/backup/archive", nil, &resp); err != nil {
		return "", err
	}
	return resp.Key, nil
}

func credentials(username, password string) map[string]string {
	return map[string]string{"username": username, "password": password}
}

// do sends body as JSON and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.send(ctx, method, path, reader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// send performs the request and turns non-2xx responses into *Error.
// The caller closes the body of a successful response.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &Error{StatusCode: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil {
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
		}
	}
	return nil, apiErr
}
