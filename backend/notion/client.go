// Package notion talks to the Notion REST API and exposes the document
// store as an assistant backend. Payloads are retried with alternate
// property shapes because workspaces created under different API versions
// disagree about Status (status vs select) and the description column name.
package notion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.notion.com"
	defaultVersion = "2022-06-28"

	requestTimeout = 20 * time.Second
	maxErrSnippet  = 500
)

// Config carries the workspace credentials and database ids.
type Config struct {
	Token   string
	NotesDB string
	TasksDB string
	Version string
	BaseURL string
}

// Client is a thin Notion API client.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a client. The token is sanitized because env files routinely
// smuggle in trailing newlines that break the Authorization header.
func New(cfg Config) *Client {
	cfg.Token = sanitizeToken(cfg.Token)
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: requestTimeout},
	}
}

// Configured reports whether the client can serve note and task traffic.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.Token != "" && c.cfg.NotesDB != "" && c.cfg.TasksDB != ""
}

func sanitizeToken(token string) string {
	token = strings.TrimSpace(token)
	token = strings.ReplaceAll(token, "\n", "")
	token = strings.ReplaceAll(token, "\r", "")
	return token
}

// APIError is a non-2xx response with a bounded body snippet. Headers and
// secrets are never included.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Snippet    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion: api error %d for %s %s: %s", e.StatusCode, e.Method, e.Path, e.Snippet)
}

// IsBadRequest reports whether err is a 400 from the API, which is how the
// server signals an unsupported property shape.
func IsBadRequest(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest
}

// doJSON sends body (already-encoded JSON, may be nil) and returns the
// response body. Any status >= 400 becomes an *APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.cfg.Token == "" {
		return nil, errors.New("notion: token is not configured")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+"/v1"+path, reader)
	if err != nil {
		return nil, fmt.Errorf("notion: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Notion-Version", c.cfg.Version)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notion: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("notion: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		snippet := string(data)
		if len(snippet) > maxErrSnippet {
			snippet = snippet[:maxErrSnippet]
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Snippet:    snippet,
		}
	}
	return data, nil
}
