// Package client provides a Go client for the aiact HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/aiact-go/internal/httpapi"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/service"
)

// Client talks to an aiact-server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses AIACT_SERVER_URL env var or defaults to localhost:8484.
// Timeout can be configured via AIACT_CLIENT_TIMEOUT env var (default 10m, turns call the LLM several times).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("AIACT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8484"
	}

	timeout := 10 * time.Minute
	if t := os.Getenv("AIACT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %d %s - %s", e.StatusCode, http.StatusText(e.StatusCode), e.Detail)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// do sends a JSON request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(status int, data []byte) error {
	var body httpapi.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Detail == "" {
		body.Detail = strings.TrimSpace(string(data))
	}
	return &APIError{StatusCode: status, Detail: body.Detail}
}

// =============================================================================
// TURNS
// =============================================================================

// Ask runs one turn and waits for the answer. An empty chatID starts a new chat.
func (c *Client) Ask(ctx context.Context, chatID, input string) (*httpapi.InvokeResponse, error) {
	var resp httpapi.InvokeResponse
	err := c.do(ctx, http.MethodPost, "/chatbot", httpapi.InvokeRequest{ChatID: chatID, UserInput: input}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// =============================================================================
// CHATS
// =============================================================================

// Chats lists all chats, oldest first.
func (c *Client) Chats(ctx context.Context) ([]models.Conversation, error) {
	var chats []models.Conversation
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// Chat returns one chat.
func (c *Client) Chat(ctx context.Context, id string) (*models.Conversation, error) {
	var chat models.Conversation
	if err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(id), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// RenameChat renames a chat and returns it.
func (c *Client) RenameChat(ctx context.Context, id, name string) (*models.Conversation, error) {
	var chat models.Conversation
	if err := c.do(ctx, http.MethodPut, "/chats/"+url.PathEscape(id), httpapi.RenameRequest{Name: name}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// DeleteChat deletes a chat and its history.
func (c *Client) DeleteChat(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/chats/"+url.PathEscape(id), nil, nil)
}

// History returns the question/answer pairs of a chat.
func (c *Client) History(ctx context.Context, id string) ([]models.Turn, error) {
	var turns []models.Turn
	if err := c.do(ctx, http.MethodGet, "/chat-history/"+url.PathEscape(id), nil, &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// ClearHistory deletes the messages of a chat but keeps the chat.
func (c *Client) ClearHistory(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/chat-history/"+url.PathEscape(id), nil, nil)
}

// =============================================================================
// CORPUS
// =============================================================================

// Part returns the raw corpus record with the given id.
func (c *Client) Part(ctx context.Context, id string) (map[string]any, error) {
	var part map[string]any
	if err := c.do(ctx, http.MethodGet, "/ai-act/parts/"+url.PathEscape(id), nil, &part); err != nil {
		return nil, err
	}
	return part, nil
}

// Search ranks passages against query. k <= 0 returns every passage.
func (c *Client) Search(ctx context.Context, query string, k int) ([]models.ScoredPassage, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("k", strconv.Itoa(max(k, 0)))

	var hits []models.ScoredPassage
	if err := c.do(ctx, http.MethodGet, "/search?"+params.Encode(), nil, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// =============================================================================
// INDEX JOBS
// =============================================================================

// RebuildIndex starts a background rebuild and returns its job.
func (c *Client) RebuildIndex(ctx context.Context) (*service.Job, error) {
	var job service.Job
	if err := c.do(ctx, http.MethodPost, "/index/rebuild", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns all jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]*service.Job, error) {
	var jobs []*service.Job
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob returns a job by id.
func (c *Client) GetJob(ctx context.Context, id string) (*service.Job, error) {
	var job service.Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// WaitJob polls a job until it finishes, reporting each poll to onUpdate
// (which may be nil). A failed job is returned together with an error.
func (c *Client) WaitJob(ctx context.Context, id string, interval time.Duration, onUpdate func(*service.Job)) (*service.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(job)
		}
		switch job.Status {
		case service.JobStatusCompleted:
			return job, nil
		case service.JobStatusFailed:
			return job, fmt.Errorf("job %s failed: %s", job.ID, job.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// =============================================================================
// STATS
// =============================================================================

// Stats returns runtime metrics and index size.
func (c *Client) Stats(ctx context.Context) (*httpapi.StatsResponse, error) {
	var stats httpapi.StatsResponse
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
