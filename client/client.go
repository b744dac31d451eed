// Package client is a Go client for the workboard REST API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"workboard-api/domain"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("workboard api: %d %s", e.Status, e.Message)
}

// Client wraps http.Client with helpers for the board routes.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

// New creates a new Client.
func New(baseURL, bearer string) *Client {
	return &Client{BaseURL: baseURL, Bearer: bearer, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// TaskInput is the body of a task create request.
type TaskInput struct {
	ListID      domain.ListID `json:"listId"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	DueDate     *time.Time    `json:"dueDate,omitempty"`
}

// TaskChanges is the body of a task edit. ClearDueDate sends an explicit null.
type TaskChanges struct {
	Title        *string
	Description  *string
	DueDate      *time.Time
	ClearDueDate bool
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, header http.Header) error {
	var rd io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if sonic.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return sonic.Unmarshal(data, out)
}

func idempotent() http.Header {
	h := http.Header{}
	h.Set("Idempotency-Key", uuid.NewString())
	return h
}

func boardPath(boardID string) string {
	return "/api/boards/" + url.PathEscape(boardID)
}

func taskPath(boardID, taskID string) string {
	return boardPath(boardID) + "/tasks/" + url.PathEscape(taskID)
}

// CreateBoard creates a board with the three default lists. Each call carries
// a fresh Idempotency-Key.
func (c *Client) CreateBoard(ctx context.Context, title string) (domain.Board, error) {
	var b domain.Board
	err := c.do(ctx, http.MethodPost, "/api/boards", map[string]string{"title": title}, &b, idempotent())
	return b, err
}

// ListBoards returns the caller's board summaries.
func (c *Client) ListBoards(ctx context.Context) ([]domain.BoardSummary, error) {
	var out []domain.BoardSummary
	err := c.do(ctx, http.MethodGet, "/api/boards", nil, &out, nil)
	return out, err
}

// GetBoard returns one board with its lists.
func (c *Client) GetBoard(ctx context.Context, boardID string) (domain.Board, error) {
	var b domain.Board
	err := c.do(ctx, http.MethodGet, boardPath(boardID), nil, &b, nil)
	return b, err
}

// ReplaceLists overwrites the board's lists.
func (c *Client) ReplaceLists(ctx context.Context, boardID string, lists []domain.List) (domain.Board, error) {
	var b domain.Board
	err := c.do(ctx, http.MethodPatch, boardPath(boardID), map[string]any{"lists": lists}, &b, nil)
	return b, err
}

// DeleteBoard removes a board and its tasks.
func (c *Client) DeleteBoard(ctx context.Context, boardID string) error {
	return c.do(ctx, http.MethodDelete, boardPath(boardID), nil, nil, nil)
}

// CreateTask adds a task and returns the updated board.
func (c *Client) CreateTask(ctx context.Context, boardID string, in TaskInput) (domain.Board, error) {
	var b domain.Board
	err := c.do(ctx, http.MethodPost, boardPath(boardID)+"/tasks", in, &b, idempotent())
	return b, err
}

// UpdateTask edits a task and returns the updated board.
func (c *Client) UpdateTask(ctx context.Context, boardID, taskID string, ch TaskChanges) (domain.Board, error) {
	body := map[string]any{}
	if ch.Title != nil {
		body["title"] = *ch.Title
	}
	if ch.Description != nil {
		body["description"] = *ch.Description
	}
	switch {
	case ch.ClearDueDate:
		body["dueDate"] = nil
	case ch.DueDate != nil:
		body["dueDate"] = ch.DueDate.UTC().Format(time.RFC3339Nano)
	}
	var b domain.Board
	err := c.do(ctx, http.MethodPatch, taskPath(boardID, taskID), body, &b, nil)
	return b, err
}

// DeleteTask removes a task and returns the updated board.
func (c *Client) DeleteTask(ctx context.Context, boardID, taskID string) (domain.Board, error) {
	var b domain.Board
	err := c.do(ctx, http.MethodDelete, taskPath(boardID, taskID), nil, &b, nil)
	return b, err
}

// MoveTask moves a task to position in list to.
func (c *Client) MoveTask(ctx context.Context, boardID, taskID string, from, to domain.ListID, position int) (domain.Board, error) {
	body := map[string]any{"to": to, "position": position}
	if from != "" {
		body["from"] = from
	}
	var b domain.Board
	err := c.do(ctx, http.MethodPost, taskPath(boardID, taskID)+"/move", body, &b, nil)
	return b, err
}

// SearchTasks runs the server-side search.
func (c *Client) SearchTasks(ctx context.Context, boardID, query string) ([]domain.List, error) {
	var out []domain.List
	err := c.do(ctx, http.MethodGet, boardPath(boardID)+"/tasks?query="+url.QueryEscape(query), nil, &out, nil)
	return out, err
}

// Analytics returns the caller's task counters.
func (c *Client) Analytics(ctx context.Context) (domain.Analytics, error) {
	var out domain.Analytics
	err := c.do(ctx, http.MethodGet, "/api/analytics", nil, &out, nil)
	return out, err
}
