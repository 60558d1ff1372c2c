package gateway

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

	"github.com/guido-cesarano/tasksync/pkg/tasks"
)

// defaultTimeout bounds each request so a hung call counts as a failure for
// the current sync pass instead of blocking later passes.
const defaultTimeout = 10 * time.Second

// Client is the HTTP implementation of Gateway.
//
// The bearer credential is attached to every request; issuing and refreshing
// it is the job of an external collaborator, the client just carries it.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a gateway client for the service at baseURL.
//
// Example:
//
//	gw := gateway.NewClient("https://api.example.com", os.Getenv("GATEWAY_TOKEN"))
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// createRequest is the wire body for task creation.
type createRequest struct {
	OwnerID string `json:"owner_id"`
	tasks.Payload
}

// do issues one request and maps the response onto the package error taxonomy.
// out may be nil for requests whose body is ignored.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failure: DNS, refused connection, timeout. All of these
		// mean "could not reach the service", not "service said no".
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ListTasks implements Gateway.ListTasks.
func (c *Client) ListTasks(ctx context.Context, ownerID string) ([]tasks.Task, error) {
	var list []tasks.Task
	path := "/tasks?owner=" + url.QueryEscape(ownerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CreateTask implements Gateway.CreateTask.
func (c *Client) CreateTask(ctx context.Context, ownerID string, p tasks.Payload) (*tasks.Task, error) {
	var t tasks.Task
	req := createRequest{OwnerID: ownerID, Payload: p}
	if err := c.do(ctx, http.MethodPost, "/tasks", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask implements Gateway.UpdateTask.
func (c *Client) UpdateTask(ctx context.Context, id string, p tasks.Payload) (*tasks.Task, error) {
	var t tasks.Task
	if err := c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), p, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTask implements Gateway.DeleteTask.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// Ping implements Gateway.Ping.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
