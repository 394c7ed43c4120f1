package pposdk

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
)

// Client is a minimal orchestration HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Operation represents one asynchronous bootstrap run.
type Operation struct {
	ID          string `json:"id"`
	ProjectName string `json:"project_name"`
	Template    string `json:"template,omitempty"`
	Status      string `json:"status"`
	DryRun      bool   `json:"dry_run"`
	Canceled    bool   `json:"canceled"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
}

// Phase is one entry of an operation's phase log.
type Phase struct {
	Seq    int            `json:"seq"`
	Name   string         `json:"name"`
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
	TS     string         `json:"ts"`
}

// OperationDetail is an operation plus its phase log and final result.
type OperationDetail struct {
	Operation
	Phases []Phase        `json:"phases"`
	Result map[string]any `json:"result,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts"`
	Type        string         `json:"type"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id,omitempty"`
	ActorID     string         `json:"actor_id"`
	Payload     map[string]any `json:"payload"`
}

// Template is a project blueprint summary.
type Template struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags,omitempty"`
}

// ValidationResult is the outcome of PRD validation.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// CreateProjectOptions parameterizes CreateProject. Set PRD to a raw PRD
// document, or Template to a catalog template name; with neither, the
// server's default template is used.
type CreateProjectOptions struct {
	ProjectName string `json:"project_name,omitempty"`
	Description string `json:"description,omitempty"`
	Template    string `json:"template,omitempty"`
	PRD         string `json:"prd,omitempty"`
	DryRun      bool   `json:"dry_run,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject queues a bootstrap run and returns the accepted operation.
func (c *Client) CreateProject(ctx context.Context, opts CreateProjectOptions) (Operation, error) {
	var resp Operation
	err := c.do(ctx, http.MethodPost, "v0/projects", opts, &resp)
	return resp, err
}

// GetOperation fetches an operation with its phase log.
func (c *Client) GetOperation(ctx context.Context, id string) (OperationDetail, error) {
	var resp OperationDetail
	err := c.do(ctx, http.MethodGet, "v0/operations/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListOperations returns recent operations, newest first.
func (c *Client) ListOperations(ctx context.Context, limit int) ([]Operation, error) {
	endpoint := "v0/operations"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Operation
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CancelOperation records a cancellation request.
func (c *Client) CancelOperation(ctx context.Context, id string) (Operation, error) {
	var resp Operation
	err := c.do(ctx, http.MethodPost, "v0/operations/"+url.PathEscape(id)+"/cancel", nil, &resp)
	return resp, err
}

// OperationEvents returns events for an operation past the given id.
func (c *Client) OperationEvents(ctx context.Context, id string, after int64, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("v0/operations/%s/events?after=%d", url.PathEscape(id), after)
	if limit > 0 {
		endpoint = fmt.Sprintf("%s&limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// WaitForOperation polls until the operation reaches a terminal status.
func (c *Client) WaitForOperation(ctx context.Context, id string, interval time.Duration) (OperationDetail, error) {
	if interval <= 0 {
		interval = time.Second
	}
	for {
		detail, err := c.GetOperation(ctx, id)
		if err != nil {
			return detail, err
		}
		if detail.Status == "completed" || detail.Status == "failed" {
			return detail, nil
		}
		select {
		case <-ctx.Done():
			return detail, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// ListTemplates returns the template catalog, optionally filtered by
// category.
func (c *Client) ListTemplates(ctx context.Context, category string) ([]Template, error) {
	endpoint := "v0/templates"
	if category != "" {
		endpoint = endpoint + "?category=" + url.QueryEscape(category)
	}
	var resp []Template
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetTemplate fetches one template with its full PRD.
func (c *Client) GetTemplate(ctx context.Context, name string, out any) error {
	return c.do(ctx, http.MethodGet, "v0/templates/"+url.PathEscape(name), nil, out)
}

// ValidatePRD submits a raw PRD for validation.
func (c *Client) ValidatePRD(ctx context.Context, raw string) (ValidationResult, error) {
	var resp ValidationResult
	err := c.do(ctx, http.MethodPost, "v0/prd/validate", map[string]any{"prd": raw}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
