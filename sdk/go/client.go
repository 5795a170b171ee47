package sprintsyncsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal sprintsync HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	APIKey      string
	ActorID     string
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

// Item represents the API work item model (partial).
type Item struct {
	ID           string            `json:"id"`
	Slug         string            `json:"slug"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	ProjectSlug  string            `json:"project_slug"`
	SprintNumber int               `json:"sprint_number"`
	Progress     string            `json:"progress"`
	Priority     string            `json:"priority"`
	Status       string            `json:"status"`
	Type         string            `json:"type"`
	Category     string            `json:"category"`
	DueDate      string            `json:"due_date,omitempty"`
	OwnerID      string            `json:"owner_id,omitempty"`
	AssigneeID   string            `json:"assignee_id,omitempty"`
	PluginMeta   map[string]string `json:"plugin_meta,omitempty"`
}

// Project represents the API project model (partial).
type Project struct {
	ID          string            `json:"id"`
	Slug        string            `json:"slug"`
	Name        string            `json:"name"`
	Pin         bool              `json:"pin"`
	OwnerID     string            `json:"owner_id,omitempty"`
	SprintWeeks int               `json:"sprint_weeks"`
	PluginMeta  map[string]string `json:"plugin_meta,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts"`
	Type        string `json:"type"`
	ProjectSlug string `json:"project_slug"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}

// ItemPage is one page of an item listing plus the unpaged total.
type ItemPage struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, slug, name string, pin bool) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", map[string]any{"slug": slug, "name": name, "pin": pin}, &resp)
	return resp, err
}

func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

// CreateItem creates an item. fields may carry any of the optional item
// attributes by their JSON names.
func (c *Client) CreateItem(ctx context.Context, project, title string, fields map[string]any) (Item, error) {
	body := map[string]any{}
	for k, v := range fields {
		body[k] = v
	}
	body["project"] = project
	body["title"] = title
	var resp Item
	err := c.do(ctx, http.MethodPost, "items", body, &resp)
	return resp, err
}

// UpdateItem sends a sparse patch.
func (c *Client) UpdateItem(ctx context.Context, id string, patch map[string]any) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPatch, "items/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

func (c *Client) DeleteItem(ctx context.Context, id string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodDelete, "items/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) ItemBySlug(ctx context.Context, slug string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodGet, "slugs/"+url.PathEscape(slug), nil, &resp)
	return resp, err
}

// Listing returns the items of one type in one project.
func (c *Client) Listing(ctx context.Context, project, itemType string) (ItemPage, error) {
	var resp ItemPage
	err := c.do(ctx, http.MethodGet, "listings/"+url.PathEscape(project+"_"+itemType), nil, &resp)
	return resp, err
}

// Step moves one axis of an item by delta, holding at the ends.
func (c *Client) Step(ctx context.Context, slug, axis string, delta int) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, "slugs/"+url.PathEscape(slug)+"/step", map[string]any{"axis": axis, "delta": delta}, &resp)
	return resp, err
}

// Circle advances one axis of an item, wrapping past the end.
func (c *Client) Circle(ctx context.Context, slug, axis string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, "slugs/"+url.PathEscape(slug)+"/circle", map[string]any{"axis": axis}, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader = http.NoBody
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	b := strings.TrimRight(c.BaseURL, "/")
	if !strings.HasSuffix(b, "/v1") {
		b += "/v1"
	}
	return b
}
