package api

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

	"github.com/pandeptwidyaop/hookrelay/internal/version"
)

// Hook is a hook as returned by the server.
type Hook struct {
	ID              string          `json:"id"`
	Name            *string         `json:"name"`
	Description     *string         `json:"description"`
	DeliveryMethod  string          `json:"delivery_method"`
	DeliveryConfig  json.RawMessage `json:"delivery_config,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at"`
	EventCount      int64           `json:"event_count"`
	WebhookURL      string          `json:"webhook_url"`
}

// Event is a captured request as returned by the server.
type Event struct {
	ID          string            `json:"id"`
	HookID      string            `json:"hook_id"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Body        json.RawMessage   `json:"body"`
	QueryParams map[string]string `json:"query_params"`
	SourceIP    *string           `json:"source_ip"`
	ReceivedAt  time.Time         `json:"received_at"`
	DeliveredAt *time.Time        `json:"delivered_at"`
}

// EventPage is one poll response.
type EventPage struct {
	Events  []Event `json:"events"`
	Count   int     `json:"count"`
	HasMore bool    `json:"has_more"`
}

// CreateHookRequest carries optional hook attributes.
type CreateHookRequest struct {
	Name           *string         `json:"name,omitempty"`
	Description    *string         `json:"description,omitempty"`
	DeliveryMethod string          `json:"delivery_method,omitempty"`
	DeliveryConfig json.RawMessage `json:"delivery_config,omitempty"`
}

// PollOptions maps onto the events query string. Nil fields use server defaults.
type PollOptions struct {
	Limit         int
	Undelivered   bool
	MarkDelivered *bool
}

// Error is a non-2xx response from the server.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to the hookrelay control plane.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for baseURL authenticating with token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateHook creates a new hook.
func (c *Client) CreateHook(ctx context.Context, req CreateHookRequest) (*Hook, error) {
	var hook Hook
	if err := c.do(ctx, http.MethodPost, "/hooks", req, &hook); err != nil {
		return nil, err
	}
	return &hook, nil
}

// ListHooks lists the caller's hooks, newest first.
func (c *Client) ListHooks(ctx context.Context) ([]Hook, error) {
	var hooks []Hook
	if err := c.do(ctx, http.MethodGet, "/hooks", nil, &hooks); err != nil {
		return nil, err
	}
	return hooks, nil
}

// GetHook fetches one hook.
func (c *Client) GetHook(ctx context.Context, id string) (*Hook, error) {
	var hook Hook
	if err := c.do(ctx, http.MethodGet, "/hooks/"+url.PathEscape(id), nil, &hook); err != nil {
		return nil, err
	}
	return &hook, nil
}

// DeleteHook deletes a hook and its events.
func (c *Client) DeleteHook(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/hooks/"+url.PathEscape(id), nil, nil)
}

// PollEvents fetches a page of events for a hook.
func (c *Client) PollEvents(ctx context.Context, id string, opts PollOptions) (*EventPage, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Undelivered {
		q.Set("undelivered", "true")
	}
	if opts.MarkDelivered != nil {
		q.Set("mark_delivered", strconv.FormatBool(*opts.MarkDelivered))
	}

	path := "/hooks/" + url.PathEscape(id) + "/events"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var page EventPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ServerVersion returns the build info of the server.
func (c *Client) ServerVersion(ctx context.Context) (*version.Info, error) {
	var info version.Info
	if err := c.do(ctx, http.MethodGet, "/version", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hookrelay-cli/"+version.Version)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		return &Error{Status: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
