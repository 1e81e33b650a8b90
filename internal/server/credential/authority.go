package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ServiceSecretHeader authenticates this service to the authority.
const ServiceSecretHeader = "X-Service-Secret"

// Result is the authority's answer for one token and operation.
type Result struct {
	Valid    bool   `json:"valid"`
	Identity string `json:"identity,omitempty"`
	Quota    *int64 `json:"quota,omitempty"`
	Error    string `json:"error,omitempty"`
}

// UsageRecord is one billable control-plane call.
type UsageRecord struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Operation string    `json:"operation"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// Authority validates bearer tokens and receives usage reports.
type Authority interface {
	Verify(ctx context.Context, token, operation string) (*Result, error)
	ReportUsage(ctx context.Context, records []UsageRecord) error
}

// HTTPAuthority talks to the credential service over HTTP.
type HTTPAuthority struct {
	baseURL string
	secret  string
	service string
	client  *http.Client
}

// NewHTTPAuthority creates an authority client. baseURL must not end in a slash.
func NewHTTPAuthority(baseURL, secret, service string, timeout time.Duration) *HTTPAuthority {
	return &HTTPAuthority{
		baseURL: baseURL,
		secret:  secret,
		service: service,
		client:  &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	Token     string `json:"token"`
	Service   string `json:"service"`
	Operation string `json:"operation"`
	Quantity  int    `json:"quantity"`
}

type usageRequest struct {
	Service string        `json:"service"`
	Records []UsageRecord `json:"records"`
}

// Verify asks the authority whether token may perform operation.
// A non-nil error means the authority could not be reached or answered garbage.
func (a *HTTPAuthority) Verify(ctx context.Context, token, operation string) (*Result, error) {
	resp, err := a.post(ctx, "/verify", verifyRequest{
		Token:     token,
		Service:   a.service,
		Operation: operation,
		Quantity:  1,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("authority returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode authority response: %w", err)
	}

	return &result, nil
}

// ReportUsage sends a batch of usage records.
func (a *HTTPAuthority) ReportUsage(ctx context.Context, records []UsageRecord) error {
	resp, err := a.post(ctx, "/usage", usageRequest{Service: a.service, Records: records})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("usage report rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (a *HTTPAuthority) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ServiceSecretHeader, a.secret)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authority request failed: %w", err)
	}
	return resp, nil
}
