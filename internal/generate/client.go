// Package generate is the HTTP client for the external answer-generation
// service. Retrieval never depends on it: only the /query path calls it, and
// its failures surface to the caller instead of degrading silently.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultMaxTokens is the generation token cap when the caller leaves it unset.
	DefaultMaxTokens = 1000

	// DefaultTemperature is the sampling temperature when the caller leaves it unset.
	DefaultTemperature = 0.7

	// defaultTimeout bounds one generation call.
	defaultTimeout = 60 * time.Second
)

// Request carries one generation call.
type Request struct {
	// SystemPrompt steers the model's behavior.
	SystemPrompt string `json:"system_prompt"`

	// Context is the assembled retrieval context.
	Context string `json:"context"`

	// Query is the user's question.
	Query string `json:"query"`

	// MaxTokens caps the generated answer length. Zero selects DefaultMaxTokens.
	MaxTokens int `json:"max_tokens"`

	// Temperature is the sampling temperature. Zero selects DefaultTemperature.
	Temperature float64 `json:"temperature"`
}

// Response is the generation service's answer.
type Response struct {
	// Answer is the generated text.
	Answer string `json:"answer"`
}

// Config holds the connection parameters for the generation service.
type Config struct {
	// Endpoint is the base URL of the generation service.
	Endpoint string

	// APIKey is the optional bearer token.
	APIKey string

	// Timeout bounds one call. Zero selects the default.
	Timeout time.Duration
}

// Client calls the generation service over HTTP.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewClient constructs a generation client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("generate: endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Generate sends one request and returns the generated answer. Transport
// errors and non-2xx statuses are returned to the caller; there is no retry
// or fallback on this path.
func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	if req.Temperature <= 0 {
		req.Temperature = DefaultTemperature
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("generate: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("generate: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("generate: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("generate: reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, fmt.Errorf("generate: service returned status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Response{}, fmt.Errorf("generate: decoding response: %w", err)
	}
	return out, nil
}

// Ping probes the generation endpoint for readiness reporting.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("generate: creating probe: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("generate: probe failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("generate: probe returned status %d", resp.StatusCode)
	}
	return nil
}

// Name identifies this collaborator in readiness reports.
func (c *Client) Name() string { return "generation" }

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
