// Package embedder provides implementations of the rag.Embedder interface
// for converting text into dense vector embeddings. Each implementation
// talks to a different backend (Titan-style or Azure OpenAI) via plain
// HTTP — no SDK dependencies are required. The Resilient decorator adds
// timeout, single-retry, and a deterministic degraded-mode fallback on top
// of any backend.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ragstack/ragserve/internal/rag"
)

// TitanEmbedder implements rag.Embedder against a Titan-style embeddings
// endpoint (the invoke-model JSON shape used by amazon.titan-embed-text).
// The endpoint is typically a bedrock proxy service; requests carry one
// input text each, so a batch issues one call per text.
// It is safe for concurrent use.
type TitanEmbedder struct {
	// endpoint is the full URL of the embeddings route.
	endpoint string
	// apiKey is the optional Bearer token for the proxy.
	apiKey string
	// client is the shared HTTP client with a per-request timeout.
	client *http.Client
}

// TitanConfig holds the settings for constructing a TitanEmbedder.
type TitanConfig struct {
	// Endpoint is the full URL of the embeddings route
	// (e.g. "http://bedrock-proxy:8000/embed").
	Endpoint string
	// APIKey is an optional Bearer token.
	APIKey string
	// Timeout bounds each HTTP call. Defaults to 30s if zero.
	Timeout time.Duration
}

// NewTitanEmbedder constructs a TitanEmbedder from the given config.
func NewTitanEmbedder(cfg *TitanConfig) *TitanEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TitanEmbedder{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// titanEmbedRequest is the JSON body sent to the Titan-style endpoint.
type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

// titanEmbedResponse is the JSON body returned from the endpoint.
type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Message   string    `json:"message,omitempty"`
}

// Embed converts a batch of texts into their corresponding embeddings.
// The Titan invoke-model shape accepts a single input per call, so the batch
// is processed sequentially; the first failure aborts the batch.
func (e *TitanEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// embedOne issues a single invoke-model request for one text.
func (e *TitanEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("titan embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("titan embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("titan embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result titanEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("titan embedder: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Message != "" {
			msg = result.Message
		}
		return nil, fmt.Errorf("titan embedder: %s", msg)
	}

	if len(result.Embedding) != rag.Dimensions {
		return nil, fmt.Errorf("titan embedder: expected %d dimensions, got %d", rag.Dimensions, len(result.Embedding))
	}

	return result.Embedding, nil
}
