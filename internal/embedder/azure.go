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

// AzureEmbedder implements rag.Embedder using the Azure OpenAI embeddings
// REST API (api-key header, deployments path, api-version query parameter).
// It is safe for concurrent use.
type AzureEmbedder struct {
	// endpoint is the Azure resource endpoint
	// (e.g. "https://<resource>.openai.azure.com").
	endpoint string
	// apiKey is the api-key header value.
	apiKey string
	// deployment is the embeddings deployment name.
	deployment string
	// apiVersion is the api-version query parameter.
	apiVersion string
	// client is the shared HTTP client with a per-request timeout.
	client *http.Client
}

// AzureConfig holds the settings for constructing an AzureEmbedder.
type AzureConfig struct {
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string
	// APIKey is the authentication key.
	APIKey string
	// Deployment is the embeddings deployment name
	// (e.g. "text-embedding-ada-002").
	Deployment string
	// APIVersion is the Azure OpenAI API version. Defaults to
	// "2024-02-01" if empty.
	APIVersion string
	// Timeout bounds each HTTP call. Defaults to 30s if zero.
	Timeout time.Duration
}

// NewAzureEmbedder constructs an AzureEmbedder from the given config.
func NewAzureEmbedder(cfg *AzureConfig) *AzureEmbedder {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-02-01"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AzureEmbedder{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		deployment: cfg.Deployment,
		apiVersion: apiVersion,
		client:     &http.Client{Timeout: timeout},
	}
}

// azureEmbedRequest is the JSON body sent to the embeddings endpoint.
type azureEmbedRequest struct {
	Input []string `json:"input"`
}

// azureEmbedResponse is the JSON body returned from the embeddings endpoint.
type azureEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *AzureEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(azureEmbedRequest{Input: texts})
	if err != nil {
		return nil, fmt.Errorf("azure embedder: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		e.endpoint, e.deployment, e.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("azure embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result azureEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("azure embedder: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != nil {
			msg = result.Error.Message
		}
		return nil, fmt.Errorf("azure embedder: %s", msg)
	}

	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("azure embedder: expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	// The API may return data out of order; place by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("azure embedder: index %d out of range [0, %d)", d.Index, len(texts))
		}
		if len(d.Embedding) != rag.Dimensions {
			return nil, fmt.Errorf("azure embedder: expected %d dimensions, got %d", rag.Dimensions, len(d.Embedding))
		}
		embeddings[d.Index] = d.Embedding
	}

	return embeddings, nil
}
