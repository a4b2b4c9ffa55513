package embedder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ragstack/ragserve/internal/rag"
)

// Config selects and parameterizes the embedding backend. The backend is
// chosen exactly once, here — no call site in chunking, ingestion, or search
// ever branches on provider identity.
type Config struct {
	// Provider selects the backend: "titan" or "azure".
	Provider string
	// Endpoint is the provider endpoint URL (Titan proxy route or Azure
	// resource endpoint).
	Endpoint string
	// APIKey is the provider credential.
	APIKey string
	// Deployment is the Azure embeddings deployment name (azure only).
	Deployment string
	// APIVersion is the Azure API version (azure only).
	APIVersion string
	// Timeout bounds each provider call.
	Timeout time.Duration
	// Metrics counts degraded-mode use. May be nil.
	Metrics *Metrics
	// Logger is the structured logger for the resilient wrapper.
	Logger *slog.Logger
}

// New constructs the configured backend wrapped in the Resilient
// degraded-mode policy. Switching Provider changes which service is called
// but never the stored schema or vector dimension (rag.Dimensions).
func New(cfg *Config) (*Resilient, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	return NewResilient(backend, cfg.Timeout, cfg.Logger, cfg.Metrics), nil
}

// newBackend constructs the raw provider client for cfg.Provider.
func newBackend(cfg *Config) (rag.Embedder, error) {
	switch cfg.Provider {
	case "titan":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: titan requires an endpoint")
		}
		return NewTitanEmbedder(&TitanConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
		}), nil

	case "azure":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires an endpoint")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure requires an API key")
		}
		if cfg.Deployment == "" {
			return nil, fmt.Errorf("embedder: azure requires a deployment name")
		}
		return NewAzureEmbedder(&AzureConfig{
			Endpoint:   cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Deployment: cfg.Deployment,
			APIVersion: cfg.APIVersion,
			Timeout:    cfg.Timeout,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown provider %q — valid values: titan, azure", cfg.Provider)
	}
}
