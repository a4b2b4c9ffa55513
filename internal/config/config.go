// Package config provides YAML-based configuration for ragserve.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGSERVE_CONFIG environment variable
//  3. ~/.ragserve/config.yaml
//  4. ./ragserve.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the optional Qdrant index backend.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Storage configures the SQLite database and the documents root.
	Storage StorageConfig `yaml:"storage"`

	// Search configures retrieval and context assembly defaults.
	Search SearchConfig `yaml:"search"`

	// Generation configures the external answer-generation service.
	Generation GenerationConfig `yaml:"generation"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Ingest configures chunking and the background runner.
	Ingest IngestConfig `yaml:"ingest"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the backend: titan, azure.
	Provider string `yaml:"provider"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Deployment is the Azure deployment name (azure provider only).
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure API version (azure provider only).
	APIVersion string `yaml:"api_version"`
	// TimeoutSeconds bounds one provider call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// QdrantConfig holds Qdrant index settings.
type QdrantConfig struct {
	// Enabled switches search from the SQLite index to Qdrant.
	Enabled bool `yaml:"enabled"`
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path"`
	// DocumentsPath is the directory folder names resolve under.
	DocumentsPath string `yaml:"documents_path"`
}

// SearchConfig holds retrieval and context assembly defaults.
type SearchConfig struct {
	// DefaultLimit is the result count when a request leaves limit unset.
	DefaultLimit int `yaml:"default_limit"`
	// SimilarityThreshold is the minimum similarity for a hit.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// ContextBudget is the assembled context length bound in characters.
	ContextBudget int `yaml:"context_budget"`
	// ContextMaxBlocks bounds the retrieved chunks per assembled context.
	ContextMaxBlocks int `yaml:"context_max_blocks"`
}

// GenerationConfig holds the generation collaborator settings.
type GenerationConfig struct {
	// Endpoint is the generation service URL.
	Endpoint string `yaml:"endpoint"`
	// APIKey is the generation API key. Prefer env var GENERATION_API_KEY.
	APIKey string `yaml:"api_key"`
	// TimeoutSeconds bounds one generation call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var RAGSERVE_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimitRPS is the per-client request rate. Zero disables limiting.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	// RateLimitBurst is the per-client burst size.
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// IngestConfig holds chunking and background runner settings.
type IngestConfig struct {
	// ChunkSize is the maximum number of characters per chunk.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the characters shared between consecutive chunks.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// QueueSize bounds pending background processing jobs.
	QueueSize int `yaml:"queue_size"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_DEPLOYMENT", func(c *Config) string { return c.Embedding.Deployment }},
	{"EMBEDDING_API_VERSION", func(c *Config) string { return c.Embedding.APIVersion }},
	{"EMBEDDING_TIMEOUT_SECONDS", func(c *Config) string { return intStr(c.Embedding.TimeoutSeconds) }},
	{"QDRANT_ENABLED", func(c *Config) string { return boolStr(c.Qdrant.Enabled) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"RAGSERVE_DB", func(c *Config) string { return c.Storage.DBPath }},
	{"RAGSERVE_DOCUMENTS_PATH", func(c *Config) string { return c.Storage.DocumentsPath }},
	{"SEARCH_DEFAULT_LIMIT", func(c *Config) string { return intStr(c.Search.DefaultLimit) }},
	{"SEARCH_SIMILARITY_THRESHOLD", func(c *Config) string { return floatStr(c.Search.SimilarityThreshold) }},
	{"CONTEXT_BUDGET", func(c *Config) string { return intStr(c.Search.ContextBudget) }},
	{"CONTEXT_MAX_BLOCKS", func(c *Config) string { return intStr(c.Search.ContextMaxBlocks) }},
	{"GENERATION_ENDPOINT", func(c *Config) string { return c.Generation.Endpoint }},
	{"GENERATION_API_KEY", func(c *Config) string { return c.Generation.APIKey }},
	{"GENERATION_TIMEOUT_SECONDS", func(c *Config) string { return intStr(c.Generation.TimeoutSeconds) }},
	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RAGSERVE_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"RATE_LIMIT_RPS", func(c *Config) string { return floatStr(c.Server.RateLimitRPS) }},
	{"RATE_LIMIT_BURST", func(c *Config) string { return intStr(c.Server.RateLimitBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Ingest.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Ingest.ChunkOverlap) }},
	{"INGEST_QUEUE_SIZE", func(c *Config) string { return intStr(c.Ingest.QueueSize) }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// FromEnv builds the resolved runtime configuration from environment
// variables, applying defaults for everything unset. Call Load first so YAML
// values have been projected into the environment.
func FromEnv() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:       getenv("EMBEDDING_PROVIDER", "titan"),
			Endpoint:       os.Getenv("EMBEDDING_ENDPOINT"),
			APIKey:         os.Getenv("EMBEDDING_API_KEY"),
			Deployment:     os.Getenv("EMBEDDING_DEPLOYMENT"),
			APIVersion:     os.Getenv("EMBEDDING_API_VERSION"),
			TimeoutSeconds: getenvInt("EMBEDDING_TIMEOUT_SECONDS", 30),
		},
		Qdrant: QdrantConfig{
			Enabled:    getenvBool("QDRANT_ENABLED"),
			Host:       getenv("QDRANT_HOST", "localhost"),
			Port:       getenvInt("QDRANT_PORT", 6334),
			Collection: getenv("QDRANT_COLLECTION", "ragserve"),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			TLS:        getenvBool("QDRANT_TLS"),
		},
		Storage: StorageConfig{
			DBPath:        getenv("RAGSERVE_DB", "ragserve.db"),
			DocumentsPath: getenv("RAGSERVE_DOCUMENTS_PATH", "documents"),
		},
		Search: SearchConfig{
			DefaultLimit:        getenvInt("SEARCH_DEFAULT_LIMIT", 10),
			SimilarityThreshold: getenvFloat("SEARCH_SIMILARITY_THRESHOLD", 0.3),
			ContextBudget:       getenvInt("CONTEXT_BUDGET", 8000),
			ContextMaxBlocks:    getenvInt("CONTEXT_MAX_BLOCKS", 10),
		},
		Generation: GenerationConfig{
			Endpoint:       os.Getenv("GENERATION_ENDPOINT"),
			APIKey:         os.Getenv("GENERATION_API_KEY"),
			TimeoutSeconds: getenvInt("GENERATION_TIMEOUT_SECONDS", 60),
		},
		Server: ServerConfig{
			Host:           getenv("SERVER_HOST", "0.0.0.0"),
			Port:           getenvInt("SERVER_PORT", 8080),
			APIKey:         os.Getenv("RAGSERVE_API_KEY"),
			RateLimitRPS:   getenvFloat("RATE_LIMIT_RPS", 10),
			RateLimitBurst: getenvInt("RATE_LIMIT_BURST", 20),
		},
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},
		Ingest: IngestConfig{
			ChunkSize:    getenvInt("CHUNK_SIZE", 1000),
			ChunkOverlap: getenvInt("CHUNK_OVERLAP", 250),
			QueueSize:    getenvInt("INGEST_QUEUE_SIZE", 16),
		},
	}
}

// EmbeddingTimeout returns the embedding call timeout as a duration.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSeconds) * time.Second
}

// GenerationTimeout returns the generation call timeout as a duration.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.Generation.TimeoutSeconds) * time.Second
}

// Addr returns the server's host:port bind address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("RAGSERVE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".ragserve", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("ragserve.yaml"); err == nil {
		return "ragserve.yaml"
	}

	return ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "true" || v == "1" || v == "yes"
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// floatStr converts a float64 to string, returning "" for zero values.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
