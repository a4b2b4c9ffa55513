package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragstack/ragserve/internal/generate"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 0.0.0.0).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics and backs the
	// /metrics endpoint. If nil a private registry is created.
	Registry *prometheus.Registry
}

// retriever is the interface the query and search handlers call.
// *rag.Retriever satisfies it; tests inject a fake.
type retriever interface {
	Retrieve(ctx context.Context, query, scope string, limit int, threshold float64) ([]rag.Hit, error)
}

// generator is the interface the query handler calls for answer generation.
// *generate.Client satisfies it; tests inject a fake.
type generator interface {
	Generate(ctx context.Context, req generate.Request) (generate.Response, error)
}

// processTrigger is the interface the vector handlers call to start
// background processing. *ingest.Runner satisfies it; tests inject a fake.
type processTrigger interface {
	Trigger(ctx context.Context, vectorID int64) (string, error)
}

// Server is the HTTP server exposing the retrieval API.
type Server struct {
	// store is the system of record for documents, vectors, and RAG models.
	store *store.Store
	// retriever answers scoped similarity queries.
	retriever retriever
	// assembler builds budget-bounded context strings from hits.
	assembler *rag.Assembler
	// generator is the external answer-generation collaborator.
	generator generator
	// trigger starts background folder processing.
	trigger processTrigger
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Query is the user's question.
	Query string `json:"query"`
	// RagModelID selects the RAG model by ID.
	RagModelID int64 `json:"rag_model_id,omitempty"`
	// RagModelName selects the RAG model by name when RagModelID is zero.
	RagModelName string `json:"rag_model_name,omitempty"`
	// SystemPrompt overrides the model's system prompt when the model has none.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// Context is ad-hoc caller context prepended to the retrieved blocks.
	Context string `json:"context,omitempty"`
	// MaxTokens caps the generated answer length.
	MaxTokens int `json:"max_tokens,omitempty"`
	// Temperature is the generation sampling temperature.
	Temperature float64 `json:"temperature,omitempty"`
	// Limit bounds the number of retrieved chunks.
	Limit int `json:"limit,omitempty"`
	// SimilarityThreshold overrides the configured similarity cutoff.
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Sources lists the chunks included in the context, best first.
	Sources []rag.Source `json:"sources"`
	// ContextUsed is the full context string handed to generation.
	ContextUsed string `json:"context_used"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the search text.
	Query string `json:"query"`
	// RagModelID selects the RAG model by ID.
	RagModelID int64 `json:"rag_model_id,omitempty"`
	// RagModelName selects the RAG model by name when RagModelID is zero.
	RagModelName string `json:"rag_model_name,omitempty"`
	// Limit bounds the number of results.
	Limit int `json:"limit,omitempty"`
	// SimilarityThreshold overrides the configured similarity cutoff.
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
}

// searchDocument is one search result: the chunk plus its similarity.
type searchDocument struct {
	Document struct {
		ID         int64  `json:"id"`
		Filename   string `json:"filename"`
		ChunkIndex int    `json:"chunk_index"`
		Content    string `json:"content"`
	} `json:"document"`
	Similarity float64 `json:"similarity"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	Documents []searchDocument `json:"documents"`
}

// createVectorRequest is the JSON body for POST /api/vectors.
type createVectorRequest struct {
	// Name is the unique collection name.
	Name string `json:"name"`
	// FolderName is the documents folder this collection indexes.
	FolderName string `json:"folder_name"`
	// Description is optional free text.
	Description string `json:"description,omitempty"`
}

// vectorActionResponse is the JSON response for vector create/process/delete.
type vectorActionResponse struct {
	Success  bool   `json:"success"`
	VectorID int64  `json:"vector_id,omitempty"`
	JobID    string `json:"job_id,omitempty"`
	Message  string `json:"message"`
}

// createRagModelRequest is the JSON body for POST /api/rag-models.
type createRagModelRequest struct {
	// Name is the unique model name.
	Name string `json:"name"`
	// VectorID binds the model to a vector collection.
	VectorID int64 `json:"vector_id"`
	// SystemPrompt steers generation for queries through this model.
	SystemPrompt string `json:"system_prompt"`
	// Context is static context prepended to every query's retrieved blocks.
	Context string `json:"context,omitempty"`
}

// updateRagModelRequest is the JSON body for PUT /api/rag-models/{id}.
type updateRagModelRequest struct {
	SystemPrompt string `json:"system_prompt"`
	Context      string `json:"context,omitempty"`
	IsActive     *bool  `json:"is_active,omitempty"`
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	Error string `json:"error"`
}
