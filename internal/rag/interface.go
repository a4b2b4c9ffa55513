// Package rag defines the interfaces for the retrieval core: embedding
// generation, scoped vector search, and context assembly. Concrete
// implementations (the SQLite store, Qdrant, the HTTP embedding backends)
// satisfy these interfaces so the query path never depends on a specific
// backend.
package rag

import (
	"context"
	"errors"
)

// Dimensions is the fixed embedding vector length. Every backend — including
// the degraded-mode fallback — produces vectors of exactly this size, so
// switching providers never changes the stored schema.
const Dimensions = 1536

// ErrScopeRequired is returned when a search is attempted without a folder
// scope. An unscoped search is a programming defect, not a user error: every
// query-serving entry point resolves its scope from a RagModel before
// searching, so this error must be unreachable in production.
var ErrScopeRequired = errors.New("rag: search scope is required")

// Chunk is one retrievable segment of an ingested document.
type Chunk struct {
	// ID is the chunk row ID in the store.
	ID int64

	// DocumentID is the owning document's row ID.
	DocumentID int64

	// Filename is the owning document's original filename.
	Filename string

	// Folder is the owning document's folder — the isolation scope.
	Folder string

	// Index is the 0-based position of this chunk within its document.
	Index int

	// Content is the chunk text.
	Content string
}

// Hit pairs a chunk with its similarity to a query embedding (0.0–1.0 for
// L2-normalized vectors under cosine similarity).
type Hit struct {
	// Chunk is the retrieved segment.
	Chunk Chunk

	// Similarity is the cosine similarity between the query embedding and
	// this chunk's stored embedding.
	Similarity float64
}

// Point is one embedding bound to its chunk, ready for index upsert.
type Point struct {
	// Chunk is the segment this embedding belongs to.
	Chunk Chunk

	// Embedding is the L2-normalized vector of length Dimensions.
	Embedding []float32

	// Degraded marks embeddings synthesized by the deterministic fallback
	// rather than a real provider, so they can be found and recomputed later.
	Degraded bool
}

// Embedder converts text into dense vector embeddings. The same code path
// serves chunks at ingestion time and queries at query time.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input; every vector has length
	// Dimensions.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index persists embeddings and executes scoped top-K similarity search.
// Implementations must be safe to call from multiple goroutines.
type Index interface {
	// Upsert stores a batch of chunk embeddings. Re-upserting the same
	// chunk replaces its point rather than duplicating it.
	Upsert(ctx context.Context, points []Point) error

	// Search returns the chunks in scope whose similarity to the query
	// embedding meets threshold, ordered by similarity descending with
	// deterministic tie-breaking (chunk index, then document ID,
	// ascending), truncated to limit. Fewer than limit results is correct,
	// not an error. An empty scope returns ErrScopeRequired.
	Search(ctx context.Context, embedding []float32, scope string, limit int, threshold float64) ([]Hit, error)

	// Delete removes the points for the given chunk IDs.
	Delete(ctx context.Context, chunkIDs []int64) error

	// Close releases any resources held by the index.
	Close() error
}
