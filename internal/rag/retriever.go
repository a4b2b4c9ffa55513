package rag

import (
	"context"
	"fmt"
)

// Retriever embeds a query and runs a scoped similarity search against the
// index. The query travels through the same Embedder implementation as the
// ingested chunks, so query and corpus vectors always come from the same
// provider (or the same degraded fallback).
type Retriever struct {
	// embedder converts the query text to a dense vector.
	embedder Embedder

	// index performs the scoped similarity search.
	index Index

	// defaultLimit is the result count used when the caller passes 0.
	defaultLimit int

	// defaultThreshold is the minimum similarity used when the caller
	// passes a negative threshold.
	defaultThreshold float64
}

// NewRetriever constructs a Retriever from the given Embedder and Index.
// defaultLimit sets the fallback result count when Retrieve is called with
// limit=0; defaultThreshold the similarity cutoff for negative thresholds.
func NewRetriever(embedder Embedder, index Index, defaultLimit int, defaultThreshold float64) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if defaultThreshold < 0 {
		defaultThreshold = 0
	}
	return &Retriever{
		embedder:         embedder,
		index:            index,
		defaultLimit:     defaultLimit,
		defaultThreshold: defaultThreshold,
	}, nil
}

// Retrieve embeds the query and returns the most similar chunks within scope.
// limit=0 applies the configured default; a negative threshold applies the
// configured default cutoff. The scope is validated before any embedding
// call is made, so an unscoped query never reaches a provider.
func (r *Retriever) Retrieve(ctx context.Context, query, scope string, limit int, threshold float64) ([]Hit, error) {
	if scope == "" {
		return nil, ErrScopeRequired
	}
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if threshold < 0 {
		threshold = r.defaultThreshold
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	hits, err := r.index.Search(ctx, embeddings[0], scope, limit, threshold)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return hits, nil
}
