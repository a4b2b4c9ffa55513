package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/ragstack/ragserve/internal/rag"
)

// SearchScoped computes cosine similarity between the query embedding and
// every embedding whose owning chunk's document lies in folder, keeps hits
// meeting threshold, orders them by similarity descending with deterministic
// tie-breaking (chunk index ascending, then document ID ascending), and
// truncates to limit. Returning fewer than limit hits is correct, not an
// error; limit <= 0 returns no hits.
//
// The folder scope is non-optional. There is no unscoped variant of this
// query in the package — that is the multi-tenant isolation guarantee.
func (s *Store) SearchScoped(ctx context.Context, embedding []float32, folder string, limit int, threshold float64) ([]rag.Hit, error) {
	if folder == "" {
		return nil, rag.ErrScopeRequired
	}
	if len(embedding) != rag.Dimensions {
		return nil, fmt.Errorf("store: query embedding has %d dimensions, want %d", len(embedding), rag.Dimensions)
	}
	if limit <= 0 {
		return nil, nil
	}

	query := normalized(embedding)

	const q = `
SELECT c.id, c.document_id, d.filename, d.folder, c.chunk_index, c.content, e.embedding
FROM   embeddings e
JOIN   chunks c    ON c.id = e.chunk_id
JOIN   documents d ON d.id = c.document_id
WHERE  d.folder = ?`

	rows, err := s.db.QueryContext(ctx, q, folder)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var hits []rag.Hit
	for rows.Next() {
		var ch rag.Chunk
		var blob []byte
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Filename, &ch.Folder, &ch.Index, &ch.Content, &blob); err != nil {
			return nil, fmt.Errorf("store: search scan: %w", err)
		}

		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("store: chunk %d: %w", ch.ID, err)
		}

		// Stored vectors are L2-normalized at write time, so the dot
		// product is the cosine similarity.
		sim := dot(query, vec)
		if sim < threshold {
			continue
		}
		hits = append(hits, rag.Hit{Chunk: ch, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: search rows: %w", err)
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// sortHits orders hits by similarity descending; ties break by chunk index
// ascending, then document ID ascending, so identical queries always return
// identical orderings.
func sortHits(hits []rag.Hit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Chunk.Index != b.Chunk.Index {
			return a.Chunk.Index < b.Chunk.Index
		}
		return a.Chunk.DocumentID < b.Chunk.DocumentID
	})
}

// dot returns the float64 dot product of two equal-length vectors.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// normalized returns an L2-normalized copy of vec. A zero vector is
// returned as-is.
func normalized(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 || sum == 1 {
		return vec
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) * inv)
	}
	return out
}

// encodeVector packs a rag.Dimensions-length vector into a little-endian
// float32 blob for storage.
func encodeVector(vec []float32) ([]byte, error) {
	if len(vec) != rag.Dimensions {
		return nil, fmt.Errorf("store: embedding has %d dimensions, want %d", len(vec), rag.Dimensions)
	}
	blob := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob, nil
}

// decodeVector unpacks a stored embedding blob, verifying the dimension
// invariant on the way out.
func decodeVector(blob []byte) ([]float32, error) {
	if len(blob) != 4*rag.Dimensions {
		return nil, fmt.Errorf("store: embedding blob is %d bytes, want %d", len(blob), 4*rag.Dimensions)
	}
	vec := make([]float32, rag.Dimensions)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// Index adapts the Store to the rag.Index interface so the retriever can
// use the SQLite-backed exact search interchangeably with an approximate
// backend such as Qdrant.
type Index struct {
	// store is the backing system of record.
	store *Store
}

// NewIndex wraps the store as a rag.Index.
func NewIndex(s *Store) *Index {
	return &Index{store: s}
}

// Upsert stores each point's embedding. A re-upserted chunk keeps its
// original row (chunk_id uniqueness — one winner, losers are no-ops).
func (ix *Index) Upsert(ctx context.Context, points []rag.Point) error {
	for _, p := range points {
		if err := ix.store.InsertEmbedding(ctx, p.Chunk.ID, p.Embedding, p.Degraded); err != nil {
			return err
		}
	}
	return nil
}

// Search delegates to the store's scoped similarity search.
func (ix *Index) Search(ctx context.Context, embedding []float32, scope string, limit int, threshold float64) ([]rag.Hit, error) {
	return ix.store.SearchScoped(ctx, embedding, scope, limit, threshold)
}

// Delete removes the embeddings for the given chunk IDs.
func (ix *Index) Delete(ctx context.Context, chunkIDs []int64) error {
	const q = `DELETE FROM embeddings WHERE chunk_id = ?`
	for _, id := range chunkIDs {
		if _, err := ix.store.db.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("store: delete embedding: %w", err)
		}
	}
	return nil
}

// Close is a no-op — the Store owns the database handle.
func (ix *Index) Close() error { return nil }
