package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant-backed index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Index backed by a Qdrant instance. Chunks live in a
// single cosine collection with the folder kept as an indexed payload field;
// every search carries a folder filter, so cross-folder leakage is impossible
// at the query layer. Retrieval is approximate (HNSW) — exact ranking is the
// SQLite-backed index's job.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex creates a QdrantIndex, ensuring the target collection and
// its folder payload index exist, and returns a ready-to-use Index.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	ix := &QdrantIndex{client: client, cfg: cfg}
	if err := ix.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return ix, nil
}

// ensureCollection creates the collection and the folder keyword index if
// they do not already exist.
func (ix *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := ix.client.CollectionExists(ctx, ix.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		err = ix.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: ix.cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to create collection %q: %w", ix.cfg.Collection, err)
		}
	}

	// Keyword index on the scope field; Qdrant treats a repeat create as a no-op.
	_, err = ix.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: ix.cfg.Collection,
		FieldName:      "folder",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to index folder field: %w", err)
	}
	return nil
}

// Upsert stores a batch of chunk embeddings. Points are keyed by chunk ID,
// so a re-upserted chunk replaces its point rather than duplicating it.
func (ix *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload := map[string]any{
			"content":     p.Chunk.Content,
			"filename":    p.Chunk.Filename,
			"folder":      p.Chunk.Folder,
			"document_id": p.Chunk.DocumentID,
			"chunk_index": int64(p.Chunk.Index),
			"degraded":    p.Degraded,
		}
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(p.Chunk.ID)),
			Vectors: qdrant.NewVectors(p.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := ix.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: ix.cfg.Collection,
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search performs a folder-filtered cosine similarity search. Chunks are
// hydrated entirely from the point payload; the store is never consulted.
func (ix *QdrantIndex) Search(ctx context.Context, embedding []float32, scope string, limit int, threshold float64) ([]Hit, error) {
	if scope == "" {
		return nil, ErrScopeRequired
	}
	if limit <= 0 {
		return nil, nil
	}

	qlimit := uint64(limit)
	qthreshold := float32(threshold)
	results, err := ix.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: ix.cfg.Collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &qlimit,
		ScoreThreshold: &qthreshold,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("folder", scope),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		h := Hit{Similarity: float64(r.Score)}
		h.Chunk.ID = int64(r.Id.GetNum())
		if p := r.Payload; p != nil {
			if v, ok := p["content"]; ok {
				h.Chunk.Content = v.GetStringValue()
			}
			if v, ok := p["filename"]; ok {
				h.Chunk.Filename = v.GetStringValue()
			}
			if v, ok := p["folder"]; ok {
				h.Chunk.Folder = v.GetStringValue()
			}
			if v, ok := p["document_id"]; ok {
				h.Chunk.DocumentID = v.GetIntegerValue()
			}
			if v, ok := p["chunk_index"]; ok {
				h.Chunk.Index = int(v.GetIntegerValue())
			}
		}
		hits = append(hits, h)
	}

	// Qdrant orders by score but leaves equal scores unordered; re-sort so
	// equal-similarity results are stable across runs.
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Chunk.Index != b.Chunk.Index {
			return a.Chunk.Index < b.Chunk.Index
		}
		return a.Chunk.DocumentID < b.Chunk.DocumentID
	})
	return hits, nil
}

// Delete removes the points for the given chunk IDs.
func (ix *QdrantIndex) Delete(ctx context.Context, chunkIDs []int64) error {
	ids := make([]*qdrant.PointId, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		ids = append(ids, qdrant.NewIDNum(uint64(id)))
	}

	_, err := ix.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: ix.cfg.Collection,
		Points:         qdrant.NewPointsSelector(ids...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}
	return nil
}

// Ping reports whether the Qdrant instance is reachable.
func (ix *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := ix.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Name identifies this backend in readiness reports.
func (ix *QdrantIndex) Name() string { return "qdrant" }

// Close closes the underlying Qdrant gRPC connection.
func (ix *QdrantIndex) Close() error {
	return ix.client.Close()
}
