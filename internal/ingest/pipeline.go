// Package ingest implements the folder ingestion pipeline and its background
// runner. A pipeline run walks the documents under a folder, extracts and
// chunks each file, embeds the chunks, and upserts the embeddings into the
// index. Byte-identical content is detected by hash and skipped, so
// reprocessing a folder is idempotent.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ragstack/ragserve/internal/chunk"
	"github.com/ragstack/ragserve/internal/extract"
	"github.com/ragstack/ragserve/internal/logging"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/store"
)

// BatchEmbedder is the embedding collaborator for ingestion. The degraded
// flag reports that the batch was synthesized by the deterministic fallback
// rather than a real provider.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) (vecs [][]float32, degraded bool, err error)
}

// Metrics holds the Prometheus instruments for the ingestion pipeline.
type Metrics struct {
	// DocumentsProcessed counts documents that produced embeddings.
	DocumentsProcessed prometheus.Counter

	// DocumentsSkipped counts documents dropped by a per-document failure.
	DocumentsSkipped prometheus.Counter

	// JobsTotal counts completed background jobs by outcome (ready, failed).
	JobsTotal *prometheus.CounterVec
}

// NewMetrics registers the ingestion metrics on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DocumentsProcessed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "ragserve",
			Subsystem: "ingest",
			Name:      "documents_processed_total",
			Help:      "Documents that were extracted, chunked, and embedded.",
		}),
		DocumentsSkipped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "ragserve",
			Subsystem: "ingest",
			Name:      "documents_skipped_total",
			Help:      "Documents skipped because of a per-document failure.",
		}),
		JobsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragserve",
			Subsystem: "ingest",
			Name:      "jobs_total",
			Help:      "Completed background processing jobs by outcome.",
		}, []string{"outcome"}),
	}
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BasePath is the directory that folder names resolve under.
	BasePath string

	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to chunk.DefaultSize if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared between consecutive
	// chunks. Defaults to chunk.DefaultOverlap if negative or zero.
	ChunkOverlap int
}

// Result summarizes one folder processing run.
type Result struct {
	// Processed is the number of documents that produced embeddings.
	Processed int

	// Skipped is the number of documents dropped by a per-document failure.
	Skipped int

	// Duplicates is the number of documents whose content was already
	// ingested into the folder.
	Duplicates int

	// ChunkCount is the total number of chunks written this run.
	ChunkCount int

	// EmbeddingCount is the total number of embeddings upserted this run.
	EmbeddingCount int
}

// Pipeline orchestrates the extract → dedup → chunk → embed → upsert flow
// for the documents in a folder.
type Pipeline struct {
	// store persists documents, chunks, and lifecycle state.
	store *store.Store

	// embedder converts chunk batches into vectors, degrading instead of
	// failing when the provider is unavailable.
	embedder BatchEmbedder

	// index receives the embedded chunks.
	index rag.Index

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// metrics instruments the run. Never nil.
	metrics *Metrics
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(st *store.Store, embedder BatchEmbedder, index rag.Index, cfg *Config, metrics *Metrics) (*Pipeline, error) {
	if st == nil {
		return nil, fmt.Errorf("ingest: store must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingest: index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunk.DefaultSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = chunk.DefaultOverlap
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Pipeline{
		store:    st,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		metrics:  metrics,
	}, nil
}

// ProcessFolder ingests every supported document under folder. One
// document's failure is logged and counted, never fatal: the run continues
// with the remaining documents. Returns an error only when the folder
// itself cannot be read or the context is canceled.
func (p *Pipeline) ProcessFolder(ctx context.Context, folder string) (Result, error) {
	log := logging.FromContext(ctx).With("folder", folder)
	var res Result

	dir := filepath.Join(p.cfg.BasePath, folder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, fmt.Errorf("ingest: reading folder %s: %w", dir, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if entry.IsDir() || !extract.Supported(entry.Name()) {
			continue
		}

		if err := p.processFile(ctx, folder, dir, entry.Name(), &res); err != nil {
			log.Warn("document skipped", "filename", entry.Name(), "error", err)
			p.metrics.DocumentsSkipped.Inc()
			res.Skipped++
		}
	}

	log.Info("folder processed",
		"processed", res.Processed,
		"skipped", res.Skipped,
		"duplicates", res.Duplicates,
		"chunks", res.ChunkCount,
		"embeddings", res.EmbeddingCount)
	return res, nil
}

// processFile runs one document through the pipeline, updating res on
// success. Any returned error means the document was not ingested.
func (p *Pipeline) processFile(ctx context.Context, folder, dir, filename string, res *Result) error {
	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	text, err := extract.Extract(filename, data)
	if err != nil {
		return err
	}

	hash := chunk.Hash(text)
	exists, err := p.store.HasDocument(ctx, hash, folder)
	if err != nil {
		return err
	}
	if exists {
		res.Duplicates++
		return nil
	}

	texts := chunk.Split(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(texts) == 0 {
		// Empty after extraction; nothing to ingest.
		return nil
	}

	docID, _, err := p.store.InsertDocument(ctx, filename, folder, text, hash)
	if err != nil {
		return err
	}
	chunkIDs, err := p.store.InsertChunks(ctx, docID, hash, texts)
	if err != nil {
		return err
	}

	vecs, degraded, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	points := make([]rag.Point, 0, len(texts))
	for i := range texts {
		points = append(points, rag.Point{
			Chunk: rag.Chunk{
				ID:         chunkIDs[i],
				DocumentID: docID,
				Filename:   filename,
				Folder:     folder,
				Index:      i,
				Content:    texts[i],
			},
			Embedding: vecs[i],
			Degraded:  degraded,
		})
	}
	if err := p.index.Upsert(ctx, points); err != nil {
		return fmt.Errorf("upserting embeddings: %w", err)
	}

	p.metrics.DocumentsProcessed.Inc()
	res.Processed++
	res.ChunkCount += len(texts)
	res.EmbeddingCount += len(points)
	return nil
}
