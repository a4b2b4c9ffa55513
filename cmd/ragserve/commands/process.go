package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/embedder"
	"github.com/ragstack/ragserve/internal/ingest"
	"github.com/ragstack/ragserve/internal/logging"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/store"
)

// NewProcessCmd constructs the `ragserve process` command, which runs the
// document processing pipeline synchronously for one folder.
func NewProcessCmd() *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process a document folder into the retrieval index",
		Long: `Extract, chunk, and embed every supported document in a folder.

The folder name resolves under the documents root (RAGSERVE_DOCUMENTS_PATH).
Documents already ingested into the folder are skipped by content hash, so
re-running is cheap and idempotent.

Required environment variables:
  EMBEDDING_PROVIDER   Embedding backend: titan, azure (default: titan)
  EMBEDDING_ENDPOINT   Embedding API endpoint
  EMBEDDING_API_KEY    Embedding API key
  QDRANT_ENABLED       Index into Qdrant instead of SQLite (default: false)

Examples:
  ragserve process --folder docs
  EMBEDDING_PROVIDER=azure ragserve process --folder handbook`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if folder == "" {
				return fmt.Errorf("process: --folder is required")
			}

			cfg := config.FromEnv()

			st, err := store.Open(cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("process: failed to open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			emb, err := embedder.New(&embedder.Config{
				Provider:   cfg.Embedding.Provider,
				Endpoint:   cfg.Embedding.Endpoint,
				APIKey:     cfg.Embedding.APIKey,
				Deployment: cfg.Embedding.Deployment,
				APIVersion: cfg.Embedding.APIVersion,
				Timeout:    cfg.EmbeddingTimeout(),
				Logger:     log,
			})
			if err != nil {
				return fmt.Errorf("process: failed to initialise embedder: %w", err)
			}

			var index rag.Index
			if cfg.Qdrant.Enabled {
				qidx, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
					Host:       cfg.Qdrant.Host,
					Port:       cfg.Qdrant.Port,
					Collection: cfg.Qdrant.Collection,
					APIKey:     cfg.Qdrant.APIKey,
					UseTLS:     cfg.Qdrant.TLS,
				})
				if err != nil {
					return fmt.Errorf("process: failed to connect to Qdrant at %s:%d: %w",
						cfg.Qdrant.Host, cfg.Qdrant.Port, err)
				}
				defer func() { _ = qidx.Close() }()
				index = qidx
			} else {
				index = store.NewIndex(st)
			}

			pipeline, err := ingest.NewPipeline(st, emb, index, &ingest.Config{
				BasePath:     cfg.Storage.DocumentsPath,
				ChunkSize:    cfg.Ingest.ChunkSize,
				ChunkOverlap: cfg.Ingest.ChunkOverlap,
			}, nil)
			if err != nil {
				return fmt.Errorf("process: failed to create pipeline: %w", err)
			}

			log.Info("processing folder", slog.String("folder", folder))

			res, err := pipeline.ProcessFolder(ctx, folder)
			if err != nil {
				return fmt.Errorf("process: %w", err)
			}

			log.Info("processing complete",
				slog.String("folder", folder),
				slog.Int("processed", res.Processed),
				slog.Int("duplicates", res.Duplicates),
				slog.Int("skipped", res.Skipped),
				slog.Int("chunks", res.ChunkCount),
				slog.Int("embeddings", res.EmbeddingCount))

			return nil
		},
	}

	cmd.Flags().StringVarP(&folder, "folder", "f", "", "Folder name under the documents root (required)")

	return cmd
}
