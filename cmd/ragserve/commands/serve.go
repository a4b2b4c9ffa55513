package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/embedder"
	"github.com/ragstack/ragserve/internal/generate"
	"github.com/ragstack/ragserve/internal/ingest"
	"github.com/ragstack/ragserve/internal/logging"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/server"
	"github.com/ragstack/ragserve/internal/store"
)

// NewServeCmd constructs the `ragserve serve` command, which starts the
// HTTP server exposing the retrieval API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragserve HTTP server",
		Long: `Start the ragserve HTTP server.

The server exposes the retrieval API: scoped query and search, vector
collection lifecycle, RAG model management, and background document
processing.

Examples:
  ragserve serve
  ragserve serve --port 9090
  EMBEDDING_PROVIDER=azure ragserve serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			cfg := config.FromEnv()
			log.Info("serve starting",
				slog.String("provider", cfg.Embedding.Provider),
				slog.Bool("qdrant", cfg.Qdrant.Enabled))

			st, err := store.Open(cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("serve: failed to open store: %w", err)
			}
			defer func() { _ = st.Close() }()
			log.Info("store opened", slog.String("path", cfg.Storage.DBPath))

			reg := prometheus.NewRegistry()

			emb, err := embedder.New(&embedder.Config{
				Provider:   cfg.Embedding.Provider,
				Endpoint:   cfg.Embedding.Endpoint,
				APIKey:     cfg.Embedding.APIKey,
				Deployment: cfg.Embedding.Deployment,
				APIVersion: cfg.Embedding.APIVersion,
				Timeout:    cfg.EmbeddingTimeout(),
				Metrics:    embedder.NewMetrics(reg),
				Logger:     log,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			var index rag.Index
			pingers := []server.Pinger{server.NewStorePinger(st)}
			if cfg.Qdrant.Enabled {
				qidx, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
					Host:       cfg.Qdrant.Host,
					Port:       cfg.Qdrant.Port,
					Collection: cfg.Qdrant.Collection,
					APIKey:     cfg.Qdrant.APIKey,
					UseTLS:     cfg.Qdrant.TLS,
				})
				if err != nil {
					return fmt.Errorf("serve: failed to connect to Qdrant at %s:%d: %w",
						cfg.Qdrant.Host, cfg.Qdrant.Port, err)
				}
				defer func() { _ = qidx.Close() }()
				index = qidx
				pingers = append(pingers, qidx)
				log.Info("qdrant index ready",
					slog.String("host", cfg.Qdrant.Host),
					slog.Int("port", cfg.Qdrant.Port),
					slog.String("collection", cfg.Qdrant.Collection))
			} else {
				index = store.NewIndex(st)
				log.Info("sqlite index ready")
			}

			retriever, err := rag.NewRetriever(emb, index, cfg.Search.DefaultLimit, cfg.Search.SimilarityThreshold)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			assembler := rag.NewAssembler(cfg.Search.ContextBudget, cfg.Search.ContextMaxBlocks)

			var genClient *generate.Client
			if cfg.Generation.Endpoint != "" {
				genClient, err = generate.NewClient(generate.Config{
					Endpoint: cfg.Generation.Endpoint,
					APIKey:   cfg.Generation.APIKey,
					Timeout:  cfg.GenerationTimeout(),
				})
				if err != nil {
					return fmt.Errorf("serve: failed to create generation client: %w", err)
				}
				pingers = append(pingers, genClient)
			} else {
				log.Warn("GENERATION_ENDPOINT not set — /api/query will fail, /api/search is unaffected")
			}

			ingestMetrics := ingest.NewMetrics(reg)
			pipeline, err := ingest.NewPipeline(st, emb, index, &ingest.Config{
				BasePath:     cfg.Storage.DocumentsPath,
				ChunkSize:    cfg.Ingest.ChunkSize,
				ChunkOverlap: cfg.Ingest.ChunkOverlap,
			}, ingestMetrics)
			if err != nil {
				return fmt.Errorf("serve: failed to create pipeline: %w", err)
			}

			runner, err := ingest.NewRunner(st, pipeline, cfg.Ingest.QueueSize, ingestMetrics)
			if err != nil {
				return fmt.Errorf("serve: failed to create ingest runner: %w", err)
			}
			runner.Start(ctx)
			defer runner.Stop()

			serverCfg := &server.Config{
				Host:      cfg.Server.Host,
				Port:      cfg.Server.Port,
				Logger:    log,
				Pingers:   pingers,
				RateLimit: cfg.Server.RateLimitRPS,
				RateBurst: cfg.Server.RateLimitBurst,
				APIKey:    cfg.Server.APIKey,
				Registry:  reg,
			}
			if cmd.Flags().Changed("host") {
				serverCfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				serverCfg.Port = port
			}

			var srv *server.Server
			if genClient != nil {
				srv, err = server.New(st, retriever, assembler, genClient, runner, serverCfg)
			} else {
				srv, err = server.New(st, retriever, assembler, nil, runner, serverCfg)
			}
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
