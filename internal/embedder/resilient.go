package embedder

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ragstack/ragserve/internal/rag"
)

// defaultCallTimeout bounds a single provider call when no explicit timeout
// is configured. Timeouts apply per call, never to a whole batch.
const defaultCallTimeout = 30 * time.Second

// Metrics holds the Prometheus metrics owned by the embedding layer.
// Register with NewMetrics so tests can inject a fresh registry.
type Metrics struct {
	// FallbackTotal counts embed calls that degraded to the deterministic
	// fallback after the provider failed and its retry failed.
	FallbackTotal prometheus.Counter
}

// NewMetrics registers the embedding metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FallbackTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragserve",
			Subsystem: "embedding",
			Name:      "fallback_total",
			Help:      "Total embed calls served by the deterministic fallback after provider failure.",
		}),
	}
}

// Resilient wraps a real rag.Embedder with the degraded-mode policy: each
// call gets a timeout and exactly one retry on failure; if both attempts
// fail the deterministic Fallback serves the batch instead. Degradation is
// recorded for observability but never surfaced as an error, so ingestion
// and query serving keep functioning through provider outages.
//
// Every returned vector — from the real provider or the fallback — is
// L2-normalized, keeping cosine similarity consistent across all stored
// embeddings.
type Resilient struct {
	// inner is the configured real provider.
	inner rag.Embedder
	// fallback synthesizes deterministic vectors when inner is unavailable.
	fallback Fallback
	// timeout bounds each individual provider call.
	timeout time.Duration
	// log is the structured logger for degradation warnings.
	log *slog.Logger
	// metrics counts fallback use. May be nil (metrics disabled).
	metrics *Metrics
}

// NewResilient constructs a Resilient wrapper around inner.
// timeout defaults to 30s if zero; log defaults to slog.Default; metrics may
// be nil to disable counting.
func NewResilient(inner rag.Embedder, timeout time.Duration, log *slog.Logger, metrics *Metrics) *Resilient {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resilient{
		inner:   inner,
		timeout: timeout,
		log:     log,
		metrics: metrics,
	}
}

// Embed satisfies rag.Embedder. See EmbedBatch for the degradation contract.
func (r *Resilient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, _, err := r.EmbedBatch(ctx, texts)
	return vecs, err
}

// EmbedBatch embeds texts through the real provider, retrying once on
// failure and degrading to the deterministic fallback when the retry also
// fails. degraded reports whether the fallback served this batch. The only
// returned error is context cancellation — provider failure is absorbed.
func (r *Resilient) EmbedBatch(ctx context.Context, texts []string) (vecs [][]float32, degraded bool, err error) {
	if len(texts) == 0 {
		return nil, false, nil
	}

	var attemptErr error
	for attempt := 0; attempt < 2; attempt++ {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		result, embedErr := r.inner.Embed(callCtx, texts)
		cancel()

		if embedErr == nil && validDimensions(result, len(texts)) {
			return normalizeAll(result), false, nil
		}
		if embedErr == nil {
			// Wrong shape is a provider failure too — the dimension
			// invariant is not negotiable.
			r.log.Warn("embedder: provider returned malformed batch",
				slog.Int("texts", len(texts)),
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		attemptErr = embedErr
		r.log.Warn("embedder: provider call failed",
			slog.Int("attempt", attempt+1),
			slog.Any("error", embedErr),
		)
	}

	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	// Both attempts failed — degrade rather than fail the caller.
	r.log.Warn("embedder: degrading to deterministic fallback",
		slog.Int("texts", len(texts)),
		slog.Any("last_error", attemptErr),
	)
	if r.metrics != nil {
		r.metrics.FallbackTotal.Add(float64(len(texts)))
	}

	vecs, _ = r.fallback.Embed(ctx, texts)
	return vecs, true, nil
}

// validDimensions reports whether the batch has the expected length and
// every vector is exactly rag.Dimensions long.
func validDimensions(vecs [][]float32, want int) bool {
	if len(vecs) != want {
		return false
	}
	for _, v := range vecs {
		if len(v) != rag.Dimensions {
			return false
		}
	}
	return true
}

// normalizeAll L2-normalizes every vector in the batch in place.
func normalizeAll(vecs [][]float32) [][]float32 {
	for i := range vecs {
		vecs[i] = normalize(vecs[i])
	}
	return vecs
}
