package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ragstack/ragserve/internal/logging"
	"github.com/ragstack/ragserve/internal/store"
)

// ErrAlreadyProcessing is returned by Trigger when the vector collection
// already has a run in flight. Triggers are rejected, never queued behind an
// in-flight run.
var ErrAlreadyProcessing = errors.New("ingest: vector is already processing")

// ErrQueueFull is returned by Trigger when the job queue has no room. The
// processing claim is released before returning, so the caller can retry.
var ErrQueueFull = errors.New("ingest: job queue is full")

// defaultQueueSize bounds the number of pending jobs.
const defaultQueueSize = 16

// job is one queued processing request.
type job struct {
	id       string
	vectorID int64
	folder   string
}

// Runner executes folder processing jobs on a background worker. Triggering
// returns immediately with a job ID; the vector's lifecycle state records
// the outcome (ready when at least one document produced embeddings, failed
// otherwise).
type Runner struct {
	// store transitions vector lifecycle state.
	store *store.Store

	// pipeline performs the actual folder processing.
	pipeline *Pipeline

	// metrics counts completed jobs by outcome. Never nil.
	metrics *Metrics

	jobs chan job
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewRunner constructs a Runner. queueSize bounds pending jobs; non-positive
// selects the default.
func NewRunner(st *store.Store, pipeline *Pipeline, queueSize int, metrics *Metrics) (*Runner, error) {
	if st == nil {
		return nil, fmt.Errorf("ingest: store must not be nil")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("ingest: pipeline must not be nil")
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if metrics == nil {
		metrics = pipeline.metrics
	}
	return &Runner{
		store:    st,
		pipeline: pipeline,
		metrics:  metrics,
		jobs:     make(chan job, queueSize),
	}, nil
}

// Start launches the worker goroutine. The worker runs until Stop is called
// or ctx is canceled. Calling Start twice is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	// Rows left in processing by a previous process have no worker behind
	// them and would reject every trigger. Fail them so reprocessing works.
	if n, err := r.store.FailOrphanedProcessing(ctx); err != nil {
		logging.FromContext(ctx).Warn("resetting orphaned processing vectors failed", "error", err)
	} else if n > 0 {
		logging.FromContext(ctx).Info("reset orphaned processing vectors", "count", n)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case j, ok := <-r.jobs:
				if !ok {
					return
				}
				r.run(ctx, j)
			}
		}
	}()
}

// Stop closes the queue and waits for the worker to drain it.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	close(r.jobs)
	r.wg.Wait()
}

// Trigger requests background processing of the given vector's folder. The
// claim to the processing state is atomic: a vector already processing
// returns ErrAlreadyProcessing, and triggering from empty, ready, or failed
// always succeeds (reprocessing is allowed and idempotent). Enqueueing never
// blocks: a full queue releases the claim and returns ErrQueueFull. The
// returned job ID identifies the run in logs.
func (r *Runner) Trigger(ctx context.Context, vectorID int64) (string, error) {
	v, err := r.store.GetVector(ctx, vectorID)
	if err != nil {
		return "", err
	}

	claimed, err := r.store.TryClaimProcessing(ctx, vectorID)
	if err != nil {
		return "", err
	}
	if !claimed {
		return "", ErrAlreadyProcessing
	}

	j := job{id: uuid.NewString(), vectorID: vectorID, folder: v.FolderName}
	select {
	case r.jobs <- j:
	default:
		// No room in the queue. Holding the claim here would pin the HTTP
		// request and leave the vector processing with no run behind it;
		// release it so a later trigger can retry.
		_ = r.store.SetVectorState(context.WithoutCancel(ctx), vectorID, v.State)
		return "", ErrQueueFull
	}

	logging.FromContext(ctx).Info("processing triggered",
		"job_id", j.id, "vector_id", vectorID, "folder", v.FolderName)
	return j.id, nil
}

// run executes one job and records its outcome in the vector's state.
func (r *Runner) run(ctx context.Context, j job) {
	log := logging.FromContext(ctx).With("job_id", j.id, "vector_id", j.vectorID)

	res, err := r.pipeline.ProcessFolder(ctx, j.folder)

	state := store.VectorStateReady
	if err != nil || res.Processed+res.Duplicates == 0 {
		state = store.VectorStateFailed
	}
	if err != nil {
		log.Error("processing run failed", "error", err)
	}

	// Record the outcome even when ctx triggered the failure.
	if serr := r.store.SetVectorState(context.WithoutCancel(ctx), j.vectorID, state); serr != nil {
		log.Error("recording run outcome failed", "error", serr)
	}
	r.metrics.JobsTotal.WithLabelValues(string(state)).Inc()

	log.Info("processing run finished",
		"state", string(state),
		"processed", res.Processed,
		"skipped", res.Skipped,
		"duplicates", res.Duplicates,
		"embeddings", res.EmbeddingCount)
}
