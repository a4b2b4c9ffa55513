package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ragstack/ragserve/internal/logging"
)

// probeTimeout caps each dependency probe during a readiness check, so
// /api/ready answers quickly even when a dependency hangs rather than
// refuses.
const probeTimeout = 5 * time.Second

// Pinger is implemented by any dependency that can report its own
// reachability: nil when healthy, a descriptive error otherwise.
// Implementations must be safe for concurrent use — readiness probes run in
// parallel.
type Pinger interface {
	Ping(ctx context.Context) error

	// Name is the label shown in readiness responses (e.g. "sqlite",
	// "qdrant", "generation").
	Name() string
}

// MultiPinger folds several Pingers into one, reporting the first failure.
type MultiPinger struct {
	pingers []Pinger
}

func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

func (m *MultiPinger) Name() string { return "multi" }

// readyCheck is the per-dependency result of a readiness probe.
type readyCheck struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	// Error carries the failure reason when OK is false.
	Error string `json:"error,omitempty"`
	// DurationMS is how long the probe took, failed or not.
	DurationMS int64 `json:"duration_ms"`
}

// readyResponse is the JSON body of GET /api/ready.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. All registered dependency probes run
// concurrently, each under its own timeout, so the response time tracks the
// slowest probe rather than their sum. 200 when every dependency is
// reachable, 503 otherwise. Unlike /api/health (process liveness), this
// endpoint reflects actual dependency state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()

			start := time.Now()
			err := p.Ping(ctx)
			checks[i] = readyCheck{
				Name:       p.Name(),
				OK:         err == nil,
				DurationMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				checks[i].Error = err.Error()
				log.Warn("readiness probe failed", "dependency", p.Name(), "error", err)
			}
		}()
	}
	wg.Wait()

	ready := true
	for _, c := range checks {
		ready = ready && c.OK
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResponse{Ready: ready, Checks: checks})
}
