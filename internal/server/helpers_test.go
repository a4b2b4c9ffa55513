package server

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragstack/ragserve/internal/generate"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes for handler tests
// ---------------------------------------------------------------------------

// fakeRetriever implements the retriever interface and records the last call.
type fakeRetriever struct {
	// hits is returned from every Retrieve call.
	hits []rag.Hit
	// err is returned as the error value.
	err error

	gotQuery     string
	gotScope     string
	gotLimit     int
	gotThreshold float64
}

func (f *fakeRetriever) Retrieve(_ context.Context, query, scope string, limit int, threshold float64) ([]rag.Hit, error) {
	f.gotQuery = query
	f.gotScope = scope
	f.gotLimit = limit
	f.gotThreshold = threshold
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

// fakeGenerator implements the generator interface and records the request.
type fakeGenerator struct {
	answer string
	err    error
	gotReq generate.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req generate.Request) (generate.Response, error) {
	f.gotReq = req
	if f.err != nil {
		return generate.Response{}, f.err
	}
	return generate.Response{Answer: f.answer}, nil
}

// fakeTrigger implements the processTrigger interface.
type fakeTrigger struct {
	jobID string
	err   error

	gotVectorID int64
}

func (f *fakeTrigger) Trigger(_ context.Context, vectorID int64) (string, error) {
	f.gotVectorID = vectorID
	if f.err != nil {
		return "", f.err
	}
	return f.jobID, nil
}

// ---------------------------------------------------------------------------
// Test server construction
// ---------------------------------------------------------------------------

// newTestServer builds a *Server around an in-memory store and the given
// fakes. Handlers are invoked directly, so no listener or middleware chain
// is involved.
func newTestServer(t *testing.T, ret retriever, gen generator, trig processTrigger) (*Server, *store.Store) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	s := &Server{
		store:     st,
		retriever: ret,
		assembler: rag.NewAssembler(0, 0),
		generator: gen,
		trigger:   trig,
		cfg:       &Config{Port: 8080},
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:   newServerMetrics(prometheus.NewRegistry()),
	}
	return s, st
}

// seedModel creates a vector collection and an active RAG model bound to it,
// returning both.
func seedModel(t *testing.T, st *store.Store, folder string) (store.Vector, store.RagModel) {
	t.Helper()

	v, err := st.CreateVector(context.Background(), "kb-"+folder, folder, "")
	if err != nil {
		t.Fatalf("create vector: %v", err)
	}
	m, err := st.CreateRagModel(context.Background(), "model-"+folder, v.ID, "You are a support assistant.", "Product docs follow.")
	if err != nil {
		t.Fatalf("create rag model: %v", err)
	}
	return v, m
}

// testHit builds a retrieval hit with enough fields for assembly and
// response mapping.
func testHit(id int64, filename string, index int, content string, sim float64) rag.Hit {
	return rag.Hit{
		Chunk: rag.Chunk{
			ID:         id,
			DocumentID: id,
			Filename:   filename,
			Index:      index,
			Content:    content,
		},
		Similarity: sim,
	}
}
