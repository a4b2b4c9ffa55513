package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ragstack/ragserve/internal/generate"
	"github.com/ragstack/ragserve/internal/logging"
	"github.com/ragstack/ragserve/internal/rag"
	"github.com/ragstack/ragserve/internal/store"
)

// resolveScope resolves a RAG model reference (ID or name) to the model and
// its bound vector's folder. Every query and search is scoped this way;
// there is no unscoped path.
func (s *Server) resolveScope(r *http.Request, modelID int64, modelName string) (store.RagModel, string, error) {
	ctx := r.Context()

	var m store.RagModel
	var err error
	switch {
	case modelID > 0:
		m, err = s.store.GetRagModel(ctx, modelID)
	case modelName != "":
		m, err = s.store.GetRagModelByName(ctx, modelName)
	default:
		return store.RagModel{}, "", errors.New("rag_model_id or rag_model_name is required")
	}
	if err != nil {
		return store.RagModel{}, "", err
	}

	v, err := s.store.GetVector(ctx, m.VectorID)
	if err != nil {
		return store.RagModel{}, "", err
	}
	return m, v.FolderName, nil
}

// handleQuery handles POST /api/query: retrieve, assemble, generate.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := "error"
	defer func() {
		s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		outcome = "bad_request"
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		outcome = "bad_request"
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	model, folder, err := s.resolveScope(r, req.RagModelID, req.RagModelName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			outcome = "not_found"
			writeError(w, http.StatusNotFound, "rag model not found")
			return
		}
		outcome = "bad_request"
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	threshold := -1.0
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}
	hits, err := s.retriever.Retrieve(r.Context(), req.Query, folder, req.Limit, threshold)
	if err != nil {
		s.internalError(w, r, "retrieval failed", err)
		return
	}

	assembled := s.assembler.Assemble(model.Context, req.Context, hits)
	s.metrics.queryRetrievedChunks.Observe(float64(len(assembled.Sources)))
	if assembled.LowConfidence {
		logging.FromContext(r.Context()).Info("no chunks passed the similarity threshold",
			"rag_model", model.Name)
	}

	systemPrompt := model.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = req.SystemPrompt
	}

	if s.generator == nil {
		s.internalError(w, r, "generation unavailable", errors.New("no generation client configured"))
		return
	}
	gen, err := s.generator.Generate(r.Context(), generate.Request{
		SystemPrompt: systemPrompt,
		Context:      assembled.Context,
		Query:        req.Query,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
	})
	if err != nil {
		outcome = "generation_error"
		logging.FromContext(r.Context()).Error("generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "generation service error")
		return
	}

	outcome = "ok"
	sources := assembled.Sources
	if sources == nil {
		sources = []rag.Source{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Answer:      gen.Answer,
		Sources:     sources,
		ContextUsed: assembled.Context,
	})
}
