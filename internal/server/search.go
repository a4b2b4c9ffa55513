package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ragstack/ragserve/internal/store"
)

// handleSearch handles POST /api/search: retrieval only, no generation.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	_, folder, err := s.resolveScope(r, req.RagModelID, req.RagModelName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rag model not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	threshold := -1.0
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}
	hits, err := s.retriever.Retrieve(r.Context(), req.Query, folder, req.Limit, threshold)
	if err != nil {
		s.internalError(w, r, "search failed", err)
		return
	}

	resp := searchResponse{Documents: make([]searchDocument, 0, len(hits))}
	for _, h := range hits {
		var d searchDocument
		d.Document.ID = h.Chunk.ID
		d.Document.Filename = h.Chunk.Filename
		d.Document.ChunkIndex = h.Chunk.Index
		d.Document.Content = h.Chunk.Content
		d.Similarity = h.Similarity
		resp.Documents = append(resp.Documents, d)
	}
	writeJSON(w, http.StatusOK, resp)
}
