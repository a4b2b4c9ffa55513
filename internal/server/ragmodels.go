package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ragstack/ragserve/internal/store"
)

// handleRagModelCreate handles POST /api/rag-models.
func (s *Server) handleRagModelCreate(w http.ResponseWriter, r *http.Request) {
	var req createRagModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.VectorID <= 0 {
		writeError(w, http.StatusBadRequest, "vector_id is required")
		return
	}

	// The bound vector must exist; a dangling binding would make every
	// query through this model fail.
	if _, err := s.store.GetVector(r.Context(), req.VectorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vector not found")
			return
		}
		s.internalError(w, r, "vector lookup failed", err)
		return
	}

	m, err := s.store.CreateRagModel(r.Context(), req.Name, req.VectorID, req.SystemPrompt, req.Context)
	if err != nil {
		if isConflict(err) {
			writeError(w, http.StatusConflict, "rag model name already exists")
			return
		}
		s.internalError(w, r, "rag model create failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// handleRagModelList handles GET /api/rag-models.
func (s *Server) handleRagModelList(w http.ResponseWriter, r *http.Request) {
	models, err := s.store.ListRagModels(r.Context())
	if err != nil {
		s.internalError(w, r, "rag model list failed", err)
		return
	}
	if models == nil {
		models = []store.RagModel{}
	}
	writeJSON(w, http.StatusOK, models)
}

// handleRagModelUpdate handles PUT /api/rag-models/{id}. Omitting is_active
// leaves the model active.
func (s *Server) handleRagModelUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateRagModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	m, err := s.store.UpdateRagModel(r.Context(), id, req.SystemPrompt, req.Context, isActive)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rag model not found")
			return
		}
		s.internalError(w, r, "rag model update failed", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
