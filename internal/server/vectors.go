package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ragstack/ragserve/internal/ingest"
	"github.com/ragstack/ragserve/internal/logging"
	"github.com/ragstack/ragserve/internal/store"
)

// handleVectorCreate handles POST /api/vectors. The new collection is
// created in the empty state and processing starts immediately.
func (s *Server) handleVectorCreate(w http.ResponseWriter, r *http.Request) {
	var req createVectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.FolderName == "" {
		writeError(w, http.StatusBadRequest, "folder_name is required")
		return
	}

	v, err := s.store.CreateVector(r.Context(), req.Name, req.FolderName, req.Description)
	if err != nil {
		if isConflict(err) {
			writeError(w, http.StatusConflict, "vector name already exists")
			return
		}
		s.internalError(w, r, "vector create failed", err)
		return
	}

	resp := vectorActionResponse{
		Success:  true,
		VectorID: v.ID,
		Message:  "vector created",
	}
	if s.trigger != nil {
		jobID, err := s.trigger.Trigger(r.Context(), v.ID)
		if err != nil {
			// The collection exists; processing can be retried via
			// POST /api/vectors/{id}/process.
			logging.FromContext(r.Context()).Warn("initial processing not started",
				"vector_id", v.ID, "error", err)
			resp.Message = "vector created, processing not started"
			writeJSON(w, http.StatusCreated, resp)
			return
		}
		resp.JobID = jobID
		resp.Message = "vector created, processing started"
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleVectorList handles GET /api/vectors.
func (s *Server) handleVectorList(w http.ResponseWriter, r *http.Request) {
	vectors, err := s.store.ListVectors(r.Context())
	if err != nil {
		s.internalError(w, r, "vector list failed", err)
		return
	}
	if vectors == nil {
		vectors = []store.Vector{}
	}
	writeJSON(w, http.StatusOK, vectors)
}

// handleVectorGet handles GET /api/vectors/{id}.
func (s *Server) handleVectorGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := s.store.GetVector(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vector not found")
			return
		}
		s.internalError(w, r, "vector get failed", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleVectorDelete handles DELETE /api/vectors/{id}. Bound RAG models are
// removed with the collection.
func (s *Server) handleVectorDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteVector(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vector not found")
			return
		}
		s.internalError(w, r, "vector delete failed", err)
		return
	}
	writeJSON(w, http.StatusOK, vectorActionResponse{
		Success:  true,
		VectorID: id,
		Message:  "vector deleted",
	})
}

// handleVectorProcess handles POST /api/vectors/{id}/process.
func (s *Server) handleVectorProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if s.trigger == nil {
		s.internalError(w, r, "processing unavailable", errors.New("no ingest runner configured"))
		return
	}
	jobID, err := s.trigger.Trigger(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "vector not found")
		case errors.Is(err, ingest.ErrAlreadyProcessing):
			writeError(w, http.StatusConflict, "vector is already processing")
		case errors.Is(err, ingest.ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, "processing queue is full, retry later")
		default:
			s.internalError(w, r, "processing trigger failed", err)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, vectorActionResponse{
		Success:  true,
		VectorID: id,
		JobID:    jobID,
		Message:  "processing started",
	})
}

// pathID parses the {id} path segment. On failure it writes a 400 and
// returns ok=false.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
