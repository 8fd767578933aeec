package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/internal/storage"
)

// maxImageBytes caps uploaded image size at 16 MiB.
const maxImageBytes = 16 << 20

func (s *Server) handleSearchText(w http.ResponseWriter, r *http.Request) {
	var req models.TextSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("text search request", zap.String("query", req.Query), zap.String("session_id", req.SessionID))
	resp, err := s.coordinator.SearchText(r.Context(), &req)
	if err != nil {
		s.respondForError(w, "text search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	topK := 0
	if v := r.FormValue("top_k"); v != "" {
		topK, err = strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "top_k must be an integer")
			return
		}
	}
	sessionID := r.FormValue("session_id")

	s.logger.Debug("image search request", zap.Int("bytes", len(image)), zap.String("session_id", sessionID))
	resp, err := s.coordinator.SearchImage(r.Context(), image, topK, sessionID)
	if err != nil {
		s.respondForError(w, "image search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRelevanceFeedback(w http.ResponseWriter, r *http.Request) {
	var req models.RelevanceFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("relevance feedback request",
		zap.String("session_id", req.SessionID),
		zap.Int("items", len(req.Items)),
		zap.Bool("has_text", req.TextFeedback != ""))
	resp, err := s.coordinator.RelevanceFeedback(r.Context(), &req)
	if err != nil {
		s.respondForError(w, "relevance feedback failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePseudoFeedback(w http.ResponseWriter, r *http.Request) {
	var req models.PseudoFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("pseudo feedback request", zap.String("session_id", req.SessionID), zap.Int("top_m", req.TopM))
	resp, err := s.coordinator.PseudoFeedback(r.Context(), &req)
	if err != nil {
		s.respondForError(w, "pseudo feedback failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.coordinator.SessionInfo(id)
	if err != nil {
		s.respondForError(w, "session lookup failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ingest request", zap.Int("items", len(req.Items)))
	resp, err := s.coordinator.Ingest(r.Context(), &req)
	if err != nil {
		s.respondForError(w, "ingest failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleIngestImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	var metadata map[string]interface{}
	if v := r.FormValue("metadata"); v != "" {
		if err := json.Unmarshal([]byte(v), &metadata); err != nil {
			s.respondError(w, http.StatusBadRequest, "metadata must be a JSON object")
			return
		}
	}
	id := r.FormValue("id")

	s.logger.Debug("image ingest request", zap.Int("bytes", len(image)), zap.String("id", id))
	resp, err := s.coordinator.IngestImage(r.Context(), image, id, metadata)
	if err != nil {
		s.respondForError(w, "image ingest failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleMetadataSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		var err error
		limit, err = strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
	}
	resp, err := s.coordinator.MetadataSearch(r.Context(), query, limit)
	if err != nil {
		s.respondForError(w, "metadata search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	includeCorpus := r.URL.Query().Get("include_corpus") == "true"
	sampleSize := 0
	if v := r.URL.Query().Get("sample_size"); v != "" {
		var err error
		sampleSize, err = strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "sample_size must be an integer")
			return
		}
	}
	resp, err := s.coordinator.Trajectory(sessionID, includeCorpus, sampleSize)
	if err != nil {
		s.respondForError(w, "trajectory failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"total_items":   s.coordinator.TotalItems(),
		"sessions":      s.coordinator.SessionCount(),
		"vector_length": s.coordinator.Dimensions(),
	}

	configInfo := map[string]interface{}{
		"oracle_provider":     s.config.Oracle.Provider,
		"default_top_k":       s.config.Search.DefaultTopK,
		"max_top_k":           s.config.Search.MaxTopK,
		"database_path":       s.config.Storage.DatabasePath,
		"vector_index_path":   s.config.Storage.VectorIndexPath,
		"metadata_index_path": s.config.Storage.MetadataIndexPath,
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.VectorIndexPath,
		s.config.Storage.MetadataIndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

// respondForError maps domain errors to HTTP statuses: invalid input is 400,
// missing resources are 404, everything else is a logged 500.
func (s *Server) respondForError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error(msg, zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
