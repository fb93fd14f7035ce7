package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"flaneur/internal/config"
	"flaneur/internal/core"
	"flaneur/internal/persistence"
	"flaneur/internal/pipeline"
	"flaneur/internal/sources"

	"github.com/go-chi/chi/v5"
)

// HealthResponse is the body of /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := s.db.Ping(r.Context()); err != nil {
		checks["database"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: checks,
		})
		return
	}

	checks["database"] = "ok"

	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Checks: checks,
	})
}

// handleCron handles GET|POST /api/cron/{job}. A run that executed answers
// 200 even when items failed; the body carries the per-item outcome.
func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")
	opts := pipeline.RunOptions{TestID: r.URL.Query().Get("test_id")}
	if raw := r.URL.Query().Get("batch"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "batch must be a positive integer")
			return
		}
		opts.Batch = n
	}

	sum, err := s.runner.Run(r.Context(), name, opts)
	switch {
	case errors.Is(err, pipeline.ErrUnknownJob):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, config.ErrMissingCredential):
		s.respondError(w, http.StatusInternalServerError, err.Error())
	case err != nil && opts.TestID != "" && persistence.IsNotFound(err):
		s.respondError(w, http.StatusNotFound, err.Error())
	case sum == nil:
		s.log.Error("Job returned no summary", "job", name, "error", err)
		s.respondError(w, http.StatusInternalServerError, "job run failed")
	default:
		s.respondJSON(w, http.StatusOK, sum)
	}
}

// handleSubmitSighting handles POST /api/sightings
func (s *Server) handleSubmitSighting(w http.ResponseWriter, r *http.Request) {
	var sg core.PropertySighting
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sg); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := sources.SubmitSighting(r.Context(), s.db, &sg, s.now())
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusCreated, sg)
	case errors.Is(err, sources.ErrInvalidSighting):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case persistence.IsNotFound(err):
		s.respondError(w, http.StatusNotFound, "unknown neighborhood")
	case errors.Is(err, sources.ErrSightingsDisabled):
		s.respondError(w, http.StatusForbidden, err.Error())
	default:
		s.log.Error("Failed to store sighting", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to store sighting")
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes {"error": msg}
func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
