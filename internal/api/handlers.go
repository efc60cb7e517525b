package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/terra-clan/interview-engine/internal/assessment"
	"github.com/terra-clan/interview-engine/internal/health"
	"github.com/terra-clan/interview-engine/internal/interview"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondSessionError maps orchestration errors to HTTP responses. Anything
// unrecognized is logged and reported as "failed to <action>".
func respondSessionError(w http.ResponseWriter, err error, action, id string) {
	var aggErr *assessment.AggregationDataError

	switch {
	case errors.Is(err, interview.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, interview.ErrSessionNotActive):
		respondError(w, http.StatusConflict, "session_not_active", "session is not active")
	case errors.Is(err, interview.ErrStageChanged):
		respondError(w, http.StatusConflict, "stage_changed", "the interviewer changed before a reply was ready")
	case errors.Is(err, interview.ErrSessionNotCompleted):
		respondError(w, http.StatusConflict, "session_not_completed", "session is not completed")
	case errors.Is(err, interview.ErrReportNotFound):
		respondError(w, http.StatusNotFound, "report_not_found", "report not found")
	case errors.Is(err, interview.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, "validation_error", "content is required")
	case errors.Is(err, interview.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		respondError(w, http.StatusServiceUnavailable, "session_busy", "session is busy, retry later")
	case errors.As(err, &aggErr):
		slog.Error("assessment data unreadable", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "aggregation_error", "failed to "+action)
	default:
		slog.Error("failed to "+action, "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := s.checks.CheckAll(r.Context())

	checks := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	if !health.Healthy(results) {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}
