package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/interview-engine/internal/interview"
	"github.com/terra-clan/interview-engine/internal/models"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Position == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "position is required")
		return
	}

	// Identify who created the session
	createdBy := ""
	if client := ClientFromContext(r.Context()); client != nil {
		createdBy = client.Name
	}

	session, messages, err := s.sessions.Create(r.Context(), req, createdBy)
	if err != nil {
		respondSessionError(w, err, "create session", "")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateSessionResponse{
		Session:  session,
		Messages: messages,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filters := models.SessionFilters{
		Status:   models.SessionStatus(r.URL.Query().Get("status")),
		Position: r.URL.Query().Get("position"),
		Limit:    50, // default
		Offset:   0,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	sessions, err := s.manager.ListSessions(r.Context(), filters)
	if err != nil {
		respondSessionError(w, err, "list sessions", "")
		return
	}

	respondJSON(w, http.StatusOK, models.SessionListResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := s.manager.GetStatus(r.Context(), id)
	if err != nil {
		respondSessionError(w, err, "get session", id)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var after int64
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		parsed, err := strconv.ParseInt(afterStr, 10, 64)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "validation_error", "after must be a non-negative sequence number")
			return
		}
		after = parsed
	}

	messages, err := s.manager.Transcript(r.Context(), id, after)
	if err != nil {
		respondSessionError(w, err, "list messages", id)
		return
	}

	respondJSON(w, http.StatusOK, models.MessageListResponse{
		Messages: messages,
		Total:    len(messages),
	})
}

func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.SubmitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	turn, err := s.sessions.Submit(r.Context(), id, req.Content)
	if err != nil {
		respondSessionError(w, err, "process message", id)
		return
	}

	respondJSON(w, http.StatusOK, turnResponse(turn))
}

func (s *Server) handleAdvanceStage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tr, err := s.sessions.Advance(r.Context(), id)
	if err != nil {
		respondSessionError(w, err, "advance stage", id)
		return
	}

	respondJSON(w, http.StatusOK, transitionResponse(tr))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := s.sessions.End(r.Context(), id)
	if err != nil {
		respondSessionError(w, err, "end session", id)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tr, err := s.sessions.Cancel(r.Context(), id)
	if err != nil {
		respondSessionError(w, err, "cancel session", id)
		return
	}

	respondJSON(w, http.StatusOK, transitionResponse(tr))
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := s.manager.GetReport(r.Context(), id)
	if err != nil {
		respondSessionError(w, err, "get report", id)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleRegenerateReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := s.manager.RegenerateReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, interview.ErrSessionNotCompleted) {
			respondError(w, http.StatusConflict, "session_not_completed", "only completed sessions have reports")
			return
		}
		respondSessionError(w, err, "regenerate report", id)
		return
	}

	respondJSON(w, http.StatusCreated, report)
}

func turnResponse(turn *interview.Turn) models.TurnResponse {
	return models.TurnResponse{
		Messages: turn.Messages(),
		Session:  turn.Session,
		Report:   turn.Report,
	}
}

func transitionResponse(tr *interview.Transition) models.TransitionResponse {
	return models.TransitionResponse{
		From:     tr.From,
		To:       tr.To,
		Messages: tr.Messages,
		Session:  tr.Session,
		Report:   tr.Report,
	}
}
