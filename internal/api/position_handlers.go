package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/policy"
)

// Position handlers expose the skill profiles used for gap analysis

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	profiles := s.table.Profiles()
	respondJSON(w, http.StatusOK, models.PositionListResponse{
		Positions: profiles,
		Total:     len(profiles),
	})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	name := policy.NormalizeName(chi.URLParam(r, "name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "position name is required")
		return
	}

	profile, ok := s.table.LookupProfile(name)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "position not found")
		return
	}
	respondJSON(w, http.StatusOK, profile)
}
