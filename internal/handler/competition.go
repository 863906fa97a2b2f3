package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/service"
	"github.com/google/uuid"
)

// CompetitionHandler serves the public competition view and the admin
// judging endpoints.
type CompetitionHandler struct {
	competitions service.CompetitionService
	logger       *slog.Logger
}

// NewCompetitionHandler creates a new CompetitionHandler.
func NewCompetitionHandler(competitions service.CompetitionService, logger *slog.Logger) *CompetitionHandler {
	return &CompetitionHandler{
		competitions: competitions,
		logger:       logger,
	}
}

// RegisterRoutes registers competition routes. Admin routes are wrapped in
// requireAdmin.
func (h *CompetitionHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireUser func(http.Handler) http.Handler,
	requireAdmin func(http.Handler) http.Handler,
) {
	mux.Handle("GET /api/competitions/current", requireUser(http.HandlerFunc(h.Current)))
	mux.Handle("POST /admin/competitions/{id}/winners", requireAdmin(http.HandlerFunc(h.PublishWinners)))
	mux.Handle("GET /admin/competitions/{id}/entries", requireAdmin(http.HandlerFunc(h.RankedEntries)))
}

// Current returns the active competition.
func (h *CompetitionHandler) Current(w http.ResponseWriter, r *http.Request) {
	comp, err := h.competitions.Current(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

type publishWinnersRequest struct {
	Winners []domain.WinnerInput `json:"winners"`
}

// PublishWinners records the placed entries of an ended competition.
func (h *CompetitionHandler) PublishWinners(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	var req publishWinnersRequest
	if err := decodeJSON(r, &req, false); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	comp, err := h.competitions.PublishWinners(r.Context(), id, req.Winners)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

type rankedEntriesResponse struct {
	CompetitionID uuid.UUID      `json:"competition_id"`
	Entries       []domain.Entry `json:"entries"`
}

// RankedEntries lists a competition's entries, best score first.
func (h *CompetitionHandler) RankedEntries(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	entries, err := h.competitions.RankedEntries(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []domain.Entry{}
	}
	writeJSON(w, http.StatusOK, rankedEntriesResponse{CompetitionID: id, Entries: entries})
}
