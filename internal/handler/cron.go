// Package handler contains the JSON HTTP handlers.
//
// This file implements the trigger endpoints called by the external
// scheduler:
//
//   - POST /cron/phases        -> AdvancePhases
//   - POST /cron/usage-reset   -> ResetUsage
//   - POST /cron/competitions  -> CreateCompetition
//
// Every trigger is idempotent. They are protected by the cron bearer token,
// not by user sessions.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/service"
	"github.com/DukeRupert/inkwell/internal/timesource"
)

// CronHandler serves the scheduled trigger endpoints.
type CronHandler struct {
	competitions service.CompetitionService
	usage        service.UsageResetService
	clock        timesource.Clock
	logger       *slog.Logger
}

// NewCronHandler creates a new CronHandler.
func NewCronHandler(
	competitions service.CompetitionService,
	usage service.UsageResetService,
	clock timesource.Clock,
	logger *slog.Logger,
) *CronHandler {
	return &CronHandler{
		competitions: competitions,
		usage:        usage,
		clock:        clock,
		logger:       logger,
	}
}

// RegisterRoutes registers trigger routes behind requireCron.
func (h *CronHandler) RegisterRoutes(mux *http.ServeMux, requireCron func(http.Handler) http.Handler) {
	mux.Handle("POST /cron/phases", requireCron(http.HandlerFunc(h.AdvancePhases)))
	mux.Handle("POST /cron/usage-reset", requireCron(http.HandlerFunc(h.ResetUsage)))
	mux.Handle("POST /cron/competitions", requireCron(http.HandlerFunc(h.CreateCompetition)))
}

type phasesResponse struct {
	domain.SweepSummary
	Timestamp time.Time `json:"timestamp"`
}

// AdvancePhases moves every competition to its scheduled phase.
func (h *CronHandler) AdvancePhases(w http.ResponseWriter, r *http.Request) {
	summary, err := h.competitions.AdvanceAll(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, phasesResponse{
		SweepSummary: *summary,
		Timestamp:    h.clock.Now(r.Context()).Time,
	})
}

type usageResetResponse struct {
	domain.ResetSummary
	Timestamp time.Time `json:"timestamp"`
}

// ResetUsage zeroes usage counters left over from earlier months.
func (h *CronHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	summary, err := h.usage.Run(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResetResponse{
		ResetSummary: *summary,
		Timestamp:    h.clock.Now(r.Context()).Time,
	})
}

type createCompetitionRequest struct {
	Year            int                     `json:"year"`
	Month           int                     `json:"month"`
	JudgingCriteria *domain.JudgingCriteria `json:"judging_criteria"`
}

type createCompetitionResponse struct {
	Competition *domain.Competition `json:"competition"`
	Created     bool                `json:"created"`
	Timestamp   time.Time           `json:"timestamp"`
}

// CreateCompetition creates the monthly competition. With no body it
// creates the competition for the current trusted month.
func (h *CronHandler) CreateCompetition(w http.ResponseWriter, r *http.Request) {
	var req createCompetitionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	comp, created, err := h.competitions.CreateMonthly(r.Context(), domain.CreateCompetitionParams{
		Year:     req.Year,
		Month:    time.Month(req.Month),
		Criteria: req.JudgingCriteria,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, createCompetitionResponse{
		Competition: comp,
		Created:     created,
		Timestamp:   h.clock.Now(r.Context()).Time,
	})
}
