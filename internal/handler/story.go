package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/inkwell/internal/auth"
	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/service"
	"github.com/DukeRupert/inkwell/internal/timesource"
	"github.com/google/uuid"
)

// StoryHandler serves story, submission, and usage endpoints for writers.
type StoryHandler struct {
	stories    service.StoryService
	submission service.SubmissionService
	ledger     service.QuotaLedger
	clock      timesource.Clock
	location   *time.Location
	logger     *slog.Logger
}

// NewStoryHandler creates a new StoryHandler.
func NewStoryHandler(
	stories service.StoryService,
	submission service.SubmissionService,
	ledger service.QuotaLedger,
	clock timesource.Clock,
	loc *time.Location,
	logger *slog.Logger,
) *StoryHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &StoryHandler{
		stories:    stories,
		submission: submission,
		ledger:     ledger,
		clock:      clock,
		location:   loc,
		logger:     logger,
	}
}

// RegisterRoutes registers all writer routes with the provided mux.
func (h *StoryHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/stories", requireUser(http.HandlerFunc(h.CreateStory)))
	mux.Handle("GET /api/stories/{id}", requireUser(http.HandlerFunc(h.GetStory)))
	mux.Handle("POST /api/stories/{id}/assessments", requireUser(http.HandlerFunc(h.RequestAssessment)))
	mux.Handle("POST /api/submissions", requireUser(http.HandlerFunc(h.Submit)))
	mux.Handle("GET /api/usage", requireUser(http.HandlerFunc(h.Usage)))
}

type createStoryRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CreateStory stores a new story for the current user.
func (h *StoryHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)

	var req createStoryRequest
	if err := decodeJSON(r, &req, false); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	story, err := h.stories.Create(r.Context(), user.ID, req.Title, req.Body)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, story)
}

// GetStory returns one of the current user's stories.
func (h *StoryHandler) GetStory(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	story, err := h.stories.Get(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, story)
}

// RequestAssessment queues an AI assessment of a story.
func (h *StoryHandler) RequestAssessment(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	story, err := h.stories.RequestAssessment(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, story)
}

type submitRequest struct {
	StoryID uuid.UUID `json:"story_id"`
}

// Submit enters a story into the active competition.
func (h *StoryHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)

	var req submitRequest
	if err := decodeJSON(r, &req, false); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.StoryID == uuid.Nil {
		ErrorResponse(w, r, h.logger, domain.NewValidationError("", "story_id", "Story ID is required"))
		return
	}

	result, err := h.submission.Submit(r.Context(), user.ID, req.StoryID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type usageResponse struct {
	*domain.UsageReport
	Remaining map[domain.Counter]int64 `json:"remaining"`
}

// Usage reports the current month's usage, limits, and remaining units.
func (h *StoryHandler) Usage(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)

	month := domain.MonthKeyOf(h.clock.Now(r.Context()).Time.In(h.location))
	report, err := h.ledger.Peek(r.Context(), user.ID, month)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	remaining := make(map[domain.Counter]int64, len(domain.Counters))
	for _, c := range domain.Counters {
		remaining[c] = report.Remaining(c)
	}
	writeJSON(w, http.StatusOK, usageResponse{UsageReport: report, Remaining: remaining})
}
