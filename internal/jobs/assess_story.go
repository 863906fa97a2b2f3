package jobs

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/inkwell/internal/ai"
	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/metrics"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/DukeRupert/inkwell/internal/service"
	"github.com/DukeRupert/inkwell/internal/storage"
	"github.com/DukeRupert/inkwell/internal/timesource"
	"github.com/DukeRupert/inkwell/internal/worker"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// errAttemptsExhausted is returned when the user has no assessment attempts
// left this month.
var errAttemptsExhausted = errors.New("assessment attempts exhausted for the month")

// AssessStoryHandler processes jobs that score a story with the AI provider.
// Every attempt, retries included, spends one assessment_attempts unit.
type AssessStoryHandler struct {
	queries    repository.Querier
	ledger     service.QuotaLedger
	aiProvider ai.Provider
	archive    storage.Storage // optional
	clock      timesource.Clock
	location   *time.Location
	logger     *slog.Logger
}

// NewAssessStoryHandler creates a new handler for story assessment jobs.
// archive may be nil.
func NewAssessStoryHandler(
	queries repository.Querier,
	ledger service.QuotaLedger,
	aiProvider ai.Provider,
	archive storage.Storage,
	clock timesource.Clock,
	loc *time.Location,
	logger *slog.Logger,
) *AssessStoryHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AssessStoryHandler{
		queries:    queries,
		ledger:     ledger,
		aiProvider: aiProvider,
		archive:    archive,
		clock:      clock,
		location:   loc,
		logger:     logger,
	}
}

// Type returns the job type identifier.
func (h *AssessStoryHandler) Type() string {
	return worker.JobTypeAssessStory
}

// Handle executes the story assessment job.
func (h *AssessStoryHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.AssessStoryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	logger := h.logger.With("story_id", p.StoryID, "user_id", p.UserID)
	logger.Info("Assessing story")

	story, err := h.queries.GetStoryByID(ctx, p.StoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("story not found: %w", err))
		}
		return fmt.Errorf("fetch story: %w", err)
	}
	if story.UserID != p.UserID {
		return worker.NewPermanentError(fmt.Errorf("story does not belong to user"))
	}
	if domain.AssessmentStatus(story.AssessmentStatus) == domain.AssessmentStatusAssessed {
		logger.Info("Story already assessed, skipping")
		return nil
	}

	month := domain.MonthKeyOf(h.clock.Now(ctx).Time.In(h.location))
	result, err := h.ledger.TryConsume(ctx, p.UserID, domain.CounterAssessmentAttempts, month)
	if err != nil {
		return fmt.Errorf("consume assessment attempt: %w", err)
	}
	if !result.Allowed {
		logger.Warn("Assessment attempts exhausted",
			"used", result.Used,
			"limit", result.Limit,
		)
		return worker.NewPermanentError(errAttemptsExhausted)
	}

	assessed, err := h.aiProvider.AssessStory(ctx, ai.AssessStoryParams{
		StoryID: story.ID,
		UserID:  story.UserID,
		Title:   story.Title,
		Body:    story.Body,
	})
	if err != nil {
		metrics.StoriesAssessed.WithLabelValues("story", "error").Inc()
		if ai.IsRetryable(err) {
			return fmt.Errorf("assess story: %w", err)
		}
		return worker.NewPermanentError(fmt.Errorf("assess story: %w", err))
	}

	assessment := assessed.Assessment()
	raw, err := json.Marshal(assessment)
	if err != nil {
		return worker.NewPermanentError(fmt.Errorf("marshal assessment: %w", err))
	}

	if err := h.queries.UpdateStoryAssessment(ctx, repository.UpdateStoryAssessmentParams{
		ID:         story.ID,
		Score:      sql.NullFloat64{Float64: assessment.Scores.Mean(), Valid: true},
		Assessment: pqtype.NullRawMessage{RawMessage: raw, Valid: true},
	}); err != nil {
		return fmt.Errorf("store assessment: %w", err)
	}
	metrics.StoriesAssessed.WithLabelValues("story", "assessed").Inc()

	h.archiveAssessment(ctx, logger, story.ID, raw)

	logger.Info("Story assessed",
		"score", assessment.Scores.Mean(),
		"model", assessment.Model,
	)
	return nil
}

// archiveAssessment keeps a copy of the assessment in object storage.
// Failures are logged only.
func (h *AssessStoryHandler) archiveAssessment(ctx context.Context, logger *slog.Logger, storyID uuid.UUID, raw []byte) {
	if h.archive == nil {
		return
	}
	key := storage.AssessmentKey(storyID, h.clock.Now(ctx).Time)
	if err := h.archive.Put(ctx, key, bytes.NewReader(raw), storage.PutOptions{
		ContentType: "application/json",
		Overwrite:   true,
	}); err != nil {
		logger.Error("Failed to archive assessment", "key", key, "error", err)
	}
}

// OnFinalFailure marks the story failed and returns the upload unit spent
// when the assessment was requested.
func (h *AssessStoryHandler) OnFinalFailure(ctx context.Context, payload []byte, jobErr error) {
	var p worker.AssessStoryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.logger.Error("Invalid payload on final failure", "error", err)
		return
	}
	logger := h.logger.With("story_id", p.StoryID, "user_id", p.UserID)

	if err := h.queries.UpdateStoryAssessmentStatus(ctx, repository.UpdateStoryAssessmentStatusParams{
		ID:               p.StoryID,
		AssessmentStatus: domain.AssessmentStatusFailed.String(),
	}); err != nil {
		logger.Error("Failed to mark story assessment failed", "error", err)
	}
	metrics.StoriesAssessed.WithLabelValues("story", "failed").Inc()

	// Exhausted attempts are the user's own spend; only provider failures
	// refund the upload.
	if errors.Is(jobErr, errAttemptsExhausted) || p.MonthKey == "" {
		return
	}
	month, err := domain.ParseMonthKey(p.MonthKey)
	if err != nil {
		logger.Error("Invalid month key on final failure", "month_key", p.MonthKey, "error", err)
		return
	}
	if err := h.ledger.Release(ctx, p.UserID, domain.CounterAssessmentUploads, month); err != nil {
		logger.Error("Failed to release assessment upload", "error", err)
	}
}
