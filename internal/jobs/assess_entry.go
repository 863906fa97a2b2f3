package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/inkwell/internal/ai"
	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/metrics"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/DukeRupert/inkwell/internal/worker"
)

// AssessEntryHandler scores competition entries with the competition's
// judging weights. A failed assessment never removes or rejects the entry.
type AssessEntryHandler struct {
	queries    repository.Querier
	aiProvider ai.Provider
	logger     *slog.Logger
}

// NewAssessEntryHandler creates a new handler for entry assessment jobs.
func NewAssessEntryHandler(queries repository.Querier, aiProvider ai.Provider, logger *slog.Logger) *AssessEntryHandler {
	return &AssessEntryHandler{
		queries:    queries,
		aiProvider: aiProvider,
		logger:     logger,
	}
}

// Type returns the job type identifier.
func (h *AssessEntryHandler) Type() string {
	return worker.JobTypeAssessEntry
}

// Handle executes the entry assessment job.
func (h *AssessEntryHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.AssessEntryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	logger := h.logger.With("entry_id", p.EntryID, "story_id", p.StoryID)

	entry, err := h.queries.GetEntryByID(ctx, p.EntryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("entry not found: %w", err))
		}
		return fmt.Errorf("fetch entry: %w", err)
	}
	if domain.AssessmentStatus(entry.AssessmentStatus) == domain.AssessmentStatusAssessed {
		logger.Info("Entry already assessed, skipping")
		return nil
	}

	story, err := h.queries.GetStoryByID(ctx, entry.StoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("story not found: %w", err))
		}
		return fmt.Errorf("fetch story: %w", err)
	}

	comp, err := h.queries.GetCompetitionByID(ctx, entry.CompetitionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("competition not found: %w", err))
		}
		return fmt.Errorf("fetch competition: %w", err)
	}
	criteria := h.criteria(logger, comp)

	assessed, err := h.aiProvider.AssessStory(ctx, ai.AssessStoryParams{
		StoryID: story.ID,
		UserID:  story.UserID,
		Title:   story.Title,
		Body:    story.Body,
	})
	if err != nil {
		metrics.StoriesAssessed.WithLabelValues("entry", "error").Inc()
		if ai.IsRetryable(err) {
			return fmt.Errorf("assess entry: %w", err)
		}
		return worker.NewPermanentError(fmt.Errorf("assess entry: %w", err))
	}

	score := criteria.Weighted(assessed.Scores)
	if err := h.queries.UpdateEntryScore(ctx, repository.UpdateEntryScoreParams{
		ID:    entry.ID,
		Score: score,
	}); err != nil {
		return fmt.Errorf("store entry score: %w", err)
	}
	metrics.StoriesAssessed.WithLabelValues("entry", "assessed").Inc()

	logger.Info("Entry assessed", "competition_id", entry.CompetitionID, "score", score)
	return nil
}

// criteria decodes the competition's stored weights, falling back to the
// defaults when the column is unreadable.
func (h *AssessEntryHandler) criteria(logger *slog.Logger, comp repository.Competition) domain.JudgingCriteria {
	var c domain.JudgingCriteria
	if err := json.Unmarshal(comp.JudgingCriteria, &c); err != nil {
		logger.Warn("Unreadable judging criteria, using defaults", "competition_id", comp.ID, "error", err)
		return domain.DefaultJudgingCriteria()
	}
	if err := c.Validate(); err != nil {
		logger.Warn("Invalid judging criteria, using defaults", "competition_id", comp.ID, "error", err)
		return domain.DefaultJudgingCriteria()
	}
	return c
}

// OnFinalFailure marks the entry's assessment failed. The entry itself stays.
func (h *AssessEntryHandler) OnFinalFailure(ctx context.Context, payload []byte, jobErr error) {
	var p worker.AssessEntryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.logger.Error("Invalid payload on final failure", "error", err)
		return
	}
	if err := h.queries.UpdateEntryAssessmentStatus(ctx, repository.UpdateEntryAssessmentStatusParams{
		ID:               p.EntryID,
		AssessmentStatus: domain.AssessmentStatusFailed.String(),
	}); err != nil {
		h.logger.Error("Failed to mark entry assessment failed", "entry_id", p.EntryID, "error", err)
		return
	}
	metrics.StoriesAssessed.WithLabelValues("entry", "failed").Inc()
	h.logger.Warn("Entry assessment failed permanently", "entry_id", p.EntryID, "error", jobErr)
}
