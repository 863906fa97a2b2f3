package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/metrics"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/DukeRupert/inkwell/internal/timesource"
	"github.com/DukeRupert/inkwell/internal/worker"
	"github.com/google/uuid"
)

// SubmissionService admits stories into the active competition.
type SubmissionService interface {
	// Submit enters storyID into the active competition on behalf of userID.
	//
	// Rejections, in evaluation order:
	//   - domain.EPHASE / ENOTFOUND when no competition is accepting entries
	//   - domain.ENOTFOUND / EFORBIDDEN for a missing or foreign story
	//   - domain.EINVALID (ReasonWordCount) outside the word band
	//   - domain.ECONFLICT (ReasonAlreadyEntered) for a story already entered
	//   - domain.EQUOTA when the monthly entries quota is used up
	Submit(ctx context.Context, userID, storyID uuid.UUID) (*domain.SubmissionResult, error)
}

// SubmissionConfig configures the submission gate.
type SubmissionConfig struct {
	WordLimits domain.WordLimits
	Location   *time.Location
}

type submissionService struct {
	store  repository.Store
	ledger QuotaLedger
	clock  timesource.Clock
	config SubmissionConfig
	logger *slog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	store repository.Store,
	ledger QuotaLedger,
	clock timesource.Clock,
	config SubmissionConfig,
	logger *slog.Logger,
) SubmissionService {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.WordLimits == (domain.WordLimits{}) {
		config.WordLimits = domain.DefaultWordLimits()
	}
	return &submissionService{
		store:  store,
		ledger: ledger,
		clock:  clock,
		config: config,
		logger: logger,
	}
}

func (s *submissionService) Submit(ctx context.Context, userID, storyID uuid.UUID) (*domain.SubmissionResult, error) {
	const op = "submission.submit"

	result, err := s.submit(ctx, userID, storyID)
	metrics.SubmissionsTotal.WithLabelValues(submissionOutcome(err)).Inc()
	if err != nil {
		if domain.ErrorCode(err) == domain.EINTERNAL {
			s.logger.Error("submission failed",
				"op", op,
				"user_id", userID,
				"story_id", storyID,
				"error", err,
			)
		}
		return nil, err
	}
	return result, nil
}

func (s *submissionService) submit(ctx context.Context, userID, storyID uuid.UUID) (*domain.SubmissionResult, error) {
	const op = "submission.submit"

	now := s.clock.Now(ctx).Time

	// 1. The competition must be open.
	row, err := s.store.GetActiveCompetition(ctx)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, noOpenCompetition(op)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve competition")
	}
	comp, err := repoCompetitionToDomain(row)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to decode competition")
	}
	if !comp.AcceptsSubmissions(now) {
		return nil, domain.PhaseViolation(op, comp.Phase, "Submissions are closed for this competition")
	}

	story, err := s.store.GetStoryByID(ctx, storyID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "story", storyID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve story")
	}
	if story.UserID != userID {
		return nil, domain.Forbidden(op, "You can only submit your own stories")
	}

	// 2. The story itself must qualify.
	words := domain.CountWords(story.Body)
	if limits := s.config.WordLimits; !limits.Contains(words) {
		return nil, domain.Rejected(op, domain.ReasonWordCount,
			fmt.Sprintf("Entries must be between %d and %d words (this story has %d)", limits.Min, limits.Max, words))
	}

	if _, err := s.store.GetEntryByStoryID(ctx, storyID); err == nil {
		return nil, alreadyEntered(op)
	} else if !repository.IsNotFound(err) {
		return nil, domain.Internal(err, op, "Failed to check existing entry")
	}

	// 3. Quota. The token is returned if the insert below fails.
	month := domain.MonthKeyOf(now.In(s.config.Location))
	if err := consumeOrReject(ctx, s.ledger, op, userID, domain.CounterCompetitionEntries, month); err != nil {
		return nil, err
	}

	var entry repository.Entry
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		// The row lock makes the membership check and the participant
		// increment atomic across concurrent first entries.
		if err := q.LockCompetition(ctx, comp.ID); err != nil {
			return err
		}

		prior, err := q.CountUserEntriesInCompetition(ctx, repository.CountUserEntriesInCompetitionParams{
			CompetitionID: comp.ID,
			UserID:        userID,
		})
		if err != nil {
			return err
		}

		entry, err = q.CreateEntry(ctx, repository.CreateEntryParams{
			CompetitionID: comp.ID,
			UserID:        userID,
			StoryID:       storyID,
			WordCount:     int32(words),
			SubmittedAt:   now,
		})
		if err != nil {
			return err
		}

		participants := int32(0)
		if prior == 0 {
			participants = 1
		}
		return q.IncrementCompetitionTotals(ctx, repository.IncrementCompetitionTotalsParams{
			ID:           comp.ID,
			Submissions:  1,
			Participants: participants,
		})
	})
	if err != nil {
		if rerr := s.ledger.Release(ctx, userID, domain.CounterCompetitionEntries, month); rerr != nil {
			s.logger.Error("failed to release entry quota",
				"user_id", userID,
				"month_key", month,
				"error", rerr,
			)
		}
		if repository.IsUniqueViolation(err) {
			return nil, alreadyEntered(op)
		}
		return nil, domain.Internal(err, op, "Failed to record entry")
	}

	if _, err := worker.EnqueueAssessEntry(ctx, s.store, worker.AssessEntryPayload{
		EntryID: entry.ID,
		StoryID: storyID,
		UserID:  userID,
	}); err != nil {
		s.logger.Error("failed to enqueue entry assessment",
			"entry_id", entry.ID,
			"competition_id", comp.ID,
			"error", err,
		)
	}

	s.logger.Info("entry submitted",
		"entry_id", entry.ID,
		"competition_id", comp.ID,
		"user_id", userID,
		"word_count", words,
	)

	return &domain.SubmissionResult{
		CompetitionID: comp.ID,
		EntryID:       entry.ID,
	}, nil
}

// noOpenCompetition rejects a submission made while no competition is active.
// It is a phase violation: there is no submission window to enter.
func noOpenCompetition(op string) *domain.Error {
	return &domain.Error{
		Code:    domain.EPHASE,
		Op:      op,
		Message: "There is no competition open for submissions",
		Reason:  domain.ReasonNoCompetition,
	}
}

func alreadyEntered(op string) *domain.Error {
	return &domain.Error{
		Code:    domain.ECONFLICT,
		Op:      op,
		Message: "This story has already been entered into a competition",
		Reason:  domain.ReasonAlreadyEntered,
	}
}

// submissionOutcome labels the submissions metric.
func submissionOutcome(err error) string {
	if err == nil {
		return "accepted"
	}
	if reason := domain.ErrorReason(err); reason != "" {
		return reason
	}
	return domain.ErrorCode(err)
}
