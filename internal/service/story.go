package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/DukeRupert/inkwell/internal/timesource"
	"github.com/DukeRupert/inkwell/internal/worker"
	"github.com/google/uuid"
)

const (
	maxTitleLength = 200
	maxBodyBytes   = 100_000
)

// =============================================================================
// Interface Definition
// =============================================================================

// StoryService manages a writer's stories and practice assessments.
type StoryService interface {
	// Create stores a new story, consuming one stories_created unit.
	Create(ctx context.Context, userID uuid.UUID, title, body string) (*domain.Story, error)

	// Get returns a story owned by userID.
	Get(ctx context.Context, userID, storyID uuid.UUID) (*domain.Story, error)

	// RequestAssessment queues an AI assessment of the story, consuming one
	// assessment_uploads unit. Returns domain.ECONFLICT if one is already
	// pending.
	RequestAssessment(ctx context.Context, userID, storyID uuid.UUID) (*domain.Story, error)
}

// =============================================================================
// Implementation
// =============================================================================

type storyService struct {
	store    repository.Store
	ledger   QuotaLedger
	clock    timesource.Clock
	location *time.Location
	logger   *slog.Logger
}

// NewStoryService creates a new StoryService.
func NewStoryService(store repository.Store, ledger QuotaLedger, clock timesource.Clock, loc *time.Location, logger *slog.Logger) StoryService {
	if loc == nil {
		loc = time.UTC
	}
	return &storyService{
		store:    store,
		ledger:   ledger,
		clock:    clock,
		location: loc,
		logger:   logger,
	}
}

func (s *storyService) month(ctx context.Context) domain.MonthKey {
	return domain.MonthKeyOf(s.clock.Now(ctx).Time.In(s.location))
}

func (s *storyService) Create(ctx context.Context, userID uuid.UUID, title, body string) (*domain.Story, error) {
	const op = "story.create"

	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)

	fields := map[string]string{}
	switch {
	case title == "":
		fields["title"] = "Title is required"
	case utf8.RuneCountInString(title) > maxTitleLength:
		fields["title"] = "Title must be 200 characters or fewer"
	}
	switch {
	case body == "":
		fields["body"] = "Story text is required"
	case len(body) > maxBodyBytes:
		fields["body"] = "Story text is too long"
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Op: op, Fields: fields}
	}

	month := s.month(ctx)
	if err := consumeOrReject(ctx, s.ledger, op, userID, domain.CounterStoriesCreated, month); err != nil {
		return nil, err
	}

	row, err := s.store.CreateStory(ctx, repository.CreateStoryParams{
		UserID:    userID,
		Title:     title,
		Body:      body,
		WordCount: int32(domain.CountWords(body)),
	})
	if err != nil {
		if rerr := s.ledger.Release(ctx, userID, domain.CounterStoriesCreated, month); rerr != nil {
			s.logger.Error("failed to release story quota", "user_id", userID, "error", rerr)
		}
		return nil, domain.Internal(err, op, "Failed to create story")
	}

	story := repoStoryToDomain(row)
	s.logger.Info("story created", "story_id", story.ID, "user_id", userID, "word_count", story.WordCount)
	return story, nil
}

func (s *storyService) Get(ctx context.Context, userID, storyID uuid.UUID) (*domain.Story, error) {
	const op = "story.get"

	row, err := s.store.GetStoryByID(ctx, storyID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "story", storyID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve story")
	}
	if row.UserID != userID {
		// Foreign stories are indistinguishable from missing ones.
		return nil, domain.NotFound(op, "story", storyID.String())
	}
	return repoStoryToDomain(row), nil
}

func (s *storyService) RequestAssessment(ctx context.Context, userID, storyID uuid.UUID) (*domain.Story, error) {
	const op = "story.request_assessment"

	story, err := s.Get(ctx, userID, storyID)
	if err != nil {
		return nil, err
	}
	if story.AssessmentStatus == domain.AssessmentStatusPending {
		return nil, domain.Conflict(op, "An assessment is already in progress for this story")
	}

	month := s.month(ctx)
	if err := consumeOrReject(ctx, s.ledger, op, userID, domain.CounterAssessmentUploads, month); err != nil {
		return nil, err
	}

	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.UpdateStoryAssessmentStatus(ctx, repository.UpdateStoryAssessmentStatusParams{
			ID:               storyID,
			AssessmentStatus: string(domain.AssessmentStatusPending),
		}); err != nil {
			return err
		}
		_, err := worker.EnqueueAssessStory(ctx, q, worker.AssessStoryPayload{
			StoryID:  storyID,
			UserID:   userID,
			MonthKey: string(month),
		})
		return err
	})
	if err != nil {
		if rerr := s.ledger.Release(ctx, userID, domain.CounterAssessmentUploads, month); rerr != nil {
			s.logger.Error("failed to release assessment quota", "user_id", userID, "error", rerr)
		}
		return nil, domain.Internal(err, op, "Failed to queue assessment")
	}

	story.AssessmentStatus = domain.AssessmentStatusPending
	s.logger.Info("assessment requested", "story_id", storyID, "user_id", userID)
	return story, nil
}
