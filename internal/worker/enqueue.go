package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/google/uuid"
)

// Job types. Each must match a registered JobHandler.Type().
const (
	JobTypeAssessStory = "assess_story"
	JobTypeAssessEntry = "assess_entry"
)

const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// AssessStoryPayload asks for a practice assessment of a story. MonthKey is
// the month whose assessment_attempts unit was consumed, so a final failure
// can return it.
type AssessStoryPayload struct {
	StoryID  uuid.UUID `json:"story_id"`
	UserID   uuid.UUID `json:"user_id"`
	MonthKey string    `json:"month_key"`
}

// AssessEntryPayload asks for the judging score of a competition entry.
type AssessEntryPayload struct {
	EntryID uuid.UUID `json:"entry_id"`
	StoryID uuid.UUID `json:"story_id"`
	UserID  uuid.UUID `json:"user_id"`
}

// EnqueueOption adjusts the parameters of a single enqueue.
type EnqueueOption func(*repository.EnqueueJobParams)

func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job delay after now.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = p.ScheduledAt.Add(delay)
	}
}

// EnqueueJob stores a pending job. Defaults are normal priority, three
// attempts, runnable immediately.
func EnqueueJob(
	ctx context.Context,
	queries repository.Querier,
	jobType string,
	payload any,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	job, err := queries.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// EnqueueAssessStory enqueues a practice assessment.
func EnqueueAssessStory(ctx context.Context, queries repository.Querier, payload AssessStoryPayload, opts ...EnqueueOption) (repository.Job, error) {
	return EnqueueJob(ctx, queries, JobTypeAssessStory, payload, opts...)
}

// EnqueueAssessEntry enqueues scoring of a competition entry. Entries are
// scored ahead of practice assessments.
func EnqueueAssessEntry(ctx context.Context, queries repository.Querier, payload AssessEntryPayload, opts ...EnqueueOption) (repository.Job, error) {
	opts = append([]EnqueueOption{WithPriority(PriorityHigh)}, opts...)
	return EnqueueJob(ctx, queries, JobTypeAssessEntry, payload, opts...)
}
