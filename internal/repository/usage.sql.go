package repository

import (
	"context"

	"github.com/google/uuid"
)

const usageColumns = `user_id, month_key, stories_created, assessment_uploads, assessment_attempts, competition_entries, version, updated_at`

func scanUsageCounter(row scanner) (UsageCounter, error) {
	var i UsageCounter
	err := row.Scan(
		&i.UserID,
		&i.MonthKey,
		&i.StoriesCreated,
		&i.AssessmentUploads,
		&i.AssessmentAttempts,
		&i.CompetitionEntries,
		&i.Version,
		&i.UpdatedAt,
	)
	return i, err
}

const ensureUsageCounter = `-- name: EnsureUsageCounter :exec
INSERT INTO usage_counters (user_id, month_key)
VALUES ($1, $2)
ON CONFLICT (user_id) DO NOTHING`

type EnsureUsageCounterParams struct {
	UserID   uuid.UUID `json:"user_id"`
	MonthKey string    `json:"month_key"`
}

func (q *Queries) EnsureUsageCounter(ctx context.Context, arg EnsureUsageCounterParams) error {
	_, err := q.db.ExecContext(ctx, ensureUsageCounter, arg.UserID, arg.MonthKey)
	return err
}

const getUsageCounter = `-- name: GetUsageCounter :one
SELECT ` + usageColumns + ` FROM usage_counters WHERE user_id = $1`

func (q *Queries) GetUsageCounter(ctx context.Context, userID uuid.UUID) (UsageCounter, error) {
	return scanUsageCounter(q.db.QueryRowContext(ctx, getUsageCounter, userID))
}

// Only moves forward: a row already on a later month is left alone.
const resetStaleUsageCounter = `-- name: ResetStaleUsageCounter :execrows
UPDATE usage_counters
SET month_key = $2,
    stories_created = 0,
    assessment_uploads = 0,
    assessment_attempts = 0,
    competition_entries = 0,
    version = version + 1,
    updated_at = now()
WHERE user_id = $1 AND month_key < $2`

type ResetStaleUsageCounterParams struct {
	UserID   uuid.UUID `json:"user_id"`
	MonthKey string    `json:"month_key"`
}

func (q *Queries) ResetStaleUsageCounter(ctx context.Context, arg ResetStaleUsageCounterParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, resetStaleUsageCounter, arg.UserID, arg.MonthKey)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const resetUsageCountersBefore = `-- name: ResetUsageCountersBefore :execrows
UPDATE usage_counters
SET month_key = $1,
    stories_created = 0,
    assessment_uploads = 0,
    assessment_attempts = 0,
    competition_entries = 0,
    version = version + 1,
    updated_at = now()
WHERE month_key < $1`

func (q *Queries) ResetUsageCountersBefore(ctx context.Context, monthKey string) (int64, error) {
	result, err := q.db.ExecContext(ctx, resetUsageCountersBefore, monthKey)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// The limit check and the increment are one statement, so concurrent callers
// can never push a counter past the limit. No row means the limit was reached
// or the stored month differs.
const incrementUsageCounter = `-- name: IncrementUsageCounter :one
UPDATE usage_counters
SET stories_created     = stories_created     + CASE WHEN $3::text = 'stories_created'     THEN 1 ELSE 0 END,
    assessment_uploads  = assessment_uploads  + CASE WHEN $3::text = 'assessment_uploads'  THEN 1 ELSE 0 END,
    assessment_attempts = assessment_attempts + CASE WHEN $3::text = 'assessment_attempts' THEN 1 ELSE 0 END,
    competition_entries = competition_entries + CASE WHEN $3::text = 'competition_entries' THEN 1 ELSE 0 END,
    version = version + 1,
    updated_at = now()
WHERE user_id = $1
  AND month_key = $2
  AND CASE $3::text
        WHEN 'stories_created'     THEN stories_created
        WHEN 'assessment_uploads'  THEN assessment_uploads
        WHEN 'assessment_attempts' THEN assessment_attempts
        WHEN 'competition_entries' THEN competition_entries
      END < $4::integer
RETURNING ` + usageColumns

type IncrementUsageCounterParams struct {
	UserID   uuid.UUID `json:"user_id"`
	MonthKey string    `json:"month_key"`
	Counter  string    `json:"counter"`
	Limit    int32     `json:"limit"`
}

func (q *Queries) IncrementUsageCounter(ctx context.Context, arg IncrementUsageCounterParams) (UsageCounter, error) {
	row := q.db.QueryRowContext(ctx, incrementUsageCounter,
		arg.UserID,
		arg.MonthKey,
		arg.Counter,
		arg.Limit,
	)
	return scanUsageCounter(row)
}

const decrementUsageCounter = `-- name: DecrementUsageCounter :execrows
UPDATE usage_counters
SET stories_created     = GREATEST(stories_created     - CASE WHEN $3::text = 'stories_created'     THEN 1 ELSE 0 END, 0),
    assessment_uploads  = GREATEST(assessment_uploads  - CASE WHEN $3::text = 'assessment_uploads'  THEN 1 ELSE 0 END, 0),
    assessment_attempts = GREATEST(assessment_attempts - CASE WHEN $3::text = 'assessment_attempts' THEN 1 ELSE 0 END, 0),
    competition_entries = GREATEST(competition_entries - CASE WHEN $3::text = 'competition_entries' THEN 1 ELSE 0 END, 0),
    version = version + 1,
    updated_at = now()
WHERE user_id = $1 AND month_key = $2`

type DecrementUsageCounterParams struct {
	UserID   uuid.UUID `json:"user_id"`
	MonthKey string    `json:"month_key"`
	Counter  string    `json:"counter"`
}

func (q *Queries) DecrementUsageCounter(ctx context.Context, arg DecrementUsageCounterParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, decrementUsageCounter, arg.UserID, arg.MonthKey, arg.Counter)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
