package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const storyColumns = `id, user_id, title, body, word_count, assessment_status, score, assessment, created_at, updated_at`

func scanStory(row scanner) (Story, error) {
	var i Story
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Title,
		&i.Body,
		&i.WordCount,
		&i.AssessmentStatus,
		&i.Score,
		&i.Assessment,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createStory = `-- name: CreateStory :one
INSERT INTO stories (user_id, title, body, word_count)
VALUES ($1, $2, $3, $4)
RETURNING ` + storyColumns

type CreateStoryParams struct {
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	WordCount int32     `json:"word_count"`
}

func (q *Queries) CreateStory(ctx context.Context, arg CreateStoryParams) (Story, error) {
	row := q.db.QueryRowContext(ctx, createStory, arg.UserID, arg.Title, arg.Body, arg.WordCount)
	return scanStory(row)
}

const getStoryByID = `-- name: GetStoryByID :one
SELECT ` + storyColumns + ` FROM stories WHERE id = $1`

func (q *Queries) GetStoryByID(ctx context.Context, id uuid.UUID) (Story, error) {
	return scanStory(q.db.QueryRowContext(ctx, getStoryByID, id))
}

const updateStoryAssessmentStatus = `-- name: UpdateStoryAssessmentStatus :exec
UPDATE stories SET assessment_status = $2, updated_at = now() WHERE id = $1`

type UpdateStoryAssessmentStatusParams struct {
	ID               uuid.UUID `json:"id"`
	AssessmentStatus string    `json:"assessment_status"`
}

func (q *Queries) UpdateStoryAssessmentStatus(ctx context.Context, arg UpdateStoryAssessmentStatusParams) error {
	_, err := q.db.ExecContext(ctx, updateStoryAssessmentStatus, arg.ID, arg.AssessmentStatus)
	return err
}

const updateStoryAssessment = `-- name: UpdateStoryAssessment :exec
UPDATE stories
SET assessment_status = 'assessed', score = $2, assessment = $3, updated_at = now()
WHERE id = $1`

type UpdateStoryAssessmentParams struct {
	ID         uuid.UUID             `json:"id"`
	Score      sql.NullFloat64       `json:"score"`
	Assessment pqtype.NullRawMessage `json:"assessment"`
}

func (q *Queries) UpdateStoryAssessment(ctx context.Context, arg UpdateStoryAssessmentParams) error {
	_, err := q.db.ExecContext(ctx, updateStoryAssessment, arg.ID, arg.Score, arg.Assessment)
	return err
}
