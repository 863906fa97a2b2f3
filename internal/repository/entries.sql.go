package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const entryColumns = `id, competition_id, user_id, story_id, word_count, submitted_at, score, rank, is_winner, assessment_status`

func scanEntry(row scanner) (Entry, error) {
	var i Entry
	err := row.Scan(
		&i.ID,
		&i.CompetitionID,
		&i.UserID,
		&i.StoryID,
		&i.WordCount,
		&i.SubmittedAt,
		&i.Score,
		&i.Rank,
		&i.IsWinner,
		&i.AssessmentStatus,
	)
	return i, err
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var items []Entry
	for rows.Next() {
		i, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createEntry = `-- name: CreateEntry :one
INSERT INTO entries (competition_id, user_id, story_id, word_count, submitted_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + entryColumns

type CreateEntryParams struct {
	CompetitionID uuid.UUID `json:"competition_id"`
	UserID        uuid.UUID `json:"user_id"`
	StoryID       uuid.UUID `json:"story_id"`
	WordCount     int32     `json:"word_count"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

func (q *Queries) CreateEntry(ctx context.Context, arg CreateEntryParams) (Entry, error) {
	row := q.db.QueryRowContext(ctx, createEntry,
		arg.CompetitionID,
		arg.UserID,
		arg.StoryID,
		arg.WordCount,
		arg.SubmittedAt,
	)
	return scanEntry(row)
}

const getEntryByID = `-- name: GetEntryByID :one
SELECT ` + entryColumns + ` FROM entries WHERE id = $1`

func (q *Queries) GetEntryByID(ctx context.Context, id uuid.UUID) (Entry, error) {
	return scanEntry(q.db.QueryRowContext(ctx, getEntryByID, id))
}

const getEntryByStoryID = `-- name: GetEntryByStoryID :one
SELECT ` + entryColumns + ` FROM entries WHERE story_id = $1`

func (q *Queries) GetEntryByStoryID(ctx context.Context, storyID uuid.UUID) (Entry, error) {
	return scanEntry(q.db.QueryRowContext(ctx, getEntryByStoryID, storyID))
}

const countUserEntriesInCompetition = `-- name: CountUserEntriesInCompetition :one
SELECT count(*) FROM entries WHERE competition_id = $1 AND user_id = $2`

type CountUserEntriesInCompetitionParams struct {
	CompetitionID uuid.UUID `json:"competition_id"`
	UserID        uuid.UUID `json:"user_id"`
}

func (q *Queries) CountUserEntriesInCompetition(ctx context.Context, arg CountUserEntriesInCompetitionParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countUserEntriesInCompetition, arg.CompetitionID, arg.UserID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countCompetitionEntriesByIDs = `-- name: CountCompetitionEntriesByIDs :one
SELECT count(*) FROM entries WHERE competition_id = $1 AND id = ANY($2::uuid[])`

type CountCompetitionEntriesByIDsParams struct {
	CompetitionID uuid.UUID   `json:"competition_id"`
	IDs           []uuid.UUID `json:"ids"`
}

func (q *Queries) CountCompetitionEntriesByIDs(ctx context.Context, arg CountCompetitionEntriesByIDsParams) (int64, error) {
	ids := make([]string, len(arg.IDs))
	for i, id := range arg.IDs {
		ids[i] = id.String()
	}
	row := q.db.QueryRowContext(ctx, countCompetitionEntriesByIDs, arg.CompetitionID, pq.Array(ids))
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listRankedEntries = `-- name: ListRankedEntries :many
SELECT ` + entryColumns + `
FROM entries
WHERE competition_id = $1
ORDER BY score DESC NULLS LAST, submitted_at ASC`

func (q *Queries) ListRankedEntries(ctx context.Context, competitionID uuid.UUID) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, listRankedEntries, competitionID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

const clearCompetitionWinners = `-- name: ClearCompetitionWinners :exec
UPDATE entries SET is_winner = false, rank = NULL WHERE competition_id = $1`

func (q *Queries) ClearCompetitionWinners(ctx context.Context, competitionID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, clearCompetitionWinners, competitionID)
	return err
}

const markEntryWinner = `-- name: MarkEntryWinner :one
UPDATE entries SET is_winner = true, rank = $3
WHERE id = $1 AND competition_id = $2
RETURNING ` + entryColumns

type MarkEntryWinnerParams struct {
	ID            uuid.UUID `json:"id"`
	CompetitionID uuid.UUID `json:"competition_id"`
	Rank          int32     `json:"rank"`
}

func (q *Queries) MarkEntryWinner(ctx context.Context, arg MarkEntryWinnerParams) (Entry, error) {
	return scanEntry(q.db.QueryRowContext(ctx, markEntryWinner, arg.ID, arg.CompetitionID, arg.Rank))
}

const updateEntryScore = `-- name: UpdateEntryScore :exec
UPDATE entries SET score = $2, assessment_status = 'assessed' WHERE id = $1`

type UpdateEntryScoreParams struct {
	ID    uuid.UUID `json:"id"`
	Score float64   `json:"score"`
}

func (q *Queries) UpdateEntryScore(ctx context.Context, arg UpdateEntryScoreParams) error {
	_, err := q.db.ExecContext(ctx, updateEntryScore, arg.ID, arg.Score)
	return err
}

const updateEntryAssessmentStatus = `-- name: UpdateEntryAssessmentStatus :exec
UPDATE entries SET assessment_status = $2 WHERE id = $1`

type UpdateEntryAssessmentStatusParams struct {
	ID               uuid.UUID `json:"id"`
	AssessmentStatus string    `json:"assessment_status"`
}

func (q *Queries) UpdateEntryAssessmentStatus(ctx context.Context, arg UpdateEntryAssessmentStatusParams) error {
	_, err := q.db.ExecContext(ctx, updateEntryAssessmentStatus, arg.ID, arg.AssessmentStatus)
	return err
}
