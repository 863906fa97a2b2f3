package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const competitionColumns = `id, slug, month, year, phase, is_active, is_archived,
    submission_start, submission_end, judging_start, judging_end, results_date,
    judging_criteria, total_submissions, total_participants, winners, created_at, updated_at`

func scanCompetition(row scanner) (Competition, error) {
	var i Competition
	err := row.Scan(
		&i.ID,
		&i.Slug,
		&i.Month,
		&i.Year,
		&i.Phase,
		&i.IsActive,
		&i.IsArchived,
		&i.SubmissionStart,
		&i.SubmissionEnd,
		&i.JudgingStart,
		&i.JudgingEnd,
		&i.ResultsDate,
		&i.JudgingCriteria,
		&i.TotalSubmissions,
		&i.TotalParticipants,
		&i.Winners,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createCompetition = `-- name: CreateCompetition :one
INSERT INTO competitions (
    slug, month, year, phase, is_active,
    submission_start, submission_end, judging_start, judging_end, results_date,
    judging_criteria
) VALUES ($1, $2, $3, 'submission', true, $4, $5, $6, $7, $8, $9)
RETURNING ` + competitionColumns

type CreateCompetitionParams struct {
	Slug            string          `json:"slug"`
	Month           string          `json:"month"`
	Year            int32           `json:"year"`
	SubmissionStart time.Time       `json:"submission_start"`
	SubmissionEnd   time.Time       `json:"submission_end"`
	JudgingStart    time.Time       `json:"judging_start"`
	JudgingEnd      time.Time       `json:"judging_end"`
	ResultsDate     time.Time       `json:"results_date"`
	JudgingCriteria json.RawMessage `json:"judging_criteria"`
}

func (q *Queries) CreateCompetition(ctx context.Context, arg CreateCompetitionParams) (Competition, error) {
	row := q.db.QueryRowContext(ctx, createCompetition,
		arg.Slug,
		arg.Month,
		arg.Year,
		arg.SubmissionStart,
		arg.SubmissionEnd,
		arg.JudgingStart,
		arg.JudgingEnd,
		arg.ResultsDate,
		arg.JudgingCriteria,
	)
	return scanCompetition(row)
}

const getCompetitionByID = `-- name: GetCompetitionByID :one
SELECT ` + competitionColumns + ` FROM competitions WHERE id = $1`

func (q *Queries) GetCompetitionByID(ctx context.Context, id uuid.UUID) (Competition, error) {
	return scanCompetition(q.db.QueryRowContext(ctx, getCompetitionByID, id))
}

const getCompetitionByMonthYear = `-- name: GetCompetitionByMonthYear :one
SELECT ` + competitionColumns + ` FROM competitions WHERE month = $1 AND year = $2`

type GetCompetitionByMonthYearParams struct {
	Month string `json:"month"`
	Year  int32  `json:"year"`
}

func (q *Queries) GetCompetitionByMonthYear(ctx context.Context, arg GetCompetitionByMonthYearParams) (Competition, error) {
	return scanCompetition(q.db.QueryRowContext(ctx, getCompetitionByMonthYear, arg.Month, arg.Year))
}

const getActiveCompetition = `-- name: GetActiveCompetition :one
SELECT ` + competitionColumns + ` FROM competitions WHERE is_active LIMIT 1`

func (q *Queries) GetActiveCompetition(ctx context.Context) (Competition, error) {
	return scanCompetition(q.db.QueryRowContext(ctx, getActiveCompetition))
}

const listUnarchivedCompetitions = `-- name: ListUnarchivedCompetitions :many
SELECT ` + competitionColumns + `
FROM competitions
WHERE NOT is_archived
ORDER BY submission_start`

func (q *Queries) ListUnarchivedCompetitions(ctx context.Context) ([]Competition, error) {
	rows, err := q.db.QueryContext(ctx, listUnarchivedCompetitions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Competition
	for rows.Next() {
		i, err := scanCompetition(rows)
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

const deactivateActiveCompetitions = `-- name: DeactivateActiveCompetitions :execrows
UPDATE competitions SET is_active = false, updated_at = now() WHERE is_active`

func (q *Queries) DeactivateActiveCompetitions(ctx context.Context) (int64, error) {
	result, err := q.db.ExecContext(ctx, deactivateActiveCompetitions)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Compare-and-set on the stored phase. No row means another writer moved it.
const updateCompetitionPhase = `-- name: UpdateCompetitionPhase :one
UPDATE competitions
SET phase = $3, updated_at = now()
WHERE id = $1 AND phase = $2
RETURNING ` + competitionColumns

type UpdateCompetitionPhaseParams struct {
	ID        uuid.UUID `json:"id"`
	FromPhase string    `json:"from_phase"`
	ToPhase   string    `json:"to_phase"`
}

func (q *Queries) UpdateCompetitionPhase(ctx context.Context, arg UpdateCompetitionPhaseParams) (Competition, error) {
	return scanCompetition(q.db.QueryRowContext(ctx, updateCompetitionPhase, arg.ID, arg.FromPhase, arg.ToPhase))
}

const archiveCompetition = `-- name: ArchiveCompetition :execrows
UPDATE competitions
SET is_archived = true, updated_at = now()
WHERE id = $1
  AND NOT is_active
  AND NOT is_archived
  AND phase IN ('ended', 'results_published')`

func (q *Queries) ArchiveCompetition(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.ExecContext(ctx, archiveCompetition, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const incrementCompetitionTotals = `-- name: IncrementCompetitionTotals :exec
UPDATE competitions
SET total_submissions = total_submissions + $2,
    total_participants = total_participants + $3,
    updated_at = now()
WHERE id = $1`

type IncrementCompetitionTotalsParams struct {
	ID           uuid.UUID `json:"id"`
	Submissions  int32     `json:"submissions"`
	Participants int32     `json:"participants"`
}

func (q *Queries) IncrementCompetitionTotals(ctx context.Context, arg IncrementCompetitionTotalsParams) error {
	_, err := q.db.ExecContext(ctx, incrementCompetitionTotals, arg.ID, arg.Submissions, arg.Participants)
	return err
}

const lockCompetition = `-- name: LockCompetition :one
SELECT id FROM competitions WHERE id = $1 FOR UPDATE`

// LockCompetition holds the competition row until the transaction ends, so
// entries for one competition are counted one at a time.
func (q *Queries) LockCompetition(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	return q.db.QueryRowContext(ctx, lockCompetition, id).Scan(&locked)
}

const publishCompetitionWinners = `-- name: PublishCompetitionWinners :one
UPDATE competitions
SET winners = $2, phase = 'results_published', updated_at = now()
WHERE id = $1 AND phase IN ('ended', 'results_published')
RETURNING ` + competitionColumns

type PublishCompetitionWinnersParams struct {
	ID      uuid.UUID       `json:"id"`
	Winners json.RawMessage `json:"winners"`
}

func (q *Queries) PublishCompetitionWinners(ctx context.Context, arg PublishCompetitionWinnersParams) (Competition, error) {
	return scanCompetition(q.db.QueryRowContext(ctx, publishCompetitionWinners, arg.ID, arg.Winners))
}
