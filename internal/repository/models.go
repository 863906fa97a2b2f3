package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Tier      string    `json:"tier"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type UsageCounter struct {
	UserID             uuid.UUID `json:"user_id"`
	MonthKey           string    `json:"month_key"`
	StoriesCreated     int32     `json:"stories_created"`
	AssessmentUploads  int32     `json:"assessment_uploads"`
	AssessmentAttempts int32     `json:"assessment_attempts"`
	CompetitionEntries int32     `json:"competition_entries"`
	Version            int64     `json:"version"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Purchase struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	PurchaseType string          `json:"purchase_type"`
	AmountCents  int64           `json:"amount_cents"`
	Currency     string          `json:"currency"`
	PurchaseDate time.Time       `json:"purchase_date"`
	Bonus        json.RawMessage `json:"bonus"`
	ExternalID   sql.NullString  `json:"external_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Competition struct {
	ID                uuid.UUID             `json:"id"`
	Slug              string                `json:"slug"`
	Month             string                `json:"month"`
	Year              int32                 `json:"year"`
	Phase             string                `json:"phase"`
	IsActive          bool                  `json:"is_active"`
	IsArchived        bool                  `json:"is_archived"`
	SubmissionStart   time.Time             `json:"submission_start"`
	SubmissionEnd     time.Time             `json:"submission_end"`
	JudgingStart      time.Time             `json:"judging_start"`
	JudgingEnd        time.Time             `json:"judging_end"`
	ResultsDate       time.Time             `json:"results_date"`
	JudgingCriteria   json.RawMessage       `json:"judging_criteria"`
	TotalSubmissions  int32                 `json:"total_submissions"`
	TotalParticipants int32                 `json:"total_participants"`
	Winners           pqtype.NullRawMessage `json:"winners"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

type Story struct {
	ID               uuid.UUID             `json:"id"`
	UserID           uuid.UUID             `json:"user_id"`
	Title            string                `json:"title"`
	Body             string                `json:"body"`
	WordCount        int32                 `json:"word_count"`
	AssessmentStatus string                `json:"assessment_status"`
	Score            sql.NullFloat64       `json:"score"`
	Assessment       pqtype.NullRawMessage `json:"assessment"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

type Entry struct {
	ID               uuid.UUID       `json:"id"`
	CompetitionID    uuid.UUID       `json:"competition_id"`
	UserID           uuid.UUID       `json:"user_id"`
	StoryID          uuid.UUID       `json:"story_id"`
	WordCount        int32           `json:"word_count"`
	SubmittedAt      time.Time       `json:"submitted_at"`
	Score            sql.NullFloat64 `json:"score"`
	Rank             sql.NullInt32   `json:"rank"`
	IsWinner         bool            `json:"is_winner"`
	AssessmentStatus string          `json:"assessment_status"`
}

type Job struct {
	ID           uuid.UUID       `json:"id"`
	JobType      string          `json:"job_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	Priority     int32           `json:"priority"`
	Attempts     int32           `json:"attempts"`
	MaxAttempts  int32           `json:"max_attempts"`
	ErrorMessage sql.NullString  `json:"error_message"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	StartedAt    sql.NullTime    `json:"started_at"`
	CompletedAt  sql.NullTime    `json:"completed_at"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Job statuses.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)
