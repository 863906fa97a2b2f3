package repository

import (
	"context"

	"github.com/google/uuid"
)

type Querier interface {
	// Users and sessions
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error)
	GetSessionUser(ctx context.Context, arg GetSessionUserParams) (User, error)

	// Usage counters
	EnsureUsageCounter(ctx context.Context, arg EnsureUsageCounterParams) error
	GetUsageCounter(ctx context.Context, userID uuid.UUID) (UsageCounter, error)
	ResetStaleUsageCounter(ctx context.Context, arg ResetStaleUsageCounterParams) (int64, error)
	ResetUsageCountersBefore(ctx context.Context, monthKey string) (int64, error)
	IncrementUsageCounter(ctx context.Context, arg IncrementUsageCounterParams) (UsageCounter, error)
	DecrementUsageCounter(ctx context.Context, arg DecrementUsageCounterParams) (int64, error)

	// Purchases
	CreatePurchase(ctx context.Context, arg CreatePurchaseParams) (Purchase, error)
	ListPurchasesSince(ctx context.Context, arg ListPurchasesSinceParams) ([]Purchase, error)

	// Competitions
	CreateCompetition(ctx context.Context, arg CreateCompetitionParams) (Competition, error)
	GetCompetitionByID(ctx context.Context, id uuid.UUID) (Competition, error)
	GetCompetitionByMonthYear(ctx context.Context, arg GetCompetitionByMonthYearParams) (Competition, error)
	GetActiveCompetition(ctx context.Context) (Competition, error)
	ListUnarchivedCompetitions(ctx context.Context) ([]Competition, error)
	DeactivateActiveCompetitions(ctx context.Context) (int64, error)
	UpdateCompetitionPhase(ctx context.Context, arg UpdateCompetitionPhaseParams) (Competition, error)
	ArchiveCompetition(ctx context.Context, id uuid.UUID) (int64, error)
	IncrementCompetitionTotals(ctx context.Context, arg IncrementCompetitionTotalsParams) error
	LockCompetition(ctx context.Context, id uuid.UUID) error
	PublishCompetitionWinners(ctx context.Context, arg PublishCompetitionWinnersParams) (Competition, error)

	// Stories
	CreateStory(ctx context.Context, arg CreateStoryParams) (Story, error)
	GetStoryByID(ctx context.Context, id uuid.UUID) (Story, error)
	UpdateStoryAssessmentStatus(ctx context.Context, arg UpdateStoryAssessmentStatusParams) error
	UpdateStoryAssessment(ctx context.Context, arg UpdateStoryAssessmentParams) error

	// Entries
	CreateEntry(ctx context.Context, arg CreateEntryParams) (Entry, error)
	GetEntryByID(ctx context.Context, id uuid.UUID) (Entry, error)
	GetEntryByStoryID(ctx context.Context, storyID uuid.UUID) (Entry, error)
	CountUserEntriesInCompetition(ctx context.Context, arg CountUserEntriesInCompetitionParams) (int64, error)
	CountCompetitionEntriesByIDs(ctx context.Context, arg CountCompetitionEntriesByIDsParams) (int64, error)
	ListRankedEntries(ctx context.Context, competitionID uuid.UUID) ([]Entry, error)
	ClearCompetitionWinners(ctx context.Context, competitionID uuid.UUID) error
	MarkEntryWinner(ctx context.Context, arg MarkEntryWinnerParams) (Entry, error)
	UpdateEntryScore(ctx context.Context, arg UpdateEntryScoreParams) error
	UpdateEntryAssessmentStatus(ctx context.Context, arg UpdateEntryAssessmentStatusParams) error

	// Jobs
	EnqueueJob(ctx context.Context, arg EnqueueJobParams) (Job, error)
	DequeueJob(ctx context.Context) (Job, error)
	UpdateJobStarted(ctx context.Context, id uuid.UUID) error
	UpdateJobCompleted(ctx context.Context, id uuid.UUID) error
	UpdateJobFailed(ctx context.Context, arg UpdateJobFailedParams) (Job, error)
	RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error)
}

var _ Querier = (*Queries)(nil)
