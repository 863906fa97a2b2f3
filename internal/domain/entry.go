package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// AssessmentStatus tracks AI assessment of a story or entry.
type AssessmentStatus string

const (
	AssessmentStatusNone     AssessmentStatus = "none"
	AssessmentStatusPending  AssessmentStatus = "pending"
	AssessmentStatusAssessed AssessmentStatus = "assessed"
	AssessmentStatusFailed   AssessmentStatus = "failed"
)

func (s AssessmentStatus) String() string {
	return string(s)
}

// Entry is a story submitted to a competition.
type Entry struct {
	ID               uuid.UUID        `json:"id"`
	CompetitionID    uuid.UUID        `json:"competition_id"`
	UserID           uuid.UUID        `json:"user_id"`
	StoryID          uuid.UUID        `json:"story_id"`
	WordCount        int              `json:"word_count"`
	SubmittedAt      time.Time        `json:"submitted_at"`
	Score            *float64         `json:"score,omitempty"`
	Rank             *int             `json:"rank,omitempty"`
	IsWinner         bool             `json:"is_winner"`
	AssessmentStatus AssessmentStatus `json:"assessment_status"`
}

// SubmissionResult is returned by a successful submission.
type SubmissionResult struct {
	CompetitionID uuid.UUID `json:"competition_id"`
	EntryID       uuid.UUID `json:"entry_id"`
}

// WordLimits is the accepted word count band for entries.
type WordLimits struct {
	Min int
	Max int
}

// Contains reports whether n lies within [Min, Max].
func (w WordLimits) Contains(n int) bool {
	return n >= w.Min && n <= w.Max
}

// Story is a piece of writing owned by a user.
type Story struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	Title            string           `json:"title"`
	Body             string           `json:"body,omitempty"`
	WordCount        int              `json:"word_count"`
	AssessmentStatus AssessmentStatus `json:"assessment_status"`
	Score            *float64         `json:"score,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Assessment is the stored result of an AI story assessment.
type Assessment struct {
	Scores   CriterionScores `json:"scores"`
	Feedback string          `json:"feedback"`
	Model    string          `json:"model"`
}

// CountWords counts whitespace-separated tokens that contain at least one
// letter or digit. Stray punctuation such as "—" does not count.
func CountWords(text string) int {
	n := 0
	for _, field := range strings.Fields(text) {
		if strings.IndexFunc(field, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) >= 0 {
			n++
		}
	}
	return n
}

// DefaultWordLimits is the standard entry band of 350 to 2000 words.
func DefaultWordLimits() WordLimits {
	return WordLimits{Min: 350, Max: 2000}
}
