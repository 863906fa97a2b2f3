// Package domain contains core business types and interfaces.
//
// This file defines the Competition type, its phase state machine, the
// schedule builder that computes phase boundaries, and judging criteria.
package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Phase
// =============================================================================

// Phase is the lifecycle state of a monthly competition. Phases only move
// forward.
type Phase string

const (
	// PhaseSubmission accepts entries until SubmissionEnd.
	PhaseSubmission Phase = "submission"

	// PhaseJudging runs from JudgingStart to JudgingEnd; entries are scored.
	PhaseJudging Phase = "judging"

	// PhaseResults waits for ResultsDate.
	PhaseResults Phase = "results"

	// PhaseEnded is terminal for the phase controller. Winners may be published.
	PhaseEnded Phase = "ended"

	// PhaseResultsPublished is set only by the winner publisher.
	PhaseResultsPublished Phase = "results_published"
)

// Rank returns the position of the phase in the lifecycle, or -1 if unknown.
func (p Phase) Rank() int {
	switch p {
	case PhaseSubmission:
		return 0
	case PhaseJudging:
		return 1
	case PhaseResults:
		return 2
	case PhaseEnded:
		return 3
	case PhaseResultsPublished:
		return 4
	}
	return -1
}

// IsValid returns true if the phase is a recognized value.
func (p Phase) IsValid() bool {
	return p.Rank() >= 0
}

// After reports whether p is strictly later than other.
func (p Phase) After(other Phase) bool {
	return p.Rank() > other.Rank()
}

// IsFinal reports whether the phase controller can no longer advance p.
func (p Phase) IsFinal() bool {
	return p == PhaseEnded || p == PhaseResultsPublished
}

// CanPublishWinners reports whether winners may be (re)published.
func (p Phase) CanPublishWinners() bool {
	return p == PhaseEnded || p == PhaseResultsPublished
}

func (p Phase) String() string {
	return string(p)
}

// =============================================================================
// Schedule
// =============================================================================

// ScheduleConfig holds the configured phase lengths, in days.
type ScheduleConfig struct {
	SubmissionDays    int
	JudgingDays       int
	ResultsOffsetDays int // days from the first of the month to ResultsDate
}

// DefaultScheduleConfig returns the standard monthly schedule.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		SubmissionDays:    20,
		JudgingDays:       5,
		ResultsOffsetDays: 27,
	}
}

// Validate checks that the windows are positive and ordered.
func (c ScheduleConfig) Validate() error {
	if c.SubmissionDays < 1 {
		return fmt.Errorf("submission window must be at least 1 day, got %d", c.SubmissionDays)
	}
	if c.JudgingDays < 1 {
		return fmt.Errorf("judging window must be at least 1 day, got %d", c.JudgingDays)
	}
	if c.ResultsOffsetDays < c.SubmissionDays+c.JudgingDays {
		return fmt.Errorf("results offset (%d days) must not precede the end of judging (%d days)",
			c.ResultsOffsetDays, c.SubmissionDays+c.JudgingDays)
	}
	return nil
}

// Schedule holds the phase boundaries of a competition. Boundaries are fixed
// at creation and never modified afterwards.
type Schedule struct {
	SubmissionStart time.Time `json:"submission_start"`
	SubmissionEnd   time.Time `json:"submission_end"`
	JudgingStart    time.Time `json:"judging_start"`
	JudgingEnd      time.Time `json:"judging_end"`
	ResultsDate     time.Time `json:"results_date"`
}

// BuildSchedule computes the phase boundaries for year/month, anchored to
// 00:00 on the first day of the month in loc.
func BuildSchedule(year int, month time.Month, cfg ScheduleConfig, loc *time.Location) (Schedule, error) {
	if month < time.January || month > time.December {
		return Schedule{}, fmt.Errorf("month must be between 1 and 12, got %d", month)
	}
	if year < 2000 || year > 9999 {
		return Schedule{}, fmt.Errorf("year out of range: %d", year)
	}
	if err := cfg.Validate(); err != nil {
		return Schedule{}, err
	}
	if loc == nil {
		loc = time.Local
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	judgingStart := start.AddDate(0, 0, cfg.SubmissionDays)
	judgingClose := judgingStart.AddDate(0, 0, cfg.JudgingDays)

	return Schedule{
		SubmissionStart: start,
		SubmissionEnd:   judgingStart.Add(-time.Nanosecond),
		JudgingStart:    judgingStart,
		JudgingEnd:      judgingClose.Add(-time.Nanosecond),
		ResultsDate:     start.AddDate(0, 0, cfg.ResultsOffsetDays),
	}, nil
}

// PhaseAt returns the phase the schedule dictates at now. It never returns
// PhaseResultsPublished.
func (s Schedule) PhaseAt(now time.Time) Phase {
	switch {
	case now.After(s.ResultsDate):
		return PhaseEnded
	case now.After(s.JudgingEnd):
		return PhaseResults
	case now.After(s.SubmissionEnd):
		return PhaseJudging
	default:
		return PhaseSubmission
	}
}

// =============================================================================
// Judging Criteria
// =============================================================================

// criteriaEpsilon is the tolerance for the weights-sum-to-one check.
const criteriaEpsilon = 1e-6

// JudgingCriteria holds the weight of each scoring criterion. Weights must
// sum to 1.0.
type JudgingCriteria struct {
	Creativity      float64 `json:"creativity"`
	Prose           float64 `json:"prose"`
	Structure       float64 `json:"structure"`
	PromptAdherence float64 `json:"prompt_adherence"`
}

// DefaultJudgingCriteria returns the standard weights.
func DefaultJudgingCriteria() JudgingCriteria {
	return JudgingCriteria{
		Creativity:      0.3,
		Prose:           0.3,
		Structure:       0.2,
		PromptAdherence: 0.2,
	}
}

// Validate checks each weight lies in [0, 1] and the weights sum to 1.
func (c JudgingCriteria) Validate() error {
	weights := map[string]float64{
		"creativity":       c.Creativity,
		"prose":            c.Prose,
		"structure":        c.Structure,
		"prompt_adherence": c.PromptAdherence,
	}
	var sum float64
	for name, w := range weights {
		if math.IsNaN(w) || w < 0 || w > 1 {
			return fmt.Errorf("weight %q must be between 0 and 1, got %v", name, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > criteriaEpsilon {
		return fmt.Errorf("judging criteria weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// CriterionScores are per-criterion scores on a 0-10 scale.
type CriterionScores struct {
	Creativity      float64 `json:"creativity"`
	Prose           float64 `json:"prose"`
	Structure       float64 `json:"structure"`
	PromptAdherence float64 `json:"prompt_adherence"`
}

// Weighted returns the score weighted by the criteria.
func (c JudgingCriteria) Weighted(s CriterionScores) float64 {
	return c.Creativity*s.Creativity +
		c.Prose*s.Prose +
		c.Structure*s.Structure +
		c.PromptAdherence*s.PromptAdherence
}

// Mean returns the unweighted average score.
func (s CriterionScores) Mean() float64 {
	return (s.Creativity + s.Prose + s.Structure + s.PromptAdherence) / 4
}

// =============================================================================
// Competition
// =============================================================================

// Winner is one placed entry in a published result.
type Winner struct {
	Position int       `json:"position"`
	EntryID  uuid.UUID `json:"entry_id"`
	UserID   uuid.UUID `json:"user_id"`
	StoryID  uuid.UUID `json:"story_id"`
	Score    *float64  `json:"score,omitempty"`
}

// Competition is a single monthly writing competition.
type Competition struct {
	ID                uuid.UUID       `json:"id"`
	Slug              string          `json:"slug"`
	Month             string          `json:"month"`
	Year              int             `json:"year"`
	Phase             Phase           `json:"phase"`
	IsActive          bool            `json:"is_active"`
	IsArchived        bool            `json:"is_archived"`
	Schedule          Schedule        `json:"schedule"`
	JudgingCriteria   JudgingCriteria `json:"judging_criteria"`
	TotalSubmissions  int64           `json:"total_submissions"`
	TotalParticipants int64           `json:"total_participants"`
	Winners           []Winner        `json:"winners"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AcceptsSubmissions reports whether an entry may be recorded at now.
func (c *Competition) AcceptsSubmissions(now time.Time) bool {
	return c.IsActive && c.Phase == PhaseSubmission && !now.After(c.Schedule.SubmissionEnd)
}

// CreateCompetitionParams contains parameters for creating a monthly competition.
type CreateCompetitionParams struct {
	Year     int
	Month    time.Month
	Criteria *JudgingCriteria // nil uses DefaultJudgingCriteria
}

// WinnerInput is one line of an admin-supplied winner list.
type WinnerInput struct {
	EntryID  uuid.UUID `json:"entry_id"`
	Position int       `json:"position"`
}

// MaxWinnerPosition is the largest position that fits the stored entry rank.
const MaxWinnerPosition = math.MaxInt32

// ValidateWinnerInputs checks positions are unique positive integers within
// MaxWinnerPosition and entry ids are unique.
func ValidateWinnerInputs(op string, winners []WinnerInput) error {
	positions := make(map[int]bool, len(winners))
	entries := make(map[uuid.UUID]bool, len(winners))
	for i, w := range winners {
		if w.EntryID == uuid.Nil {
			return Rejected(op, ReasonInvalidWinners, fmt.Sprintf("winner %d is missing an entry id", i+1))
		}
		if w.Position < 1 || w.Position > MaxWinnerPosition {
			return Rejected(op, ReasonInvalidWinners,
				fmt.Sprintf("position must be between 1 and %d, got %d", MaxWinnerPosition, w.Position))
		}
		if positions[w.Position] {
			return Rejected(op, ReasonInvalidWinners, fmt.Sprintf("duplicate position %d", w.Position))
		}
		if entries[w.EntryID] {
			return Rejected(op, ReasonInvalidWinners, fmt.Sprintf("entry %s listed more than once", w.EntryID))
		}
		positions[w.Position] = true
		entries[w.EntryID] = true
	}
	return nil
}

// SweepSummary reports the outcome of a phase sweep.
type SweepSummary struct {
	Checked  int  `json:"checked"`
	Advanced int  `json:"advanced"`
	Archived int  `json:"archived"`
	Failed   int  `json:"failed"`
	Degraded bool `json:"degraded"`
}

// ResetSummary reports the outcome of a monthly usage reset.
type ResetSummary struct {
	MonthKey MonthKey `json:"month_key"`
	Reset    int64    `json:"reset"`
	Degraded bool     `json:"degraded"`
}
