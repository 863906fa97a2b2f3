// Package service contains the business logic layer.
//
// This file implements the competition lifecycle: the monthly factory, the
// phase controller and its sweep, and the winner publisher.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/metrics"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/DukeRupert/inkwell/internal/storage"
	"github.com/DukeRupert/inkwell/internal/timesource"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// =============================================================================
// Interface Definition
// =============================================================================

// CompetitionService manages monthly competitions.
type CompetitionService interface {
	// CreateMonthly creates the competition for params.Year/params.Month,
	// deactivating the previously active one. If a competition already exists
	// for that month it is returned unchanged with created=false. A zero
	// Year and Month mean the current trusted month.
	CreateMonthly(ctx context.Context, params domain.CreateCompetitionParams) (comp *domain.Competition, created bool, err error)

	// AdvancePhase moves a competition to the phase its schedule dictates at
	// the trusted current time. Phases never move backward.
	AdvancePhase(ctx context.Context, id uuid.UUID) (*domain.Competition, error)

	// AdvanceAll advances every unarchived competition and archives the
	// inactive ones that have finished.
	AdvanceAll(ctx context.Context) (*domain.SweepSummary, error)

	// PublishWinners replaces the winner marks of a competition and moves it
	// to results_published.
	PublishWinners(ctx context.Context, id uuid.UUID, winners []domain.WinnerInput) (*domain.Competition, error)

	// Current returns the active competition.
	Current(ctx context.Context) (*domain.Competition, error)

	// Get returns a competition by ID.
	Get(ctx context.Context, id uuid.UUID) (*domain.Competition, error)

	// RankedEntries returns a competition's entries, best score first.
	RankedEntries(ctx context.Context, id uuid.UUID) ([]domain.Entry, error)
}

// CompetitionConfig configures schedule construction.
type CompetitionConfig struct {
	Schedule domain.ScheduleConfig
	Location *time.Location
}

// =============================================================================
// Implementation
// =============================================================================

type competitionService struct {
	store   repository.Store
	clock   timesource.Clock
	storage storage.Storage
	config  CompetitionConfig
	logger  *slog.Logger
}

// NewCompetitionService creates a new CompetitionService. archive may be nil,
// in which case published results are not exported.
func NewCompetitionService(
	store repository.Store,
	clock timesource.Clock,
	archive storage.Storage,
	config CompetitionConfig,
	logger *slog.Logger,
) CompetitionService {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &competitionService{
		store:   store,
		clock:   clock,
		storage: archive,
		config:  config,
		logger:  logger,
	}
}

// =============================================================================
// Factory
// =============================================================================

func (s *competitionService) CreateMonthly(ctx context.Context, params domain.CreateCompetitionParams) (*domain.Competition, bool, error) {
	const op = "competition.create_monthly"

	if params.Year == 0 && params.Month == 0 {
		now := s.clock.Now(ctx).Time.In(s.config.Location)
		params.Year, params.Month = now.Year(), now.Month()
	}

	key := repository.GetCompetitionByMonthYearParams{
		Month: monthName(params.Month),
		Year:  int32(params.Year),
	}

	// An existing month is returned as is, whatever criteria the retry carries.
	existing, err := s.store.GetCompetitionByMonthYear(ctx, key)
	if err == nil {
		comp, err := repoCompetitionToDomain(existing)
		if err != nil {
			return nil, false, domain.Internal(err, op, "Failed to decode competition")
		}
		return comp, false, nil
	}
	if !repository.IsNotFound(err) {
		return nil, false, domain.Internal(err, op, "Failed to look up competition")
	}

	criteria := domain.DefaultJudgingCriteria()
	if params.Criteria != nil {
		criteria = *params.Criteria
	}
	if err := criteria.Validate(); err != nil {
		return nil, false, domain.Rejected(op, domain.ReasonInvalidCriteria, err.Error())
	}

	schedule, err := domain.BuildSchedule(params.Year, params.Month, s.config.Schedule, s.config.Location)
	if err != nil {
		return nil, false, domain.Invalid(op, err.Error())
	}

	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return nil, false, domain.Internal(err, op, "Failed to encode judging criteria")
	}

	var row repository.Competition
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		if _, err := q.DeactivateActiveCompetitions(ctx); err != nil {
			return err
		}
		var err error
		row, err = q.CreateCompetition(ctx, repository.CreateCompetitionParams{
			Slug:            slug.Make(fmt.Sprintf("%s %d", key.Month, params.Year)),
			Month:           key.Month,
			Year:            key.Year,
			SubmissionStart: schedule.SubmissionStart,
			SubmissionEnd:   schedule.SubmissionEnd,
			JudgingStart:    schedule.JudgingStart,
			JudgingEnd:      schedule.JudgingEnd,
			ResultsDate:     schedule.ResultsDate,
			JudgingCriteria: criteriaJSON,
		})
		return err
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			// Lost a race with a concurrent creator.
			existing, gerr := s.store.GetCompetitionByMonthYear(ctx, key)
			if gerr == nil {
				comp, err := repoCompetitionToDomain(existing)
				if err != nil {
					return nil, false, domain.Internal(err, op, "Failed to decode competition")
				}
				s.logger.Info("competition already created concurrently", "competition_id", comp.ID)
				return comp, false, nil
			}
			return nil, false, domain.Conflict(op, "Another competition was created concurrently")
		}
		return nil, false, domain.Internal(err, op, "Failed to create competition")
	}

	comp, err := repoCompetitionToDomain(row)
	if err != nil {
		return nil, false, domain.Internal(err, op, "Failed to decode competition")
	}

	metrics.CompetitionsCreated.Inc()
	s.logger.Info("competition created",
		"competition_id", comp.ID,
		"slug", comp.Slug,
		"submission_end", comp.Schedule.SubmissionEnd,
		"results_date", comp.Schedule.ResultsDate,
	)
	return comp, true, nil
}

// =============================================================================
// Phase Controller
// =============================================================================

func (s *competitionService) AdvancePhase(ctx context.Context, id uuid.UUID) (*domain.Competition, error) {
	const op = "competition.advance_phase"

	row, err := s.store.GetCompetitionByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "competition", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve competition")
	}

	reading := s.clock.Now(ctx)
	row, _, err = s.advance(ctx, row, reading.Time)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to advance phase")
	}

	comp, err := repoCompetitionToDomain(row)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to decode competition")
	}
	return comp, nil
}

// advance applies the schedule's phase at now if it is strictly later than
// the stored one. It reports whether this call changed the phase.
func (s *competitionService) advance(ctx context.Context, row repository.Competition, now time.Time) (repository.Competition, bool, error) {
	current := domain.Phase(row.Phase)
	if current.IsFinal() {
		return row, false, nil
	}

	schedule := domain.Schedule{
		SubmissionStart: row.SubmissionStart,
		SubmissionEnd:   row.SubmissionEnd,
		JudgingStart:    row.JudgingStart,
		JudgingEnd:      row.JudgingEnd,
		ResultsDate:     row.ResultsDate,
	}
	target := schedule.PhaseAt(now)

	if !target.After(current) {
		if current.After(target) {
			s.logger.Warn("phase regression rejected",
				"competition_id", row.ID,
				"stored_phase", current,
				"computed_phase", target,
				"now", now,
			)
		}
		return row, false, nil
	}

	updated, err := s.store.UpdateCompetitionPhase(ctx, repository.UpdateCompetitionPhaseParams{
		ID:        row.ID,
		FromPhase: string(current),
		ToPhase:   string(target),
	})
	if err != nil {
		if repository.IsNotFound(err) {
			// Another sweep moved it first.
			fresh, err := s.store.GetCompetitionByID(ctx, row.ID)
			return fresh, false, err
		}
		return row, false, err
	}

	metrics.PhaseTransitionsTotal.WithLabelValues(string(current), string(target)).Inc()
	s.logger.Info("competition phase advanced",
		"competition_id", row.ID,
		"from", current,
		"to", target,
	)
	return updated, true, nil
}

func (s *competitionService) AdvanceAll(ctx context.Context) (*domain.SweepSummary, error) {
	const op = "competition.advance_all"

	reading := s.clock.Now(ctx)

	rows, err := s.store.ListUnarchivedCompetitions(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list competitions")
	}

	summary := &domain.SweepSummary{Degraded: reading.Degraded}
	for _, row := range rows {
		summary.Checked++

		updated, advanced, err := s.advance(ctx, row, reading.Time)
		if err != nil {
			summary.Failed++
			s.logger.Error("failed to advance competition",
				"competition_id", row.ID,
				"error", err,
			)
			continue
		}
		if advanced {
			summary.Advanced++
		}

		if updated.IsActive || !domain.Phase(updated.Phase).IsFinal() {
			continue
		}
		n, err := s.store.ArchiveCompetition(ctx, updated.ID)
		if err != nil {
			summary.Failed++
			s.logger.Error("failed to archive competition",
				"competition_id", updated.ID,
				"error", err,
			)
			continue
		}
		if n > 0 {
			summary.Archived++
			s.logger.Info("competition archived", "competition_id", updated.ID)
		}
	}

	s.logger.Info("phase sweep complete",
		"checked", summary.Checked,
		"advanced", summary.Advanced,
		"archived", summary.Archived,
		"failed", summary.Failed,
		"degraded", summary.Degraded,
	)
	return summary, nil
}

// =============================================================================
// Winner Publisher
// =============================================================================

// ResultsSnapshot is the exported form of a published competition.
type ResultsSnapshot struct {
	Competition *domain.Competition `json:"competition"`
	PublishedAt time.Time           `json:"published_at"`
}

func (s *competitionService) PublishWinners(ctx context.Context, id uuid.UUID, winners []domain.WinnerInput) (*domain.Competition, error) {
	const op = "competition.publish_winners"

	if err := domain.ValidateWinnerInputs(op, winners); err != nil {
		return nil, err
	}

	row, err := s.store.GetCompetitionByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "competition", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve competition")
	}
	if phase := domain.Phase(row.Phase); !phase.CanPublishWinners() {
		return nil, domain.PhaseViolation(op, phase, "Winners can only be published after the competition has ended")
	}

	if len(winners) > 0 {
		ids := make([]uuid.UUID, len(winners))
		for i, w := range winners {
			ids[i] = w.EntryID
		}
		count, err := s.store.CountCompetitionEntriesByIDs(ctx, repository.CountCompetitionEntriesByIDsParams{
			CompetitionID: id,
			IDs:           ids,
		})
		if err != nil {
			return nil, domain.Internal(err, op, "Failed to verify entries")
		}
		if count != int64(len(ids)) {
			return nil, domain.Rejected(op, domain.ReasonInvalidWinners,
				"One or more entries do not belong to this competition")
		}
	}

	ordered := make([]domain.WinnerInput, len(winners))
	copy(ordered, winners)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	var published repository.Competition
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.ClearCompetitionWinners(ctx, id); err != nil {
			return err
		}

		list := make([]domain.Winner, 0, len(ordered))
		for _, w := range ordered {
			e, err := q.MarkEntryWinner(ctx, repository.MarkEntryWinnerParams{
				ID:            w.EntryID,
				CompetitionID: id,
				Rank:          int32(w.Position),
			})
			if err != nil {
				if repository.IsNotFound(err) {
					return domain.Rejected(op, domain.ReasonInvalidWinners,
						fmt.Sprintf("Entry %s does not belong to this competition", w.EntryID))
				}
				return err
			}
			entry := repoEntryToDomain(e)
			list = append(list, domain.Winner{
				Position: w.Position,
				EntryID:  entry.ID,
				UserID:   entry.UserID,
				StoryID:  entry.StoryID,
				Score:    entry.Score,
			})
		}

		data, err := json.Marshal(list)
		if err != nil {
			return err
		}
		published, err = q.PublishCompetitionWinners(ctx, repository.PublishCompetitionWinnersParams{
			ID:      id,
			Winners: data,
		})
		if repository.IsNotFound(err) {
			return domain.PhaseViolation(op, domain.Phase(row.Phase), "Competition phase changed during publication")
		}
		return err
	})
	if err != nil {
		if domain.ErrorCode(err) != domain.EINTERNAL {
			return nil, err
		}
		return nil, domain.Internal(err, op, "Failed to publish winners")
	}

	comp, err := repoCompetitionToDomain(published)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to decode competition")
	}

	metrics.WinnersPublished.Inc()
	s.logger.Info("winners published",
		"competition_id", comp.ID,
		"winners", len(comp.Winners),
	)

	s.exportResults(ctx, comp)
	return comp, nil
}

// exportResults writes the results snapshot to storage. Failures are logged
// and never undo the publication.
func (s *competitionService) exportResults(ctx context.Context, comp *domain.Competition) {
	if s.storage == nil {
		return
	}

	data, err := json.MarshalIndent(ResultsSnapshot{
		Competition: comp,
		PublishedAt: comp.UpdatedAt,
	}, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode results snapshot", "competition_id", comp.ID, "error", err)
		return
	}

	key := storage.ResultsKey(comp.Slug)
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{
		ContentType: "application/json",
		Overwrite:   true,
	}); err != nil {
		s.logger.Error("failed to export results snapshot",
			"competition_id", comp.ID,
			"key", key,
			"error", err,
		)
		return
	}
	s.logger.Info("results snapshot exported", "competition_id", comp.ID, "key", key)
}

// =============================================================================
// Queries
// =============================================================================

func (s *competitionService) Current(ctx context.Context) (*domain.Competition, error) {
	const op = "competition.current"

	row, err := s.store.GetActiveCompetition(ctx)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, noActiveCompetition(op)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve competition")
	}
	comp, err := repoCompetitionToDomain(row)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to decode competition")
	}
	return comp, nil
}

func (s *competitionService) Get(ctx context.Context, id uuid.UUID) (*domain.Competition, error) {
	const op = "competition.get"

	row, err := s.store.GetCompetitionByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "competition", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve competition")
	}
	comp, err := repoCompetitionToDomain(row)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to decode competition")
	}
	return comp, nil
}

func (s *competitionService) RankedEntries(ctx context.Context, id uuid.UUID) ([]domain.Entry, error) {
	const op = "competition.ranked_entries"

	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.store.ListRankedEntries(ctx, id)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list entries")
	}
	entries := make([]domain.Entry, len(rows))
	for i, row := range rows {
		entries[i] = repoEntryToDomain(row)
	}
	return entries, nil
}

func noActiveCompetition(op string) *domain.Error {
	return &domain.Error{
		Code:    domain.ENOTFOUND,
		Op:      op,
		Message: "There is no active competition",
		Reason:  domain.ReasonNoCompetition,
	}
}
