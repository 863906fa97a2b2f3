package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/DukeRupert/inkwell/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMonthly(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)

	comp := e.createMarch(t)
	assert.Equal(t, "march-2025", comp.Slug)
	assert.Equal(t, "March", comp.Month)
	assert.Equal(t, 2025, comp.Year)
	assert.Equal(t, domain.PhaseSubmission, comp.Phase)
	assert.True(t, comp.IsActive)
	assert.False(t, comp.IsArchived)
	assert.Equal(t, domain.DefaultJudgingCriteria(), comp.JudgingCriteria)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), comp.Schedule.SubmissionStart)
	assert.Equal(t, time.Date(2025, 3, 28, 0, 0, 0, 0, time.UTC), comp.Schedule.ResultsDate)
	assert.Empty(t, comp.Winners)

	again, created, err := e.competition.CreateMonthly(ctx, domain.CreateCompetitionParams{Year: 2025, Month: time.March})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, comp.ID, again.ID)
}

func TestCreateMonthly_RepeatKeepsProgress(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	comp := e.createMarch(t)

	user := e.createUser(t, domain.TierFree)
	_, err := e.submission.Submit(ctx, user, e.createStory(t, user, 500))
	require.NoError(t, err)

	e.setNow(time.Date(2025, 3, 22, 0, 0, 0, 0, time.UTC))
	advanced, err := e.competition.AdvancePhase(ctx, comp.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseJudging, advanced.Phase)

	// A retried trigger may carry different, even invalid, criteria.
	bad := domain.JudgingCriteria{Creativity: 1, Prose: 1}
	for _, criteria := range []*domain.JudgingCriteria{nil, &bad} {
		again, created, err := e.competition.CreateMonthly(ctx, domain.CreateCompetitionParams{
			Year:     2025,
			Month:    time.March,
			Criteria: criteria,
		})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, comp.ID, again.ID)
		assert.Equal(t, domain.PhaseJudging, again.Phase)
		assert.Equal(t, int64(1), again.TotalSubmissions)
		assert.Equal(t, int64(1), again.TotalParticipants)
		assert.Equal(t, domain.DefaultJudgingCriteria(), again.JudgingCriteria)
	}
}

func TestCreateMonthly_DefaultsToCurrentMonth(t *testing.T) {
	e := newEnv(t, time.Date(2025, time.July, 2, 9, 0, 0, 0, time.UTC))

	comp, created, err := e.competition.CreateMonthly(context.Background(), domain.CreateCompetitionParams{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "july-2025", comp.Slug)
}

func TestCreateMonthly_DeactivatesPrevious(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	march := e.createMarch(t)

	april, created, err := e.competition.CreateMonthly(ctx, domain.CreateCompetitionParams{Year: 2025, Month: time.April})
	require.NoError(t, err)
	require.True(t, created)

	current, err := e.competition.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, april.ID, current.ID)

	prev, err := e.competition.Get(ctx, march.ID)
	require.NoError(t, err)
	assert.False(t, prev.IsActive)
	assert.False(t, prev.IsArchived)
}

func TestCreateMonthly_Rejections(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)

	bad := domain.JudgingCriteria{Creativity: 0.5, Prose: 0.5, Structure: 0.5}
	_, _, err := e.competition.CreateMonthly(ctx, domain.CreateCompetitionParams{Year: 2025, Month: time.May, Criteria: &bad})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Equal(t, domain.ReasonInvalidCriteria, domain.ErrorReason(err))

	_, _, err = e.competition.CreateMonthly(ctx, domain.CreateCompetitionParams{Year: 2025, Month: 13})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	e.store.FailOn("CreateCompetition", errors.New("disk full"))
	_, _, err = e.competition.CreateMonthly(ctx, domain.CreateCompetitionParams{Year: 2025, Month: time.May})
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	// The failed transaction must not have deactivated anything.
	_, err = e.competition.Current(ctx)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	assert.Equal(t, domain.ReasonNoCompetition, domain.ErrorReason(err))
}

func TestAdvancePhase(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	comp := e.createMarch(t)

	steps := []struct {
		now  time.Time
		want domain.Phase
	}{
		{time.Date(2025, 3, 20, 23, 59, 59, 0, time.UTC), domain.PhaseSubmission},
		{time.Date(2025, 3, 21, 0, 0, 1, 0, time.UTC), domain.PhaseJudging},
		{time.Date(2025, 3, 26, 8, 0, 0, 0, time.UTC), domain.PhaseResults},
		{time.Date(2025, 3, 28, 0, 0, 1, 0, time.UTC), domain.PhaseEnded},
	}
	for _, step := range steps {
		e.setNow(step.now)
		got, err := e.competition.AdvancePhase(ctx, comp.ID)
		require.NoError(t, err)
		assert.Equal(t, step.want, got.Phase, step.now)
	}
}

func TestAdvancePhase_NeverRegresses(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Date(2025, 3, 22, 0, 0, 0, 0, time.UTC))
	comp := e.createMarch(t)

	got, err := e.competition.AdvancePhase(ctx, comp.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseJudging, got.Phase)

	// A clock that jumps backwards must not reopen submissions.
	e.setNow(march10)
	got, err = e.competition.AdvancePhase(ctx, comp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseJudging, got.Phase)

	_, err = e.competition.AdvancePhase(ctx, uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestAdvancePhase_FinalPhasesAreSticky(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	comp := e.createMarch(t)

	e.setNow(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	_, err := e.competition.AdvancePhase(ctx, comp.ID)
	require.NoError(t, err)
	_, err = e.competition.PublishWinners(ctx, comp.ID, nil)
	require.NoError(t, err)

	got, err := e.competition.AdvancePhase(ctx, comp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseResultsPublished, got.Phase)
}

func TestAdvanceAll(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	march := e.createMarch(t)

	e.setNow(time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC))
	april, _, err := e.competition.CreateMonthly(ctx, domain.CreateCompetitionParams{})
	require.NoError(t, err)

	summary, err := e.competition.AdvanceAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Advanced)
	assert.Equal(t, 1, summary.Archived)
	assert.Equal(t, 0, summary.Failed)
	assert.False(t, summary.Degraded)

	prev, err := e.competition.Get(ctx, march.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseEnded, prev.Phase)
	assert.True(t, prev.IsArchived)

	cur, err := e.competition.Get(ctx, april.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseSubmission, cur.Phase)

	// Second sweep: archived competitions drop out, nothing changes.
	summary, err = e.competition.AdvanceAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 0, summary.Advanced)
	assert.Equal(t, 0, summary.Archived)
}

func TestAdvanceAll_CountsFailures(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	e.createMarch(t)

	e.setNow(time.Date(2025, 3, 22, 0, 0, 0, 0, time.UTC))
	e.store.FailOn("UpdateCompetitionPhase", errors.New("timeout"))

	summary, err := e.competition.AdvanceAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 0, summary.Advanced)
	assert.Equal(t, 1, summary.Failed)
}

// endedCompetition returns a March competition moved to ended with n scored
// entries from distinct users.
func endedCompetition(t *testing.T, e *env, n int) (*domain.Competition, []domain.SubmissionResult) {
	t.Helper()
	ctx := context.Background()
	comp := e.createMarch(t)

	results := make([]domain.SubmissionResult, 0, n)
	for i := 0; i < n; i++ {
		user := e.createUser(t, domain.TierFree)
		story := e.createStory(t, user, 500)
		r, err := e.submission.Submit(ctx, user, story)
		require.NoError(t, err)
		require.NoError(t, e.store.UpdateEntryScore(ctx, repository.UpdateEntryScoreParams{
			ID:    r.EntryID,
			Score: float64(5 + i),
		}))
		results = append(results, *r)
	}

	e.setNow(time.Date(2025, 3, 29, 0, 0, 0, 0, time.UTC))
	comp, err := e.competition.AdvancePhase(ctx, comp.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseEnded, comp.Phase)
	return comp, results
}

func TestPublishWinners(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	comp, entries := endedCompetition(t, e, 3)

	got, err := e.competition.PublishWinners(ctx, comp.ID, []domain.WinnerInput{
		{EntryID: entries[2].EntryID, Position: 1},
		{EntryID: entries[0].EntryID, Position: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseResultsPublished, got.Phase)
	require.Len(t, got.Winners, 2)
	assert.Equal(t, 1, got.Winners[0].Position)
	assert.Equal(t, entries[2].EntryID, got.Winners[0].EntryID)
	require.NotNil(t, got.Winners[0].Score)
	assert.Equal(t, 7.0, *got.Winners[0].Score)

	// Republishing replaces the previous marks entirely.
	got, err = e.competition.PublishWinners(ctx, comp.ID, []domain.WinnerInput{
		{EntryID: entries[1].EntryID, Position: 1},
	})
	require.NoError(t, err)
	require.Len(t, got.Winners, 1)

	ranked, err := e.competition.RankedEntries(ctx, comp.ID)
	require.NoError(t, err)
	winners := 0
	for _, entry := range ranked {
		if entry.IsWinner {
			winners++
			assert.Equal(t, entries[1].EntryID, entry.ID)
			require.NotNil(t, entry.Rank)
			assert.Equal(t, 1, *entry.Rank)
		} else {
			assert.Nil(t, entry.Rank)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestPublishWinners_Rejections(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	comp := e.createMarch(t)

	_, err := e.competition.PublishWinners(ctx, comp.ID, nil)
	assert.Equal(t, domain.EPHASE, domain.ErrorCode(err))
	assert.Equal(t, domain.ReasonPhaseClosed, domain.ErrorReason(err))

	_, err = e.competition.PublishWinners(ctx, uuid.New(), nil)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	e2 := newEnv(t, march10)
	ended, entries := endedCompetition(t, e2, 2)

	_, err = e2.competition.PublishWinners(ctx, ended.ID, []domain.WinnerInput{
		{EntryID: entries[0].EntryID, Position: 1},
		{EntryID: entries[1].EntryID, Position: 1},
	})
	assert.Equal(t, domain.ReasonInvalidWinners, domain.ErrorReason(err))

	_, err = e2.competition.PublishWinners(ctx, ended.ID, []domain.WinnerInput{
		{EntryID: entries[0].EntryID, Position: 1},
		{EntryID: uuid.New(), Position: 2},
	})
	assert.Equal(t, domain.ReasonInvalidWinners, domain.ErrorReason(err))

	_, err = e2.competition.PublishWinners(ctx, ended.ID, []domain.WinnerInput{
		{EntryID: entries[0].EntryID, Position: 1},
		{EntryID: entries[1].EntryID, Position: 1<<32 + 1},
	})
	assert.Equal(t, domain.ReasonInvalidWinners, domain.ErrorReason(err))

	got, err := e2.competition.Get(ctx, ended.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseEnded, got.Phase)
}

func TestPublishWinners_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	comp, entries := endedCompetition(t, e, 2)

	_, err := e.competition.PublishWinners(ctx, comp.ID, []domain.WinnerInput{{EntryID: entries[0].EntryID, Position: 1}})
	require.NoError(t, err)

	e.store.FailOn("PublishCompetitionWinners", errors.New("serialization failure"))
	_, err = e.competition.PublishWinners(ctx, comp.ID, []domain.WinnerInput{{EntryID: entries[1].EntryID, Position: 1}})
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	entry, err := e.store.GetEntryByID(ctx, entries[0].EntryID)
	require.NoError(t, err)
	assert.True(t, entry.IsWinner, "earlier winner marks survive a failed republish")
}

func TestPublishWinners_ExportsSnapshot(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)

	archive, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()}, testLogger())
	require.NoError(t, err)
	e.competition = NewCompetitionService(e.store, e.clock, archive, CompetitionConfig{
		Schedule: domain.DefaultScheduleConfig(),
	}, testLogger())

	comp, entries := endedCompetition(t, e, 1)
	_, err = e.competition.PublishWinners(ctx, comp.ID, []domain.WinnerInput{{EntryID: entries[0].EntryID, Position: 1}})
	require.NoError(t, err)

	rc, _, err := archive.Get(ctx, storage.ResultsKey("march-2025"))
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	var snap ResultsSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, comp.ID, snap.Competition.ID)
	require.Len(t, snap.Competition.Winners, 1)
	assert.Equal(t, entries[0].EntryID, snap.Competition.Winners[0].EntryID)
}

func TestRankedEntries_OrderedByScore(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	comp, _ := endedCompetition(t, e, 3)

	ranked, err := e.competition.RankedEntries(ctx, comp.ID)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, *ranked[i-1].Score, *ranked[i].Score)
	}
}
