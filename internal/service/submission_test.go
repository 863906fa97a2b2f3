package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/DukeRupert/inkwell/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	comp := e.createMarch(t)
	user := e.createUser(t, domain.TierFree)
	story := e.createStory(t, user, 800)

	result, err := e.submission.Submit(ctx, user, story)
	require.NoError(t, err)
	assert.Equal(t, comp.ID, result.CompetitionID)

	entry, err := e.store.GetEntryByID(ctx, result.EntryID)
	require.NoError(t, err)
	assert.Equal(t, story, entry.StoryID)
	assert.Equal(t, int32(800), entry.WordCount)
	assert.Equal(t, "pending", entry.AssessmentStatus)

	got, err := e.competition.Get(ctx, comp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.TotalSubmissions)
	assert.Equal(t, int64(1), got.TotalParticipants)

	jobs := e.store.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, worker.JobTypeAssessEntry, jobs[0].JobType)
	var payload worker.AssessEntryPayload
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
	assert.Equal(t, result.EntryID, payload.EntryID)

	report, err := e.ledger.Peek(ctx, user, march)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Usage.CompetitionEntries)
}

func TestSubmit_ParticipantsCountedOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	comp := e.createMarch(t)
	user := e.createUser(t, domain.TierFree)

	bonus, _ := json.Marshal(domain.Bonus{EntriesAdded: 1})
	_, err := e.store.CreatePurchase(ctx, repository.CreatePurchaseParams{
		UserID:       user,
		PurchaseType: string(domain.PurchaseTypeQuotaPack),
		PurchaseDate: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		Bonus:        bonus,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := e.submission.Submit(ctx, user, e.createStory(t, user, 400))
		require.NoError(t, err)
	}

	got, err := e.competition.Get(ctx, comp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalSubmissions)
	assert.Equal(t, int64(1), got.TotalParticipants)
}

func TestSubmit_ConcurrentFirstEntriesCountOneParticipant(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	comp := e.createMarch(t)
	user := e.createUser(t, domain.TierFree)

	const n = 4
	bonus, _ := json.Marshal(domain.Bonus{EntriesAdded: n - 1})
	_, err := e.store.CreatePurchase(ctx, repository.CreatePurchaseParams{
		UserID:       user,
		PurchaseType: string(domain.PurchaseTypeQuotaPack),
		PurchaseDate: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		Bonus:        bonus,
	})
	require.NoError(t, err)

	stories := make([]uuid.UUID, n)
	for i := range stories {
		stories[i] = e.createStory(t, user, 400)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, story := range stories {
		wg.Add(1)
		go func(i int, story uuid.UUID) {
			defer wg.Done()
			_, errs[i] = e.submission.Submit(ctx, user, story)
		}(i, story)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := e.competition.Get(ctx, comp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.TotalSubmissions)
	assert.Equal(t, int64(1), got.TotalParticipants)
}

func TestSubmit_ReleasesQuotaWhenCompetitionLockFails(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	comp := e.createMarch(t)
	user := e.createUser(t, domain.TierFree)
	story := e.createStory(t, user, 500)

	e.store.FailOn("LockCompetition", errors.New("lock timeout"))
	_, err := e.submission.Submit(ctx, user, story)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	_, err = e.store.GetEntryByStoryID(ctx, story)
	assert.True(t, repository.IsNotFound(err))

	report, err := e.ledger.Peek(ctx, user, march)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Usage.CompetitionEntries)

	got, err := e.competition.Get(ctx, comp.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalSubmissions)
}

func TestSubmit_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("no active competition", func(t *testing.T) {
		e := newEnv(t, march10)
		user := e.createUser(t, domain.TierFree)
		_, err := e.submission.Submit(ctx, user, e.createStory(t, user, 500))
		assert.Equal(t, domain.EPHASE, domain.ErrorCode(err))
		assert.Equal(t, domain.ReasonNoCompetition, domain.ErrorReason(err))
	})

	t.Run("after submission end", func(t *testing.T) {
		e := newEnv(t, march10)
		e.createMarch(t)
		user := e.createUser(t, domain.TierFree)
		story := e.createStory(t, user, 500)

		// The stored phase still says submission; the deadline decides.
		e.setNow(time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC))
		_, err := e.submission.Submit(ctx, user, story)
		assert.Equal(t, domain.EPHASE, domain.ErrorCode(err))
		assert.Equal(t, domain.ReasonPhaseClosed, domain.ErrorReason(err))
	})

	t.Run("missing story", func(t *testing.T) {
		e := newEnv(t, march10)
		e.createMarch(t)
		user := e.createUser(t, domain.TierFree)
		_, err := e.submission.Submit(ctx, user, uuid.New())
		assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	})

	t.Run("foreign story", func(t *testing.T) {
		e := newEnv(t, march10)
		e.createMarch(t)
		owner := e.createUser(t, domain.TierFree)
		other := e.createUser(t, domain.TierFree)
		_, err := e.submission.Submit(ctx, other, e.createStory(t, owner, 500))
		assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))
	})

	for _, words := range []int{349, 2001} {
		t.Run("word count", func(t *testing.T) {
			e := newEnv(t, march10)
			e.createMarch(t)
			user := e.createUser(t, domain.TierFree)
			_, err := e.submission.Submit(ctx, user, e.createStory(t, user, words))
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
			assert.Equal(t, domain.ReasonWordCount, domain.ErrorReason(err))

			report, err := e.ledger.Peek(ctx, user, march)
			require.NoError(t, err)
			assert.Equal(t, int64(0), report.Usage.CompetitionEntries, "rejections consume nothing")
		})
	}

	t.Run("already entered", func(t *testing.T) {
		e := newEnv(t, march10)
		e.createMarch(t)
		user := e.createUser(t, domain.TierPremium)
		story := e.createStory(t, user, 500)
		_, err := e.submission.Submit(ctx, user, story)
		require.NoError(t, err)

		_, err = e.submission.Submit(ctx, user, story)
		assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
		assert.Equal(t, domain.ReasonAlreadyEntered, domain.ErrorReason(err))
	})

	t.Run("quota exhausted", func(t *testing.T) {
		e := newEnv(t, march10)
		e.createMarch(t)
		user := e.createUser(t, domain.TierPremium)
		_, err := e.submission.Submit(ctx, user, e.createStory(t, user, 500))
		require.NoError(t, err)

		_, err = e.submission.Submit(ctx, user, e.createStory(t, user, 500))
		assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
		assert.Equal(t, domain.ReasonQuotaExceeded, domain.ErrorReason(err))
	})
}

func TestSubmit_ReleasesQuotaWhenInsertFails(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	comp := e.createMarch(t)
	user := e.createUser(t, domain.TierFree)
	story := e.createStory(t, user, 500)

	e.store.FailOn("IncrementCompetitionTotals", errors.New("deadlock detected"))
	_, err := e.submission.Submit(ctx, user, story)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	_, err = e.store.GetEntryByStoryID(ctx, story)
	assert.True(t, repository.IsNotFound(err), "entry insert rolled back")

	report, err := e.ledger.Peek(ctx, user, march)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Usage.CompetitionEntries)

	e.store.FailOn("IncrementCompetitionTotals", nil)
	result, err := e.submission.Submit(ctx, user, story)
	require.NoError(t, err)
	assert.Equal(t, comp.ID, result.CompetitionID)
}

func TestSubmit_EnqueueFailureDoesNotReject(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	e.createMarch(t)
	user := e.createUser(t, domain.TierFree)

	e.store.FailOn("EnqueueJob", errors.New("queue unavailable"))
	result, err := e.submission.Submit(ctx, user, e.createStory(t, user, 500))
	require.NoError(t, err)

	_, err = e.store.GetEntryByID(ctx, result.EntryID)
	assert.NoError(t, err)
	assert.Empty(t, e.store.ListJobs())
}

func TestSubmissionOutcome(t *testing.T) {
	assert.Equal(t, "accepted", submissionOutcome(nil))
	assert.Equal(t, domain.ReasonWordCount, submissionOutcome(domain.Rejected("op", domain.ReasonWordCount, "x")))
	assert.Equal(t, domain.EINTERNAL, submissionOutcome(errors.New("boom")))
}
