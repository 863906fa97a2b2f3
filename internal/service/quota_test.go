package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const march = domain.MonthKey("2025-03")

func TestQuotaLedger_ConsumesUntilLimit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	user := e.createUser(t, domain.TierFree)

	for i := 1; i <= 3; i++ {
		r, err := e.ledger.TryConsume(ctx, user, domain.CounterStoriesCreated, march)
		require.NoError(t, err)
		assert.True(t, r.Allowed)
		assert.Equal(t, int64(i), r.Used)
		assert.Equal(t, int64(3-i), r.Remaining)
	}

	r, err := e.ledger.TryConsume(ctx, user, domain.CounterStoriesCreated, march)
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, int64(3), r.Used)
	assert.Equal(t, int64(0), r.Remaining)
	assert.Equal(t, int64(3), r.Limit)
}

func TestQuotaLedger_ConcurrentLastUnit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	user := e.createUser(t, domain.TierFree)

	// Entries default to one per month: exactly one racer may win it.
	const racers = 16
	var wg sync.WaitGroup
	var allowed atomic.Int32
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := e.ledger.TryConsume(ctx, user, domain.CounterCompetitionEntries, march)
			if assert.NoError(t, err) && r.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), allowed.Load())
	report, err := e.ledger.Peek(ctx, user, march)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Usage.CompetitionEntries)
}

func TestQuotaLedger_UnlimitedTier(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	user := e.createUser(t, domain.TierPremium)

	for i := 0; i < 25; i++ {
		r, err := e.ledger.TryConsume(ctx, user, domain.CounterStoriesCreated, march)
		require.NoError(t, err)
		require.True(t, r.Allowed)
		assert.Equal(t, domain.Unlimited, r.Remaining)
	}
}

func TestQuotaLedger_PurchasesRaiseLimit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	user := e.createUser(t, domain.TierFree)

	bonus, _ := json.Marshal(domain.Bonus{EntriesAdded: 2})
	for _, date := range []time.Time{
		time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC), // previous month, ignored
		time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
	} {
		_, err := e.store.CreatePurchase(ctx, repository.CreatePurchaseParams{
			UserID:       user,
			PurchaseType: string(domain.PurchaseTypeQuotaPack),
			AmountCents:  499,
			Currency:     "usd",
			PurchaseDate: date,
			Bonus:        bonus,
		})
		require.NoError(t, err)
	}

	limits, err := e.ledger.Limits(ctx, user, march)
	require.NoError(t, err)
	assert.Equal(t, int64(3), limits.CompetitionEntries)

	granted := 0
	for i := 0; i < 5; i++ {
		r, err := e.ledger.TryConsume(ctx, user, domain.CounterCompetitionEntries, march)
		require.NoError(t, err)
		if r.Allowed {
			granted++
		}
	}
	assert.Equal(t, 3, granted)
}

func TestQuotaLedger_NewMonthResetsLazily(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	user := e.createUser(t, domain.TierFree)

	for i := 0; i < 3; i++ {
		_, err := e.ledger.TryConsume(ctx, user, domain.CounterStoriesCreated, march)
		require.NoError(t, err)
	}

	r, err := e.ledger.TryConsume(ctx, user, domain.CounterStoriesCreated, "2025-04")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, int64(1), r.Used)

	// The stored row has moved to April; March requests are now invalid.
	_, err = e.ledger.TryConsume(ctx, user, domain.CounterStoriesCreated, march)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestQuotaLedger_PeekDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	user := e.createUser(t, domain.TierFree)

	report, err := e.ledger.Peek(ctx, user, march)
	require.NoError(t, err)
	assert.Equal(t, march, report.MonthKey)
	assert.Equal(t, int64(0), report.Usage.StoriesCreated)
	assert.Equal(t, int64(3), report.Remaining(domain.CounterStoriesCreated))

	_, err = e.ledger.TryConsume(ctx, user, domain.CounterStoriesCreated, march)
	require.NoError(t, err)

	report, err = e.ledger.Peek(ctx, user, march)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Usage.StoriesCreated)

	// A stale stored month reads as zero usage for the requested month.
	report, err = e.ledger.Peek(ctx, user, "2025-04")
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Usage.StoriesCreated)
}

func TestQuotaLedger_Release(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	user := e.createUser(t, domain.TierFree)

	r, err := e.ledger.TryConsume(ctx, user, domain.CounterCompetitionEntries, march)
	require.NoError(t, err)
	require.True(t, r.Allowed)

	require.NoError(t, e.ledger.Release(ctx, user, domain.CounterCompetitionEntries, march))

	r, err = e.ledger.TryConsume(ctx, user, domain.CounterCompetitionEntries, march)
	require.NoError(t, err)
	assert.True(t, r.Allowed)
}

func TestQuotaLedger_Errors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	user := e.createUser(t, domain.TierFree)

	_, err := e.ledger.TryConsume(ctx, user, "bogus", march)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = e.ledger.TryConsume(ctx, uuid.New(), domain.CounterStoriesCreated, march)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	e.store.FailOn("IncrementUsageCounter", errors.New("connection reset"))
	_, err = e.ledger.TryConsume(ctx, user, domain.CounterStoriesCreated, march)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func TestConsumeOrReject(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, march10)
	user := e.createUser(t, domain.TierFree)

	require.NoError(t, consumeOrReject(ctx, e.ledger, "test.op", user, domain.CounterCompetitionEntries, march))

	err := consumeOrReject(ctx, e.ledger, "test.op", user, domain.CounterCompetitionEntries, march)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
	assert.Equal(t, domain.ReasonQuotaExceeded, domain.ErrorReason(err))
}

func TestStoredLimit(t *testing.T) {
	assert.Equal(t, int32(2147483647), storedLimit(domain.Unlimited))
	assert.Equal(t, int32(2147483647), storedLimit(1<<40))
	assert.Equal(t, int32(5), storedLimit(5))
	assert.Equal(t, int32(0), storedLimit(-7))
}
