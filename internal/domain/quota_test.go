package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLimits(t *testing.T) {
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	free := GetTierLimits(TierFree).WithEntriesPerMonth(1)

	t.Run("no purchases returns base", func(t *testing.T) {
		assert.Equal(t, free, ComputeLimits(free, nil, monthStart))
	})

	t.Run("in-month purchase adds bonus", func(t *testing.T) {
		purchases := []PurchaseRecord{
			{PurchaseDate: monthStart.Add(48 * time.Hour), Bonus: Bonus{StoriesAdded: 5, AssessmentsAdded: 2}},
		}
		got := ComputeLimits(free, purchases, monthStart)
		assert.Equal(t, int64(8), got.StoriesCreated)
		assert.Equal(t, int64(4), got.AssessmentUploads)
		assert.Equal(t, int64(6), got.AssessmentAttempts)
		assert.Equal(t, int64(1), got.CompetitionEntries)
	})

	t.Run("purchase at month start counts", func(t *testing.T) {
		purchases := []PurchaseRecord{{PurchaseDate: monthStart, Bonus: Bonus{EntriesAdded: 2}}}
		assert.Equal(t, int64(3), ComputeLimits(free, purchases, monthStart).CompetitionEntries)
	})

	t.Run("previous month purchase is ignored", func(t *testing.T) {
		purchases := []PurchaseRecord{
			{PurchaseDate: monthStart.Add(-time.Second), Bonus: Bonus{StoriesAdded: 100}},
		}
		assert.Equal(t, free, ComputeLimits(free, purchases, monthStart))
	})

	t.Run("multiple purchases sum", func(t *testing.T) {
		purchases := []PurchaseRecord{
			{PurchaseDate: monthStart.Add(time.Hour), Bonus: Bonus{AttemptsAdded: 4}},
			{PurchaseDate: monthStart.Add(2 * time.Hour), Bonus: Bonus{AttemptsAdded: 6, EntriesAdded: 1}},
		}
		got := ComputeLimits(free, purchases, monthStart)
		assert.Equal(t, int64(16), got.AssessmentAttempts)
		assert.Equal(t, int64(2), got.CompetitionEntries)
	})

	t.Run("unlimited stays unlimited", func(t *testing.T) {
		premium := GetTierLimits(TierPremium).WithEntriesPerMonth(1)
		purchases := []PurchaseRecord{{PurchaseDate: monthStart, Bonus: Bonus{StoriesAdded: 10}}}
		assert.Equal(t, Unlimited, ComputeLimits(premium, purchases, monthStart).StoriesCreated)
	})

	t.Run("deterministic", func(t *testing.T) {
		purchases := []PurchaseRecord{{PurchaseDate: monthStart, Bonus: Bonus{StoriesAdded: 1}}}
		assert.Equal(t, ComputeLimits(free, purchases, monthStart), ComputeLimits(free, purchases, monthStart))
	})
}

func TestGetTierLimits_UnknownDefaultsToFree(t *testing.T) {
	assert.Equal(t, TierLimits[TierFree], GetTierLimits(Tier("enterprise")))
}

func TestBonus_Validate(t *testing.T) {
	assert.NoError(t, Bonus{StoriesAdded: 3}.Validate())
	assert.Error(t, Bonus{EntriesAdded: -1}.Validate())
}

func TestMonthKey(t *testing.T) {
	k := MonthKeyOf(time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, MonthKey("2025-03"), k)

	assert.True(t, MonthKey("2024-12").Before("2025-01"))
	assert.True(t, MonthKey("2025-09").Before("2025-10"))
	assert.False(t, MonthKey("2025-03").Before("2025-03"))

	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), k.Start(time.UTC))

	_, err := ParseMonthKey("2025-3")
	assert.Error(t, err)
	parsed, err := ParseMonthKey("2025-11")
	require.NoError(t, err)
	assert.Equal(t, MonthKey("2025-11"), parsed)
}

func TestUsageCounters_ForMonth(t *testing.T) {
	stale := UsageCounters{MonthKey: "2025-02", StoriesCreated: 3, CompetitionEntries: 1}

	current := stale.ForMonth("2025-03")
	assert.Equal(t, MonthKey("2025-03"), current.MonthKey)
	assert.Zero(t, current.StoriesCreated)
	assert.Zero(t, current.CompetitionEntries)

	assert.Equal(t, stale, stale.ForMonth("2025-02"))
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, int64(2), Remaining(3, 1))
	assert.Equal(t, int64(0), Remaining(3, 3))
	assert.Equal(t, int64(0), Remaining(3, 5))
	assert.Equal(t, Unlimited, Remaining(Unlimited, 1000))
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"The quick  brown\nfox", 4},
		{"Wait — what?", 2},
		{"It's 3 o'clock.", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CountWords(tt.text), "CountWords(%q)", tt.text)
	}
}

func TestQuotaExceededError(t *testing.T) {
	err := QuotaExceeded("submission.submit", CounterCompetitionEntries, 1, 1)
	assert.Equal(t, EQUOTA, ErrorCode(err))
	assert.Equal(t, ReasonQuotaExceeded, ErrorReason(err))
	assert.Contains(t, err.Error(), "competition entry")
}
