package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/DukeRupert/inkwell/internal/repository/memory"
	"github.com/DukeRupert/inkwell/internal/timesource"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// march10 falls inside the submission window of the March 2025 competition.
var march10 = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

// env wires the services against one in-memory store and a settable clock.
type env struct {
	store *memory.Store
	fixed *timesource.Fixed
	clock timesource.Clock

	ledger      QuotaLedger
	competition CompetitionService
	submission  SubmissionService
	stories     StoryService
	usage       UsageResetService
	purchases   PurchaseService
}

func newEnv(t *testing.T, now time.Time) *env {
	t.Helper()

	fixed := timesource.NewFixed(now)
	store := memory.New(memory.WithClock(func() time.Time {
		got, _ := fixed.Now(context.Background())
		return got
	}))
	clock := timesource.NewTrusted(fixed, time.UTC, testLogger())
	ledger := NewQuotaLedger(store, DefaultLedgerConfig(), testLogger())

	return &env{
		store:  store,
		fixed:  fixed,
		clock:  clock,
		ledger: ledger,
		competition: NewCompetitionService(store, clock, nil, CompetitionConfig{
			Schedule: domain.DefaultScheduleConfig(),
		}, testLogger()),
		submission: NewSubmissionService(store, ledger, clock, SubmissionConfig{}, testLogger()),
		stories:    NewStoryService(store, ledger, clock, time.UTC, testLogger()),
		usage:      NewUsageResetService(store, clock, time.UTC, testLogger()),
		purchases:  NewPurchaseService(store, testLogger()),
	}
}

func (e *env) setNow(t time.Time) {
	e.fixed.Set(t)
}

func (e *env) createUser(t *testing.T, tier domain.Tier) uuid.UUID {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), repository.CreateUserParams{
		Email: uuid.NewString() + "@example.com",
		Name:  "Writer",
		Tier:  string(tier),
	})
	require.NoError(t, err)
	return u.ID
}

// createStory inserts a story directly, bypassing the stories quota.
func (e *env) createStory(t *testing.T, userID uuid.UUID, words int) uuid.UUID {
	t.Helper()
	body := prose(words)
	s, err := e.store.CreateStory(context.Background(), repository.CreateStoryParams{
		UserID:    userID,
		Title:     "A story",
		Body:      body,
		WordCount: int32(domain.CountWords(body)),
	})
	require.NoError(t, err)
	return s.ID
}

func (e *env) createMarch(t *testing.T) *domain.Competition {
	t.Helper()
	comp, created, err := e.competition.CreateMonthly(context.Background(), domain.CreateCompetitionParams{
		Year:  2025,
		Month: time.March,
	})
	require.NoError(t, err)
	require.True(t, created)
	return comp
}

func prose(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words))
}
