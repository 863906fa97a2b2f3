package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/metrics"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/DukeRupert/inkwell/internal/timesource"
)

// UsageResetService zeroes usage counters left over from earlier months.
// The ledger also resets lazily, so a missed sweep never lets stale usage
// count against a new month.
type UsageResetService interface {
	// ResetAll zeroes every usage row whose month is before month and stamps
	// it with month. A second call for the same month resets nothing.
	ResetAll(ctx context.Context, month domain.MonthKey) (int64, error)

	// Run resets to the current trusted month.
	Run(ctx context.Context) (*domain.ResetSummary, error)
}

type usageResetService struct {
	queries  repository.Querier
	clock    timesource.Clock
	location *time.Location
	logger   *slog.Logger
}

// NewUsageResetService creates a new UsageResetService. loc anchors month
// boundaries; nil means UTC.
func NewUsageResetService(queries repository.Querier, clock timesource.Clock, loc *time.Location, logger *slog.Logger) UsageResetService {
	if loc == nil {
		loc = time.UTC
	}
	return &usageResetService{
		queries:  queries,
		clock:    clock,
		location: loc,
		logger:   logger,
	}
}

func (s *usageResetService) ResetAll(ctx context.Context, month domain.MonthKey) (int64, error) {
	const op = "usage.reset_all"

	if _, err := domain.ParseMonthKey(string(month)); err != nil {
		return 0, domain.Invalid(op, err.Error())
	}

	n, err := s.queries.ResetUsageCountersBefore(ctx, string(month))
	if err != nil {
		return 0, domain.Internal(err, op, "Failed to reset usage counters")
	}

	metrics.UsageCountersReset.Add(float64(n))
	s.logger.Info("usage counters reset", "month_key", month, "rows", n)
	return n, nil
}

func (s *usageResetService) Run(ctx context.Context) (*domain.ResetSummary, error) {
	reading := s.clock.Now(ctx)
	month := domain.MonthKeyOf(reading.Time.In(s.location))

	n, err := s.ResetAll(ctx, month)
	if err != nil {
		return nil, err
	}
	return &domain.ResetSummary{
		MonthKey: month,
		Reset:    n,
		Degraded: reading.Degraded,
	}, nil
}
