// Package service contains the business logic layer.
//
// This file implements the quota ledger: per-user monthly counters with an
// atomic check-and-increment against limits computed from the user's tier
// and in-month purchases.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/metrics"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// errStaleMonth means a concurrent reset moved the row between our reset and
// our increment. The whole sequence is retried.
var errStaleMonth = errors.New("usage row is on an earlier month")

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaLedger owns the per-user monthly usage counters.
type QuotaLedger interface {
	// TryConsume atomically increments counter for month if it is below the
	// user's effective limit. A denied request is not an error: the result
	// has Allowed=false.
	TryConsume(ctx context.Context, userID uuid.UUID, counter domain.Counter, month domain.MonthKey) (domain.ConsumeResult, error)

	// Release gives back one unit of counter. It compensates a TryConsume
	// whose guarded write subsequently failed.
	Release(ctx context.Context, userID uuid.UUID, counter domain.Counter, month domain.MonthKey) error

	// Peek returns usage and effective limits without changing anything.
	Peek(ctx context.Context, userID uuid.UUID, month domain.MonthKey) (*domain.UsageReport, error)

	// Limits returns the user's effective limits for month.
	Limits(ctx context.Context, userID uuid.UUID, month domain.MonthKey) (domain.Limits, error)
}

// LedgerConfig configures the quota ledger.
type LedgerConfig struct {
	// EntriesPerMonth is the competition entries cap applied to every tier.
	EntriesPerMonth int

	// Location anchors month boundaries for purchase filtering.
	Location *time.Location

	// MaxRetries bounds retries after racing a concurrent monthly reset.
	MaxRetries uint64

	// RetryDelay is the pause between those retries.
	RetryDelay time.Duration
}

// DefaultLedgerConfig returns the standard ledger configuration.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		EntriesPerMonth: 1,
		Location:        time.UTC,
		MaxRetries:      3,
		RetryDelay:      10 * time.Millisecond,
	}
}

// =============================================================================
// Implementation
// =============================================================================

type quotaLedger struct {
	queries repository.Querier
	config  LedgerConfig
	logger  *slog.Logger
}

// NewQuotaLedger creates a new QuotaLedger.
func NewQuotaLedger(queries repository.Querier, config LedgerConfig, logger *slog.Logger) QuotaLedger {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultLedgerConfig().RetryDelay
	}
	return &quotaLedger{
		queries: queries,
		config:  config,
		logger:  logger,
	}
}

func (s *quotaLedger) Limits(ctx context.Context, userID uuid.UUID, month domain.MonthKey) (domain.Limits, error) {
	const op = "quota.limits"

	user, err := s.queries.GetUserByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.Limits{}, domain.NotFound(op, "user", userID.String())
		}
		return domain.Limits{}, domain.Internal(err, op, "Failed to retrieve user")
	}

	base := domain.GetTierLimits(domain.Tier(user.Tier)).WithEntriesPerMonth(s.config.EntriesPerMonth)
	monthStart := month.Start(s.config.Location)

	rows, err := s.queries.ListPurchasesSince(ctx, repository.ListPurchasesSinceParams{
		UserID: userID,
		Since:  monthStart,
	})
	if err != nil {
		return domain.Limits{}, domain.Internal(err, op, "Failed to retrieve purchases")
	}

	purchases := make([]domain.PurchaseRecord, 0, len(rows))
	for _, row := range rows {
		p, err := repoPurchaseToDomain(row)
		if err != nil {
			s.logger.Warn("skipping purchase with unreadable bonus",
				"purchase_id", row.ID,
				"user_id", userID,
				"error", err,
			)
			continue
		}
		purchases = append(purchases, p)
	}

	return domain.ComputeLimits(base, purchases, monthStart), nil
}

func (s *quotaLedger) TryConsume(ctx context.Context, userID uuid.UUID, counter domain.Counter, month domain.MonthKey) (domain.ConsumeResult, error) {
	const op = "quota.try_consume"

	if !counter.IsValid() {
		return domain.ConsumeResult{}, domain.Invalid(op, fmt.Sprintf("unknown counter %q", counter))
	}

	limits, err := s.Limits(ctx, userID, month)
	if err != nil {
		return domain.ConsumeResult{}, err
	}
	limit := limits.For(counter)

	var result domain.ConsumeResult
	backoff := retry.WithMaxRetries(s.config.MaxRetries, retry.NewConstant(s.config.RetryDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := s.consumeOnce(ctx, userID, counter, month, limit)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return domain.ConsumeResult{}, de
		}
		return domain.ConsumeResult{}, domain.Internal(err, op, "Failed to update usage")
	}

	if result.Allowed {
		metrics.QuotaConsumedTotal.WithLabelValues(string(counter)).Inc()
	} else {
		metrics.QuotaDeniedTotal.WithLabelValues(string(counter)).Inc()
		s.logger.Info("quota exceeded",
			"user_id", userID,
			"counter", counter,
			"used", result.Used,
			"limit", result.Limit,
		)
	}
	return result, nil
}

// consumeOnce runs ensure, lazy reset, and conditional increment once.
func (s *quotaLedger) consumeOnce(ctx context.Context, userID uuid.UUID, counter domain.Counter, month domain.MonthKey, limit int64) (domain.ConsumeResult, error) {
	const op = "quota.try_consume"

	if err := s.queries.EnsureUsageCounter(ctx, repository.EnsureUsageCounterParams{
		UserID:   userID,
		MonthKey: string(month),
	}); err != nil {
		return domain.ConsumeResult{}, err
	}

	if _, err := s.queries.ResetStaleUsageCounter(ctx, repository.ResetStaleUsageCounterParams{
		UserID:   userID,
		MonthKey: string(month),
	}); err != nil {
		return domain.ConsumeResult{}, err
	}

	row, err := s.queries.IncrementUsageCounter(ctx, repository.IncrementUsageCounterParams{
		UserID:   userID,
		MonthKey: string(month),
		Counter:  string(counter),
		Limit:    storedLimit(limit),
	})
	if err == nil {
		used := repoUsageToDomain(row).Get(counter)
		return domain.ConsumeResult{
			Allowed:   true,
			Counter:   counter,
			Used:      used,
			Limit:     limit,
			Remaining: domain.Remaining(limit, used),
		}, nil
	}
	if !repository.IsNotFound(err) {
		return domain.ConsumeResult{}, err
	}

	// Nothing matched: either the limit is reached or the month moved.
	current, err := s.queries.GetUsageCounter(ctx, userID)
	if err != nil {
		return domain.ConsumeResult{}, err
	}
	switch stored := domain.MonthKey(current.MonthKey); {
	case stored == month:
		used := repoUsageToDomain(current).Get(counter)
		return domain.ConsumeResult{
			Allowed:   false,
			Counter:   counter,
			Used:      used,
			Limit:     limit,
			Remaining: 0,
		}, nil
	case stored.Before(month):
		metrics.QuotaRetriesTotal.Inc()
		return domain.ConsumeResult{}, retry.RetryableError(errStaleMonth)
	default:
		return domain.ConsumeResult{}, domain.Invalid(op,
			fmt.Sprintf("month %s is earlier than the current usage month %s", month, stored))
	}
}

func (s *quotaLedger) Release(ctx context.Context, userID uuid.UUID, counter domain.Counter, month domain.MonthKey) error {
	const op = "quota.release"

	if !counter.IsValid() {
		return domain.Invalid(op, fmt.Sprintf("unknown counter %q", counter))
	}

	n, err := s.queries.DecrementUsageCounter(ctx, repository.DecrementUsageCounterParams{
		UserID:   userID,
		MonthKey: string(month),
		Counter:  string(counter),
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to release usage")
	}
	if n == 0 {
		s.logger.Warn("release found no usage row for month",
			"user_id", userID,
			"counter", counter,
			"month_key", month,
		)
	}
	return nil
}

func (s *quotaLedger) Peek(ctx context.Context, userID uuid.UUID, month domain.MonthKey) (*domain.UsageReport, error) {
	const op = "quota.peek"

	limits, err := s.Limits(ctx, userID, month)
	if err != nil {
		return nil, err
	}

	usage := domain.UsageCounters{UserID: userID, MonthKey: month}
	row, err := s.queries.GetUsageCounter(ctx, userID)
	switch {
	case err == nil:
		usage = repoUsageToDomain(row).ForMonth(month)
	case !repository.IsNotFound(err):
		return nil, domain.Internal(err, op, "Failed to retrieve usage")
	}

	return &domain.UsageReport{
		MonthKey: month,
		Usage:    usage,
		Limits:   limits,
	}, nil
}

// storedLimit maps a domain limit onto the integer column range.
func storedLimit(limit int64) int32 {
	if limit == domain.Unlimited || limit > math.MaxInt32 {
		return math.MaxInt32
	}
	if limit < 0 {
		return 0
	}
	return int32(limit)
}

// consumeOrReject is the common call-site pattern: consume a token or return
// a QuotaExceeded error.
func consumeOrReject(ctx context.Context, ledger QuotaLedger, op string, userID uuid.UUID, counter domain.Counter, month domain.MonthKey) error {
	result, err := ledger.TryConsume(ctx, userID, counter, month)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return domain.QuotaExceeded(op, counter, result.Used, result.Limit)
	}
	return nil
}
