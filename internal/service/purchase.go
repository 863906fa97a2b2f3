package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/google/uuid"
)

// RecordPurchaseParams describes a completed checkout.
type RecordPurchaseParams struct {
	UserID       uuid.UUID
	Type         domain.PurchaseType
	AmountCents  int64
	Currency     string
	PurchaseDate time.Time
	Bonus        domain.Bonus
	ExternalID   string // payment provider reference, used for idempotency
}

// PurchaseService records purchases that raise a user's monthly limits.
type PurchaseService interface {
	// Record stores the purchase. Replaying the same ExternalID returns
	// created=false and changes nothing.
	Record(ctx context.Context, params RecordPurchaseParams) (created bool, err error)
}

type purchaseService struct {
	queries repository.Querier
	logger  *slog.Logger
}

// NewPurchaseService creates a new PurchaseService.
func NewPurchaseService(queries repository.Querier, logger *slog.Logger) PurchaseService {
	return &purchaseService{queries: queries, logger: logger}
}

func (s *purchaseService) Record(ctx context.Context, params RecordPurchaseParams) (bool, error) {
	const op = "purchase.record"

	if params.UserID == uuid.Nil {
		return false, domain.Invalid(op, "user id is required")
	}
	if params.Type == "" {
		params.Type = domain.PurchaseTypeQuotaPack
	}
	if params.AmountCents < 0 {
		return false, domain.Invalid(op, "amount must not be negative")
	}
	if err := params.Bonus.Validate(); err != nil {
		return false, domain.Invalid(op, err.Error())
	}
	if params.PurchaseDate.IsZero() {
		params.PurchaseDate = time.Now()
	}

	if _, err := s.queries.GetUserByID(ctx, params.UserID); err != nil {
		if repository.IsNotFound(err) {
			return false, domain.NotFound(op, "user", params.UserID.String())
		}
		return false, domain.Internal(err, op, "Failed to retrieve user")
	}

	bonus, err := json.Marshal(params.Bonus)
	if err != nil {
		return false, domain.Internal(err, op, "Failed to encode bonus")
	}

	_, err = s.queries.CreatePurchase(ctx, repository.CreatePurchaseParams{
		UserID:       params.UserID,
		PurchaseType: string(params.Type),
		AmountCents:  params.AmountCents,
		Currency:     strings.ToLower(params.Currency),
		PurchaseDate: params.PurchaseDate,
		Bonus:        bonus,
		ExternalID:   sql.NullString{String: params.ExternalID, Valid: params.ExternalID != ""},
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			s.logger.Info("purchase already recorded", "external_id", params.ExternalID)
			return false, nil
		}
		return false, domain.Internal(err, op, "Failed to record purchase")
	}

	s.logger.Info("purchase recorded",
		"user_id", params.UserID,
		"type", params.Type,
		"amount_cents", params.AmountCents,
		"external_id", params.ExternalID,
	)
	return true, nil
}
