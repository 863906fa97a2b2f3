// Package service contains the business logic layer.
//
// This file implements read-only user lookups and session resolution.
// Accounts and sessions are issued by the identity service; this service
// only resolves bearer tokens to users.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/google/uuid"
)

// SessionTokenLength is the length of a hex-encoded session token.
const SessionTokenLength = 64

// =============================================================================
// Interface Definition
// =============================================================================

// UserService resolves users and sessions.
type UserService interface {
	// GetByID retrieves a user by ID.
	// Returns domain.ENOTFOUND if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// ValidateSession resolves a raw bearer token to its user.
	// Returns domain.EUNAUTHORIZED if the token is malformed, unknown, or expired.
	ValidateSession(ctx context.Context, token string) (*domain.User, error)
}

// =============================================================================
// Implementation
// =============================================================================

type userService struct {
	queries repository.Querier
	logger  *slog.Logger
	now     func() time.Time
}

// NewUserService creates a new UserService instance.
func NewUserService(queries repository.Querier, logger *slog.Logger) UserService {
	return &userService{
		queries: queries,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "user.get_by_id"

	u, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}
	return repoUserToDomain(u), nil
}

func (s *userService) ValidateSession(ctx context.Context, token string) (*domain.User, error) {
	const op = "user.validate_session"

	if len(token) != SessionTokenLength {
		return nil, domain.Unauthorized(op, "Invalid or expired session")
	}

	u, err := s.queries.GetSessionUser(ctx, repository.GetSessionUserParams{
		TokenHash: HashSessionToken(token),
		Now:       s.now(),
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.Unauthorized(op, "Invalid or expired session")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve session")
	}
	return repoUserToDomain(u), nil
}

// HashSessionToken returns the hex SHA-256 of a raw session token, the form
// in which tokens are stored.
func HashSessionToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
