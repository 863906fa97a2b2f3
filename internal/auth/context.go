// Package auth carries the session user through a request context. It sits
// below both middleware and handler so neither imports the other for it.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/google/uuid"
)

type contextKey struct{}

var userKey contextKey

// GetUser returns the session user, or nil for anonymous requests.
func GetUser(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey).(*domain.User)
	return user
}

// GetUserFromRequest is GetUser on r.Context().
func GetUserFromRequest(r *http.Request) *domain.User {
	return GetUser(r.Context())
}

// UserID returns the session user's id for logging and rate-limit keys.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	if user := GetUser(ctx); user != nil {
		return user.ID, true
	}
	return uuid.Nil, false
}

// SetUser stores the session user. A nil user leaves ctx anonymous.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	if user == nil {
		return ctx
	}
	return context.WithValue(ctx, userKey, user)
}
