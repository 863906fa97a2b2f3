// Package middleware contains HTTP middleware for the Inkwell API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/inkwell/internal/auth"
	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/handler"
	"github.com/DukeRupert/inkwell/internal/service"
)

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware resolves bearer session tokens into users.
//
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	userService service.UserService
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(userService service.UserService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		userService: userService,
		logger:      logger,
	}
}

// WithUser loads the user named by the Authorization header, if any, and
// stores it in the request context. It never rejects a request.
//
// Flow:
//
//	Request -> WithUser -> Handler
//	           |
//	           +-> Read "Authorization: Bearer <token>"
//	           +-> Validate session (if present)
//	           +-> Set user in context (if valid)
//	           +-> Call next handler (always)
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.userService.ValidateSession(r.Context(), token)
		if err != nil {
			if domain.ErrorCode(err) == domain.EINTERNAL {
				m.logger.Error("session lookup failed", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), user)))
	})
}

// RequireUser rejects requests without an authenticated user with 401.
//
// IMPORTANT: This middleware must be used AFTER WithUser in the middleware chain.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUserFromRequest(r) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous requests with 401 and non-admin users
// with 403.
//
// IMPORTANT: Use this AFTER WithUser in the middleware chain.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUserFromRequest(r)
		if user == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		if !user.IsAdmin {
			m.logger.Warn("non-admin user attempted admin access",
				"user_id", user.ID,
				"path", r.URL.Path,
			)
			handler.ForbiddenResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Cron Auth Middleware
// =============================================================================

// CronAuthMiddleware protects the scheduler trigger endpoints with a shared
// bearer token.
type CronAuthMiddleware struct {
	token    string
	failures *RateLimiter
	logger   *slog.Logger
}

// NewCronAuthMiddleware creates a new cron auth middleware. An empty token
// rejects every request. When failures is non-nil, rejected attempts count
// against it and a client over the limit gets 429 without a token check.
func NewCronAuthMiddleware(token string, failures *RateLimiter, logger *slog.Logger) *CronAuthMiddleware {
	return &CronAuthMiddleware{token: token, failures: failures, logger: logger}
}

// Handler returns middleware that requires the cron token.
func (m *CronAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		if m.failures != nil && m.failures.Exceeded(ip) {
			handler.ErrorResponse(w, r, m.logger, domain.RateLimit(""))
			return
		}

		got := bearerToken(r)
		if got == "" || !secretEqual(got, m.token) {
			m.logger.Warn("cron request rejected", "path", r.URL.Path, "ip", ip)
			if m.failures != nil {
				m.failures.RecordFailure(ip)
			}
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Helpers
// =============================================================================

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/usage", stack(usageHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireAdmin
	_ func(http.Handler) http.Handler = (&CronAuthMiddleware{}).Handler
)
