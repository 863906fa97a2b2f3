package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DukeRupert/inkwell/internal/auth"
	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/handler"
)

// =============================================================================
// Rate Limiter
// =============================================================================

// RateLimiter counts attempts per key in fixed windows that open on a key's
// first attempt. Keys are "user:<id>" or "ip:<addr>" for the write limits
// and bare client IPs for the cron guard.
type RateLimiter struct {
	maxAttempts int
	window      time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.RWMutex
	entries map[string]*rateLimitEntry
}

type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(maxAttempts int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		logger:      logger,
		now:         time.Now,
		entries:     make(map[string]*rateLimitEntry),
	}

	go rl.cleanup()

	return rl
}

// current returns key's live entry, or nil when it has none or its window
// has lapsed. Callers hold the lock.
func (rl *RateLimiter) current(key string, now time.Time) *rateLimitEntry {
	entry, ok := rl.entries[key]
	if !ok || now.Sub(entry.windowStart) > rl.window {
		return nil
	}
	return entry
}

// hit counts one attempt. When enforce is set an attempt at the limit is
// refused and not counted.
func (rl *RateLimiter) hit(key string, enforce bool) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry := rl.current(key, now)
	if entry == nil {
		rl.entries[key] = &rateLimitEntry{count: 1, windowStart: now}
		return true
	}
	if enforce && entry.count >= rl.maxAttempts {
		return false
	}
	entry.count++
	return true
}

// Allow counts an attempt for key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.hit(key, true)
}

// RecordFailure counts a rejected attempt, such as a bad cron token,
// without checking the limit.
func (rl *RateLimiter) RecordFailure(key string) {
	rl.hit(key, false)
}

// Reset clears the rate limit for a key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.entries, key)
}

// Exceeded reports whether key has used its attempts in the current window
// without counting a new attempt.
func (rl *RateLimiter) Exceeded(key string) bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	entry := rl.current(key, rl.now())
	return entry != nil && entry.count >= rl.maxAttempts
}

// TimeUntilReset returns how long until the rate limit resets for a key.
func (rl *RateLimiter) TimeUntilReset(key string) time.Duration {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	now := rl.now()
	entry := rl.current(key, now)
	if entry == nil {
		return 0
	}
	return rl.window - now.Sub(entry.windowStart)
}

// cleanup periodically removes expired entries to prevent memory leaks.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := rl.now()
		for key := range rl.entries {
			if rl.current(key, now) == nil {
				delete(rl.entries, key)
			}
		}
		rl.mu.Unlock()
	}
}

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware wraps a rate limiter for use as HTTP middleware.
type RateLimitMiddleware struct {
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware.
func NewRateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
	}
}

// Limit returns middleware that rate limits requests per client. An
// authenticated user is keyed by ID; anyone else by IP.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)

		if !m.limiter.Allow(key) {
			m.logger.Warn("rate limit exceeded",
				"key", key,
				"path", r.URL.Path,
				"method", r.Method,
			)

			retryAfter := int(m.limiter.TimeUntilReset(key).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			handler.ErrorResponse(w, r, m.logger, domain.RateLimit(""))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Write Rate Limiter (combined limiter for mutating writer endpoints)
// =============================================================================

// WriteRateLimiter throttles the endpoints that create stories, request
// assessments, enter competitions, and start checkouts. Monthly quotas cap
// the totals; these limits only smooth bursts.
type WriteRateLimiter struct {
	storyLimiter    *RateLimiter
	entryLimiter    *RateLimiter
	checkoutLimiter *RateLimiter
	logger          *slog.Logger
}

// NewWriteRateLimiter creates rate limiters with these defaults:
// - Stories and assessment requests: 30 per minute
// - Submissions: 5 per minute
// - Checkouts: 10 per hour
func NewWriteRateLimiter(logger *slog.Logger) *WriteRateLimiter {
	return &WriteRateLimiter{
		storyLimiter:    NewRateLimiter(30, time.Minute, logger),
		entryLimiter:    NewRateLimiter(5, time.Minute, logger),
		checkoutLimiter: NewRateLimiter(10, time.Hour, logger),
		logger:          logger,
	}
}

// LimitStories returns middleware for story creation and assessment requests.
func (a *WriteRateLimiter) LimitStories(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.storyLimiter, a.logger).Limit(next)
}

// LimitSubmissions returns middleware for competition submissions.
func (a *WriteRateLimiter) LimitSubmissions(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.entryLimiter, a.logger).Limit(next)
}

// LimitCheckouts returns middleware for checkout session creation.
func (a *WriteRateLimiter) LimitCheckouts(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.checkoutLimiter, a.logger).Limit(next)
}

// Route wraps the mutating writer routes of mux with their limiter and
// passes every other request through.
func (a *WriteRateLimiter) Route(next http.Handler) http.Handler {
	stories := a.LimitStories(next)
	submissions := a.LimitSubmissions(next)
	checkouts := a.LimitCheckouts(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		switch {
		case r.URL.Path == "/api/submissions":
			submissions.ServeHTTP(w, r)
		case r.URL.Path == "/api/purchases/checkout":
			checkouts.ServeHTTP(w, r)
		case strings.HasPrefix(r.URL.Path, "/api/stories"):
			stories.ServeHTTP(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// =============================================================================
// Helpers
// =============================================================================

// rateLimitKey identifies the client a request is counted against.
func rateLimitKey(r *http.Request) string {
	if id, ok := auth.UserID(r.Context()); ok {
		return "user:" + id.String()
	}
	return "ip:" + getClientIP(r)
}

// getClientIP extracts the client IP from the request, considering proxy headers.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For first (most common proxy header)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs: client, proxy1, proxy2
		// The first one is the original client
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			clientIP := strings.TrimSpace(ips[0])
			if clientIP != "" {
				return clientIP
			}
		}
	}

	// Check X-Real-IP (nginx)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}

	return ip
}
