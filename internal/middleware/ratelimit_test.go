package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/inkwell/internal/auth"
	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/google/uuid"
)

// =============================================================================
// RateLimiter Tests
// =============================================================================

// newTestLimiter returns a limiter on a manual clock and the function that
// advances it.
func newTestLimiter(max int, window time.Duration) (*RateLimiter, func(time.Duration)) {
	rl := NewRateLimiter(max, window, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, func(d time.Duration) { now = now.Add(d) }
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, _ := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		if !rl.Allow("user:a") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("user:a") {
		t.Error("6th request should be denied")
	}
	if !rl.Allow("user:b") {
		t.Error("other keys keep their own budget")
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl, advance := newTestLimiter(2, time.Minute)

	rl.Allow("ip:192.168.1.1")
	rl.Allow("ip:192.168.1.1")
	if rl.Allow("ip:192.168.1.1") {
		t.Error("should be rate limited")
	}
	if got := rl.TimeUntilReset("ip:192.168.1.1"); got != time.Minute {
		t.Errorf("expected reset in 1m, got %v", got)
	}

	advance(61 * time.Second)

	if rl.TimeUntilReset("ip:192.168.1.1") != 0 {
		t.Error("expired window should report no wait")
	}
	if !rl.Allow("ip:192.168.1.1") {
		t.Error("should be allowed after window expires")
	}
}

func TestRateLimiter_RecordFailure(t *testing.T) {
	rl, _ := newTestLimiter(5, time.Minute)

	// Failures past the limit still count.
	for i := 0; i < 6; i++ {
		rl.RecordFailure("192.168.1.1")
	}

	if rl.Allow("192.168.1.1") {
		t.Error("should be blocked after 5 failures")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)

	rl.Allow("192.168.1.1")
	rl.Reset("192.168.1.1")

	if !rl.Allow("192.168.1.1") {
		t.Error("should be allowed after reset")
	}
}

func TestRateLimiter_Exceeded_DoesNotCount(t *testing.T) {
	rl, advance := newTestLimiter(2, time.Minute)

	if rl.Exceeded("192.168.1.1") {
		t.Error("unknown key should not be exceeded")
	}
	rl.RecordFailure("192.168.1.1")
	for i := 0; i < 3; i++ {
		if rl.Exceeded("192.168.1.1") {
			t.Fatalf("check %d: Exceeded should not consume attempts", i+1)
		}
	}
	rl.RecordFailure("192.168.1.1")
	if !rl.Exceeded("192.168.1.1") {
		t.Error("should be exceeded after 2 failures")
	}

	advance(2 * time.Minute)
	if rl.Exceeded("192.168.1.1") {
		t.Error("lapsed window should not be exceeded")
	}
}

// =============================================================================
// RateLimitMiddleware Tests
// =============================================================================

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_BlocksAfterLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wrapped := NewRateLimitMiddleware(NewRateLimiter(2, time.Minute, logger), logger).Limit(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/stories", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		if i < 2 && rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("request %d: expected 429, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_JSONResponseWithRetryAfter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wrapped := NewRateLimitMiddleware(NewRateLimiter(1, time.Minute, logger), logger).Limit(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/submissions", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		if i == 0 {
			continue
		}
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After header to be set")
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json content type, got %s", ct)
		}
		if !strings.Contains(rec.Body.String(), domain.ERATELIMIT) {
			t.Errorf("expected rate limit code in body, got %s", rec.Body.String())
		}
	}
}

func TestRateLimitMiddleware_KeysByUser(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wrapped := NewRateLimitMiddleware(NewRateLimiter(1, time.Minute, logger), logger).Limit(okHandler())

	// Two users behind the same NAT get separate budgets.
	for _, user := range []*domain.User{{ID: uuid.New()}, {ID: uuid.New()}} {
		req := httptest.NewRequest("POST", "/api/stories", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req = req.WithContext(auth.SetUser(req.Context(), user))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("user %s: expected 200, got %d", user.ID, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_XForwardedFor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wrapped := NewRateLimitMiddleware(NewRateLimiter(2, time.Minute, logger), logger).Limit(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/stories", nil)
		req.RemoteAddr = "10.0.0.1:12345" // Proxy IP
		req.Header.Set("X-Forwarded-For", "203.0.113.195, 70.41.3.18, 150.172.238.178")
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		if i < 2 && rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("request %d: expected 429, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_XRealIP(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/stories", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Real-IP", "203.0.113.195")

	if got := getClientIP(req); got != "203.0.113.195" {
		t.Errorf("expected X-Real-IP to win, got %s", got)
	}
}

// =============================================================================
// WriteRateLimiter Tests
// =============================================================================

func TestWriteRateLimiter_Submissions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wrapped := NewWriteRateLimiter(logger).Route(okHandler())

	// Default submission limit is 5 per minute
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest("POST", "/api/submissions", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		if i < 5 && rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if i == 5 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("request %d: expected 429, got %d", i+1, rec.Code)
		}
	}
}

func TestWriteRateLimiter_SeparateBudgets(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wrapped := NewWriteRateLimiter(logger).Route(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/api/submissions", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		wrapped.ServeHTTP(httptest.NewRecorder(), req)
	}

	// Exhausting submissions leaves story writes untouched.
	req := httptest.NewRequest("POST", "/api/stories", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected story write to pass, got %d", rec.Code)
	}
}

func TestWriteRateLimiter_ReadsPassThrough(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wrapped := NewWriteRateLimiter(logger).Route(okHandler())

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest("GET", "/api/usage", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: reads should never be limited, got %d", i+1, rec.Code)
		}
	}
}
