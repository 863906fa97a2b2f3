package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DukeRupert/inkwell/internal/auth"
	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/google/uuid"
)

// =============================================================================
// Request Logging Middleware Tests
// =============================================================================

// logRequest runs req through the logging middleware with a handler that
// writes status, and returns the log output.
func logRequest(t *testing.T, req *http.Request, status int) string {
	t.Helper()
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	rec := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(rec, req)

	if rec.Code != status {
		t.Fatalf("expected status %d to pass through, got %d", status, rec.Code)
	}
	return buf.String()
}

func TestRequestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		target      string
		status      int
		headers     map[string]string
		contains    []string
		notContains []string
	}{
		{
			name: "basic fields", method: http.MethodGet, target: "/api/usage", status: http.StatusOK,
			contains: []string{"GET", "/api/usage", "status=200", "duration_ms"},
		},
		{
			name: "forwarded client ip", method: http.MethodGet, target: "/api/competitions/current", status: http.StatusOK,
			headers:  map[string]string{"X-Forwarded-For": "203.0.113.195, 10.0.0.1"},
			contains: []string{"ip=203.0.113.195"},
		},
		{
			name: "server error logs at warn", method: http.MethodPost, target: "/api/submissions", status: http.StatusInternalServerError,
			contains: []string{"level=WARN", "status=500"},
		},
		{
			name: "written status captured", method: http.MethodGet, target: "/api/stories/x", status: http.StatusNotFound,
			contains: []string{"status=404"},
		},
		{
			name: "user agent", method: http.MethodGet, target: "/api/usage", status: http.StatusOK,
			headers:  map[string]string{"User-Agent": "Mozilla/5.0 TestBrowser"},
			contains: []string{"TestBrowser"},
		},
		{
			name: "sensitive query redacted", method: http.MethodGet, target: "/api/stories?token=secrettoken123&page=2", status: http.StatusOK,
			contains:    []string{"token=[REDACTED]", "page=2"},
			notContains: []string{"secrettoken123"},
		},
		{
			name: "cron calls flagged", method: http.MethodPost, target: "/cron/phases", status: http.StatusOK,
			contains: []string{"privileged=true"},
		},
		{
			name: "health skipped", method: http.MethodGet, target: "/health", status: http.StatusOK,
			notContains: []string{"/health"},
		},
		{
			name: "metrics skipped", method: http.MethodGet, target: "/metrics", status: http.StatusOK,
			notContains: []string{"/metrics"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			req.RemoteAddr = "192.168.1.1:12345"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			out := logRequest(t, req, tt.status)

			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("log should contain %q, got: %s", want, out)
				}
			}
			for _, unwanted := range tt.notContains {
				if strings.Contains(out, unwanted) {
					t.Errorf("log should not contain %q, got: %s", unwanted, out)
				}
			}
		})
	}
}

func TestRequestLoggingMiddleware_LogsUserID(t *testing.T) {
	user := &domain.User{ID: uuid.New()}
	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req = req.WithContext(auth.SetUser(req.Context(), user))

	out := logRequest(t, req, http.StatusOK)

	if !strings.Contains(out, user.ID.String()) {
		t.Errorf("log should contain user id, got: %s", out)
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		path, query, want string
	}{
		{"/api/usage", "", "/api/usage"},
		{"/x", "API_KEY=abc", "/x?API_KEY=[REDACTED]"},
		{"/x", "novalue", "/x"},
		{"/x", "a=1&session=s", "/x?a=1&session=[REDACTED]"},
	}
	for _, tt := range tests {
		if got := sanitizePath(tt.path, tt.query); got != tt.want {
			t.Errorf("sanitizePath(%q, %q) = %q, want %q", tt.path, tt.query, got, tt.want)
		}
	}
}
