package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Security Headers Middleware Tests
// =============================================================================

func serveWithSecurityHeaders(isSecure bool, method, path string) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("OK"))
	})
	rec := httptest.NewRecorder()
	NewSecurityHeadersMiddleware(isSecure).Handler(next).ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestSecurityHeadersMiddleware_SetsAllHeaders(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := serveWithSecurityHeaders(true, method, "/api/stories")

		tests := []struct {
			header   string
			expected string
		}{
			{"X-Frame-Options", "DENY"},
			{"X-Content-Type-Options", "nosniff"},
			{"Referrer-Policy", "strict-origin-when-cross-origin"},
			{"X-XSS-Protection", "1; mode=block"},
			{"Cache-Control", "no-store"},
		}
		for _, tc := range tests {
			if got := rec.Header().Get(tc.header); got != tc.expected {
				t.Errorf("%s %s: expected %q, got %q", method, tc.header, tc.expected, got)
			}
		}
	}
}

func TestSecurityHeadersMiddleware_HSTS(t *testing.T) {
	hsts := serveWithSecurityHeaders(true, http.MethodGet, "/").Header().Get("Strict-Transport-Security")
	if !strings.Contains(hsts, "max-age=") || !strings.Contains(hsts, "includeSubDomains") {
		t.Errorf("expected HSTS in production, got %q", hsts)
	}

	if got := serveWithSecurityHeaders(false, http.MethodGet, "/").Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("expected no HSTS in development, got %q", got)
	}
}

func TestSecurityHeadersMiddleware_CSPHeader(t *testing.T) {
	csp := serveWithSecurityHeaders(false, http.MethodGet, "/api/usage").Header().Get("Content-Security-Policy")

	for _, directive := range []string{"default-src 'none'", "frame-ancestors 'none'", "form-action 'none'"} {
		if !strings.Contains(csp, directive) {
			t.Errorf("CSP should contain %q, got %q", directive, csp)
		}
	}
}

func TestSecurityHeadersMiddleware_PermissionsPolicy(t *testing.T) {
	pp := serveWithSecurityHeaders(false, http.MethodGet, "/").Header().Get("Permissions-Policy")

	for _, feature := range []string{"geolocation=()", "microphone=()", "camera=()"} {
		if !strings.Contains(pp, feature) {
			t.Errorf("Permissions-Policy should disable %s, got %q", feature, pp)
		}
	}
}

func TestSecurityHeadersMiddleware_ArchiveIsCacheable(t *testing.T) {
	rec := serveWithSecurityHeaders(false, http.MethodGet, "/archive/results/2025-march.json")

	if got := rec.Header().Get("Cache-Control"); !strings.HasPrefix(got, "public") {
		t.Errorf("expected public Cache-Control for archive, got %q", got)
	}
}

func TestSecurityHeadersMiddleware_PassesThroughRequests(t *testing.T) {
	rec := serveWithSecurityHeaders(true, http.MethodPost, "/api/submissions")

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("expected body 'OK', got %q", rec.Body.String())
	}
}
