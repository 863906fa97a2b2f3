// Package timesource provides the trusted clock used for phase transitions,
// submission cutoffs, and the monthly usage reset.
//
// A Source reports time from some authority and may fail. Trusted wraps a
// Source and never fails: if the source errors it logs a degraded warning,
// increments the clock fallback metric, and returns local time.
package timesource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/DukeRupert/inkwell/internal/metrics"
)

// Source reports the current time.
type Source interface {
	Now(ctx context.Context) (time.Time, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context) (time.Time, error)

func (f SourceFunc) Now(ctx context.Context) (time.Time, error) {
	return f(ctx)
}

// Reading is a time obtained from a Clock.
type Reading struct {
	Time time.Time
	// Degraded is true when the trusted source failed and local time was used.
	Degraded bool
}

// Clock is the interface consumed by services.
type Clock interface {
	Now(ctx context.Context) Reading
}

// =============================================================================
// Sources
// =============================================================================

// Local returns the process clock.
type Local struct{}

func (Local) Now(context.Context) (time.Time, error) {
	return time.Now(), nil
}

// Fixed is a controllable Source for tests.
type Fixed struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFixed creates a Fixed source set to t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{current: t}
}

func (f *Fixed) Now(context.Context) (time.Time, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current, nil
}

// Set sets the current time.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the current time forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// HTTPSource reads the Date header of a HEAD request to a well-known server.
// Second precision is enough for day-granular phase boundaries.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource creates an HTTPSource with the given request timeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Now(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.URL, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("build time request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("time request: %w", err)
	}
	defer resp.Body.Close()

	date := resp.Header.Get("Date")
	if date == "" {
		return time.Time{}, fmt.Errorf("time request: response from %s has no Date header", s.URL)
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse Date header %q: %w", date, err)
	}
	return t, nil
}

// =============================================================================
// Trusted
// =============================================================================

// Trusted is a Clock backed by a Source with local fallback. Readings are
// expressed in the configured competition location.
type Trusted struct {
	source   Source
	fallback func() time.Time
	loc      *time.Location
	logger   *slog.Logger
}

// NewTrusted creates a Trusted clock. A nil loc means UTC.
func NewTrusted(source Source, loc *time.Location, logger *slog.Logger) *Trusted {
	if loc == nil {
		loc = time.UTC
	}
	return &Trusted{
		source:   source,
		fallback: time.Now,
		loc:      loc,
		logger:   logger,
	}
}

// Location returns the location readings are expressed in.
func (t *Trusted) Location() *time.Location {
	return t.loc
}

func (t *Trusted) Now(ctx context.Context) Reading {
	now, err := t.source.Now(ctx)
	if err == nil {
		return Reading{Time: now.In(t.loc)}
	}

	metrics.ClockFallbacksTotal.Inc()
	t.logger.Warn("trusted time source failed, using local clock",
		"degraded", true,
		"error", err,
	)
	return Reading{Time: t.fallback().In(t.loc), Degraded: true}
}
