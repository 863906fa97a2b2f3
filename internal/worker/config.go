package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the background job worker.
type Config struct {
	Concurrency     int           // polling goroutines
	PollInterval    time.Duration // idle wait between polls
	JobTimeout      time.Duration // per-job deadline; the AI call dominates it
	ShutdownTimeout time.Duration // grace period for in-flight jobs on Stop

	// StaleJobThreshold is the age at which a job still marked running is
	// assumed orphaned by a crashed process and requeued on startup. It must
	// exceed JobTimeout or live jobs would be picked up twice.
	StaleJobThreshold time.Duration
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Concurrency:       2,
		PollInterval:      5 * time.Second,
		JobTimeout:        5 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
		StaleJobThreshold: 10 * time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Concurrency < 1 || c.Concurrency > 100 {
		return fmt.Errorf("concurrency must be between 1 and 100, got %d", c.Concurrency)
	}

	minimums := []struct {
		name string
		got  time.Duration
		min  time.Duration
	}{
		{"poll interval", c.PollInterval, time.Second},
		{"job timeout", c.JobTimeout, time.Second},
		{"shutdown timeout", c.ShutdownTimeout, time.Second},
		{"stale job threshold", c.StaleJobThreshold, time.Minute},
	}
	for _, m := range minimums {
		if m.got < m.min {
			return fmt.Errorf("%s must be at least %v, got %v", m.name, m.min, m.got)
		}
	}

	if c.StaleJobThreshold <= c.JobTimeout {
		return fmt.Errorf("stale job threshold (%v) must exceed job timeout (%v)", c.StaleJobThreshold, c.JobTimeout)
	}
	return nil
}
