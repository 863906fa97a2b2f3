// Package scheduler runs the periodic competition triggers in process.
//
// It drives the same idempotent services as the /cron endpoints, so running
// both the scheduler and an external timer is harmless.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/service"
	"github.com/go-co-op/gocron/v2"
)

// Config controls trigger cadence.
type Config struct {
	// PhaseInterval is how often phases are advanced.
	// Default: 15 minutes
	PhaseInterval time.Duration

	// MonthlyCron is the crontab (minute resolution) for the monthly usage
	// reset and competition creation.
	// Default: "5 0 1 * *"
	MonthlyCron string

	// RunTimeout bounds a single trigger run.
	// Default: 2 minutes
	RunTimeout time.Duration

	// Location is the zone the crontab is evaluated in.
	Location *time.Location
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		PhaseInterval: 15 * time.Minute,
		MonthlyCron:   "5 0 1 * *",
		RunTimeout:    2 * time.Minute,
		Location:      time.UTC,
	}
}

// Scheduler wraps a gocron scheduler with the competition triggers.
type Scheduler struct {
	sched        gocron.Scheduler
	competitions service.CompetitionService
	usage        service.UsageResetService
	config       Config
	logger       *slog.Logger
}

// New creates a Scheduler and registers its jobs. Call Start to run them.
func New(
	competitions service.CompetitionService,
	usage service.UsageResetService,
	config Config,
	logger *slog.Logger,
) (*Scheduler, error) {
	defaults := DefaultConfig()
	if config.PhaseInterval <= 0 {
		config.PhaseInterval = defaults.PhaseInterval
	}
	if config.MonthlyCron == "" {
		config.MonthlyCron = defaults.MonthlyCron
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = defaults.RunTimeout
	}
	if config.Location == nil {
		config.Location = defaults.Location
	}

	sched, err := gocron.NewScheduler(gocron.WithLocation(config.Location))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &Scheduler{
		sched:        sched,
		competitions: competitions,
		usage:        usage,
		config:       config,
		logger:       logger,
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(config.PhaseInterval),
		gocron.NewTask(s.run, "advance_phases", s.AdvancePhases),
		gocron.WithName("advance_phases"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("register phase job: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.CronJob(config.MonthlyCron, false),
		gocron.NewTask(s.run, "monthly_rollover", s.MonthlyRollover),
		gocron.WithName("monthly_rollover"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("register monthly job: %w", err)
	}

	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.sched.Start()
	s.logger.Info("scheduler started",
		"phase_interval", s.config.PhaseInterval,
		"monthly_cron", s.config.MonthlyCron,
	)
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.logger.Info("stopping scheduler")
	return s.sched.Shutdown()
}

// AdvancePhases runs the phase controller over every competition.
func (s *Scheduler) AdvancePhases(ctx context.Context) error {
	summary, err := s.competitions.AdvanceAll(ctx)
	if err != nil {
		return err
	}
	if summary.Advanced > 0 || summary.Failed > 0 {
		s.logger.Info("phases advanced",
			"checked", summary.Checked,
			"advanced", summary.Advanced,
			"failed", summary.Failed,
			"degraded", summary.Degraded,
		)
	}
	return nil
}

// MonthlyRollover zeroes stale usage counters, creates the current month's
// competition, then advances phases so the new competition opens at once.
func (s *Scheduler) MonthlyRollover(ctx context.Context) error {
	reset, err := s.usage.Run(ctx)
	if err != nil {
		return fmt.Errorf("usage reset: %w", err)
	}

	comp, created, err := s.competitions.CreateMonthly(ctx, domain.CreateCompetitionParams{})
	if err != nil {
		return fmt.Errorf("create competition: %w", err)
	}

	s.logger.Info("monthly rollover complete",
		"month", reset.MonthKey,
		"counters_reset", reset.Reset,
		"competition_id", comp.ID,
		"created", created,
	)
	return s.AdvancePhases(ctx)
}

func (s *Scheduler) run(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RunTimeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error("scheduled run failed", "job", name, "error", err)
		return
	}
	s.logger.Debug("scheduled run complete", "job", name, "duration", time.Since(start))
}
