package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// JobFunc is the function signature for scheduled jobs
type JobFunc func(ctx context.Context) error

// Scheduler wraps gocron v2 and provides clock-aligned scheduling
type Scheduler struct {
	gocronScheduler gocron.Scheduler
	job             gocron.Job
	interval        string
	timezone        *time.Location
	runImmediately  bool
	logger          *slog.Logger
	guard           *Guard
}

// Config holds scheduler configuration
type Config struct {
	Interval       string         // Duration (e.g., "5m") or cron expression (e.g., "*/5 * * * *")
	Timezone       *time.Location // Timezone for cron expressions (default: UTC)
	RunImmediately bool           // Execute immediately on start (default: true)
	Logger         *slog.Logger   // Logger for scheduler events
}

var (
	// cronPattern matches cron expressions (5 or 6 fields)
	cronPattern = regexp.MustCompile(`^(\S+\s+){4,5}\S+$`)

	// validMinuteIntervals are minute intervals that divide evenly into 60
	validMinuteIntervals = map[int]bool{
		1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 10: true, 12: true,
		15: true, 20: true, 30: true,
	}

	// validHourIntervals are hour intervals that divide evenly into 24
	validHourIntervals = map[int]bool{
		1: true, 2: true, 3: true, 4: true, 6: true, 8: true, 12: true, 24: true,
	}

	// validSecondIntervals are second intervals that divide evenly into 60
	validSecondIntervals = map[int]bool{
		1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 10: true, 12: true,
		15: true, 20: true, 30: true,
	}
)

// NewScheduler creates a scheduler whose ticks run job through guard
func NewScheduler(ctx context.Context, cfg Config, guard *Guard, job JobFunc) (*Scheduler, error) {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if guard == nil {
		guard = NewGuard()
	}

	s := &Scheduler{
		interval:       cfg.Interval,
		timezone:       cfg.Timezone,
		runImmediately: cfg.RunImmediately,
		logger:         cfg.Logger,
		guard:          guard,
	}

	cronExpr := cfg.Interval
	if !IsCronExpression(cfg.Interval) {
		// Convert duration to clock-aligned cron expression
		expr, err := durationToCron(cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("invalid interval: %w", err)
		}
		cronExpr = expr
		s.logger.Info("Converting duration to cron", "duration", cfg.Interval, "cron", cronExpr, "timezone", cfg.Timezone.String())
	} else {
		s.logger.Info("Using cron expression", "cron", cronExpr, "timezone", cfg.Timezone.String())
	}

	gocronScheduler, err := gocron.NewScheduler(
		gocron.WithLocation(cfg.Timezone),
		gocron.WithLogger(newGocronLoggerAdapter(cfg.Logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	s.gocronScheduler = gocronScheduler

	s.job, err = gocronScheduler.NewJob(
		gocron.CronJob(cronExpr, len(strings.Fields(cronExpr)) == 6),
		gocron.NewTask(func() { s.tick(ctx, job) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		gocronScheduler.Shutdown()
		return nil, fmt.Errorf("failed to create scheduled job: %w", err)
	}

	return s, nil
}

func (s *Scheduler) tick(ctx context.Context, job JobFunc) {
	err := s.guard.TryRun(ctx, job)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("Previous poll still running, skipping tick")
	case err != nil:
		s.logger.Error("Job execution failed", "error", err)
	}
}

// Guard returns the run-state guard shared with manual triggers
func (s *Scheduler) Guard() *Guard {
	return s.guard
}

// Start begins the scheduler, optionally firing the job right away
func (s *Scheduler) Start() error {
	s.gocronScheduler.Start()

	if s.runImmediately {
		s.logger.Info("Executing job immediately")
		if err := s.job.RunNow(); err != nil {
			// Scheduled execution still proceeds
			s.logger.Error("Immediate execution failed", "error", err)
		}
	}

	if nextRun, err := s.NextRun(); err == nil {
		s.logger.Info("Scheduler started", "next_run", nextRun.Format(time.RFC3339), "timezone", s.timezone.String())
	} else {
		s.logger.Info("Scheduler started")
	}

	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.gocronScheduler.Shutdown()
}

// NextRun returns the next scheduled run time
func (s *Scheduler) NextRun() (time.Time, error) {
	nextRun, err := s.job.NextRun()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get next run: %w", err)
	}
	return nextRun, nil
}

// defaultExpectedInterval is used when interval cannot be parsed
const defaultExpectedInterval = 10 * time.Minute

// Bounds of the scan for the widest gap in a cron schedule
const (
	cronHorizon  = 8 * 24 * time.Hour
	cronMaxTicks = 4096
)

// ExpectedInterval returns the spacing between runs, used by the health
// checker.
func (s *Scheduler) ExpectedInterval() time.Duration {
	return expectedInterval(s.interval, time.Now().In(s.timezone))
}

// ExpectedInterval returns the spacing between runs of interval. Durations
// are taken as is. For cron expressions it is the widest gap between
// consecutive runs over the next week, so a weekday-only schedule reports its
// weekend gap.
func ExpectedInterval(interval string) time.Duration {
	return expectedInterval(interval, time.Now().UTC())
}

func expectedInterval(interval string, from time.Time) time.Duration {
	if d, err := time.ParseDuration(interval); err == nil {
		return d
	}
	if !IsCronExpression(interval) {
		return defaultExpectedInterval
	}

	schedule, err := parseCron(interval)
	if err != nil {
		return defaultExpectedInterval
	}

	var widest time.Duration
	end := from.Add(cronHorizon)
	prev := schedule.Next(from)
	for i := 0; i < cronMaxTicks && !prev.IsZero() && prev.Before(end); i++ {
		next := schedule.Next(prev)
		if next.IsZero() {
			break
		}
		widest = max(widest, next.Sub(prev))
		prev = next
	}
	if widest == 0 {
		return defaultExpectedInterval
	}
	return widest
}

func parseCron(expr string) (cron.Schedule, error) {
	if len(strings.Fields(expr)) == 6 {
		return cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(expr)
	}
	return cron.ParseStandard(expr)
}

// IsCronExpression checks if a string is a cron expression (vs duration)
func IsCronExpression(s string) bool {
	// Cron expressions have 5 or 6 space-separated fields
	return cronPattern.MatchString(s)
}

// durationToCron converts a duration string to a clock-aligned cron expression
// Examples:
//   "5m" -> "*/5 * * * *"
//   "1h" -> "0 */1 * * *"
//   "30s" -> "*/30 * * * * *"
func durationToCron(durationStr string) (string, error) {
	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		return "", fmt.Errorf("invalid duration format: %w", err)
	}

	// Convert duration to appropriate cron expression based on magnitude
	switch {
	case duration < time.Minute:
		// Seconds-based cron (6 fields)
		seconds := int(duration.Seconds())
		if seconds == 0 || 60%seconds != 0 {
			return "", fmt.Errorf("second intervals must divide evenly into 60 (got %ds)", seconds)
		}
		if !validSecondIntervals[seconds] {
			return "", fmt.Errorf("second interval %ds is not a standard divisor of 60", seconds)
		}
		return fmt.Sprintf("*/%d * * * * *", seconds), nil

	case duration < time.Hour:
		// Minutes-based cron (5 fields)
		minutes := int(duration.Minutes())
		if minutes == 0 || 60%minutes != 0 {
			return "", fmt.Errorf("minute intervals must divide evenly into 60 (got %dm)", minutes)
		}
		if !validMinuteIntervals[minutes] {
			return "", fmt.Errorf("minute interval %dm is not a standard divisor of 60", minutes)
		}
		return fmt.Sprintf("*/%d * * * *", minutes), nil

	case duration%time.Hour == 0:
		// Hour-based cron (5 fields)
		hours := int(duration.Hours())
		if hours == 0 || 24%hours != 0 {
			return "", fmt.Errorf("hour intervals must divide evenly into 24 (got %dh)", hours)
		}
		if !validHourIntervals[hours] {
			return "", fmt.Errorf("hour interval %dh is not a standard divisor of 24", hours)
		}
		return fmt.Sprintf("0 */%d * * *", hours), nil

	default:
		return "", fmt.Errorf("duration must be whole seconds, minutes, or hours (got %s)", durationStr)
	}
}

// ValidateScheduleInterval validates a schedule interval (duration or cron)
func ValidateScheduleInterval(interval string) error {
	if interval == "" {
		return nil // Empty is valid (one-shot mode)
	}

	// Check if it's a cron expression
	if IsCronExpression(interval) {
		// Basic validation - gocron will do deeper validation
		fields := strings.Fields(interval)
		if len(fields) != 5 && len(fields) != 6 {
			return errors.New("cron expression must have 5 or 6 fields")
		}
		return nil
	}

	// Validate as duration
	_, err := durationToCron(interval)
	return err
}

// gocronLoggerAdapter adapts slog.Logger to gocron.Logger interface
type gocronLoggerAdapter struct {
	logger *slog.Logger
}

func newGocronLoggerAdapter(logger *slog.Logger) gocron.Logger {
	return &gocronLoggerAdapter{logger: logger}
}

func (a *gocronLoggerAdapter) Debug(msg string, args ...any) {
	a.logger.Debug(msg, args...)
}

func (a *gocronLoggerAdapter) Info(msg string, args ...any) {
	a.logger.Info(msg, args...)
}

func (a *gocronLoggerAdapter) Warn(msg string, args ...any) {
	a.logger.Warn(msg, args...)
}

func (a *gocronLoggerAdapter) Error(msg string, args ...any) {
	a.logger.Error(msg, args...)
}

// DescribeSchedule provides a human-readable description of the schedule
func DescribeSchedule(interval string, timezone *time.Location) string {
	if timezone == nil {
		timezone = time.UTC
	}

	if interval == "" {
		return "once"
	}

	if IsCronExpression(interval) {
		return fmt.Sprintf("cron: %s (%s)", interval, timezone.String())
	}

	duration, err := time.ParseDuration(interval)
	if err != nil {
		return fmt.Sprintf("invalid: %s", interval)
	}

	cronExpr, err := durationToCron(interval)
	if err != nil {
		return fmt.Sprintf("duration: %s (non-aligned)", interval)
	}

	return fmt.Sprintf("every %s (aligned to clock, cron: %s, %s)", duration, cronExpr, timezone.String())
}
