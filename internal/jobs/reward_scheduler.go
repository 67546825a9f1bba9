package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/revaspay/storefront/internal/services/rewards"
	"github.com/revaspay/storefront/internal/services/settings"
	"go.uber.org/zap"
)

const rewardRunTag = "reward_full_run"

// FullRunner starts a distribution run over every reward source
type FullRunner interface {
	FullRun(ctx context.Context, trigger rewards.Trigger) (*rewards.RunReport, error)
}

// RewardScheduler fires the full distribution run on the operator-configured cron
// expression and time zone. Only one timer is installed at a time.
type RewardScheduler struct {
	runner   FullRunner
	settings rewards.SettingsReader
	logger   *zap.Logger

	mu        sync.Mutex
	scheduler *gocron.Scheduler
	ctx       context.Context
	expr      string
	timezone  string
}

// NewRewardScheduler creates the scheduler. Call Start to install the timer.
func NewRewardScheduler(runner FullRunner, settingsReader rewards.SettingsReader, logger *zap.Logger) *RewardScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardScheduler{
		runner:    runner,
		settings:  settingsReader,
		logger:    logger,
		scheduler: gocron.NewScheduler(time.UTC),
		ctx:       context.Background(),
	}
}

// Start installs the timer from the current configuration and starts the scheduler
func (s *RewardScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = ctx
	if err := s.install(ctx); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

// Refresh removes the installed timer and installs a new one from the latest configuration
func (s *RewardScheduler) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.scheduler.RemoveByTag(rewardRunTag); err != nil && !errors.Is(err, gocron.ErrJobNotFoundWithTag) {
		return fmt.Errorf("failed to remove reward timer: %w", err)
	}
	return s.install(ctx)
}

// Stop stops the scheduler. A run already in progress is left to finish.
func (s *RewardScheduler) Stop() {
	s.scheduler.Stop()
}

// Schedule returns the cron expression and time zone currently installed
func (s *RewardScheduler) Schedule() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr, s.timezone
}

// NextRun returns the next firing time of the installed timer
func (s *RewardScheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.scheduler.FindJobsByTag(rewardRunTag)
	if err != nil || len(jobs) == 0 {
		return time.Time{}, false
	}
	return jobs[0].NextRun(), true
}

// install must be called with mu held
func (s *RewardScheduler) install(ctx context.Context) error {
	expr := s.setting(ctx, settings.KeyRewardSchedule, settings.DefaultRewardSchedule)
	tz := s.setting(ctx, settings.KeyRewardTimezone, settings.DefaultRewardTimezone)

	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.logger.Warn("Invalid reward time zone, falling back to default",
			zap.String("timezone", tz),
			zap.Error(err))
		tz = settings.DefaultRewardTimezone
		loc = time.UTC
	}
	s.scheduler.ChangeLocation(loc)

	_, err = s.scheduler.Cron(expr).Tag(rewardRunTag).SingletonMode().Do(s.fire)
	if err != nil {
		s.logger.Warn("Invalid reward schedule, falling back to default",
			zap.String("schedule", expr),
			zap.Error(err))
		expr = settings.DefaultRewardSchedule
		if _, err := s.scheduler.Cron(expr).Tag(rewardRunTag).SingletonMode().Do(s.fire); err != nil {
			return fmt.Errorf("failed to install reward timer: %w", err)
		}
	}

	s.expr = expr
	s.timezone = tz
	s.logger.Info("Reward timer installed",
		zap.String("schedule", expr),
		zap.String("timezone", tz))
	return nil
}

func (s *RewardScheduler) setting(ctx context.Context, key, def string) string {
	if s.settings == nil {
		return def
	}
	value, err := s.settings.Get(ctx, key, def)
	if err != nil {
		s.logger.Warn("Failed to read setting, using default", zap.String("key", key), zap.Error(err))
		return def
	}
	return value
}

func (s *RewardScheduler) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	report, err := s.runner.FullRun(ctx, rewards.TriggerScheduled)
	if err != nil {
		s.logger.Error("Scheduled reward run failed", zap.Error(err))
		return
	}
	s.logger.Info("Scheduled reward run completed",
		zap.String("run_id", report.ID.String()),
		zap.String("period", report.Period),
		zap.Int("applied", report.Applied),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
}

// ValidateSchedule reports whether expr is a cron expression the scheduler accepts
func ValidateSchedule(expr string) error {
	check := gocron.NewScheduler(time.UTC)
	if _, err := check.Cron(expr).Do(func() {}); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}
