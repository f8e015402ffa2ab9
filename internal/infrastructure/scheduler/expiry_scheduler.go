package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	billingapp "github.com/saas/backend/internal/application/billing"
	"github.com/saas/backend/internal/infrastructure/config"
	"github.com/saas/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Job names
const (
	JobSubscriptionExpiry = "subscription_expiry"
	JobTrialExpiry        = "trial_expiry"
)

var (
	// ErrInvalidConfig is returned for an unparsable cron spec
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrAlreadyRunning is returned when Start is called twice
	ErrAlreadyRunning = errors.New("scheduler is already running")
)

// Sweeper runs the expiry sweeps
type Sweeper interface {
	ExpireSubscriptions(ctx context.Context) (billingapp.SweepResult, error)
	ExpireTrials(ctx context.Context) (billingapp.SweepResult, error)
}

// RunResult holds the outcome of both sweeps
type RunResult struct {
	Subscriptions billingapp.SweepResult `json:"subscriptions"`
	Trials        billingapp.SweepResult `json:"trials"`
}

// ExpiryScheduler triggers the expiry sweeps on cron schedules
type ExpiryScheduler struct {
	cfg     config.SchedulerConfig
	sweeper Sweeper
	logger  *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewExpiryScheduler creates a new ExpiryScheduler
func NewExpiryScheduler(cfg config.SchedulerConfig, sweeper Sweeper, logger *zap.Logger) *ExpiryScheduler {
	if cfg.SubscriptionExpirySpec == "" {
		cfg.SubscriptionExpirySpec = "@hourly"
	}
	if cfg.TrialExpirySpec == "" {
		cfg.TrialExpirySpec = "@hourly"
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	return &ExpiryScheduler{
		cfg:     cfg,
		sweeper: sweeper,
		logger:  logger.With(zap.String("component", "expiry_scheduler")),
	}
}

// Start registers both sweeps and starts the cron loop.
// Overlapping runs of the same job are skipped.
func (s *ExpiryScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	cl := cronLogger{s.logger.Sugar()}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (billingapp.SweepResult, error)
	}{
		{JobSubscriptionExpiry, s.cfg.SubscriptionExpirySpec, s.sweeper.ExpireSubscriptions},
		{JobTrialExpiry, s.cfg.TrialExpirySpec, s.sweeper.ExpireTrials},
	}
	for _, job := range jobs {
		name, run := job.name, job.run
		if _, err := c.AddFunc(job.spec, func() { _, _ = s.runJob(context.Background(), name, run) }); err != nil {
			return fmt.Errorf("%w: %s spec %q: %v", ErrInvalidConfig, name, job.spec, err)
		}
		s.logger.Info("Scheduled expiry job", zap.String("job", name), zap.String("schedule", job.spec))
	}

	c.Start()
	s.cron = c
	s.running = true
	return nil
}

// Stop stops the cron loop. The returned context is done once running
// jobs have finished.
func (s *ExpiryScheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.running = false
	s.logger.Info("Stopping expiry scheduler")
	return s.cron.Stop()
}

// IsRunning reports whether the cron loop is active
func (s *ExpiryScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunOnce runs both sweeps immediately. A failing subscription sweep does
// not prevent the trial sweep.
func (s *ExpiryScheduler) RunOnce(ctx context.Context) (RunResult, error) {
	var result RunResult
	subs, subErr := s.runJob(ctx, JobSubscriptionExpiry, s.sweeper.ExpireSubscriptions)
	result.Subscriptions = subs
	trials, trialErr := s.runJob(ctx, JobTrialExpiry, s.sweeper.ExpireTrials)
	result.Trials = trials
	return result, errors.Join(subErr, trialErr)
}

func (s *ExpiryScheduler) runJob(
	ctx context.Context,
	name string,
	run func(context.Context) (billingapp.SweepResult, error),
) (billingapp.SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	runID := uuid.NewString()
	log := s.logger.With(zap.String("job", name), zap.String("run_id", runID))
	ctx = logger.WithContext(ctx, log)

	start := time.Now()
	result, err := run(ctx)
	if err != nil {
		log.Error("Expiry job failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return result, err
	}
	log.Debug("Expiry job finished",
		zap.Duration("duration", time.Since(start)),
		zap.Int("expired", result.Expired),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
