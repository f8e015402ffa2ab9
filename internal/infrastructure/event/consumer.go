package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/queue"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ConsumerConfig holds consumer settings
type ConsumerConfig struct {
	Queue          string
	Concurrency    int
	ReserveTimeout time.Duration
	Retry          shared.RetryPolicy
	// ErrorBackoff is how long a worker waits after the broker itself failed
	ErrorBackoff time.Duration
}

// DefaultConsumerConfig returns the default consumer configuration
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Queue:          queue.DefaultQueue,
		Concurrency:    4,
		ReserveTimeout: 5 * time.Second,
		Retry:          shared.DefaultRetryPolicy(),
		ErrorBackoff:   time.Second,
	}
}

// Consumer reserves jobs from the broker, decodes the event and dispatches
// it to the registered handlers. Failed jobs are retried with backoff until
// the retry policy is exhausted, then dead-lettered.
type Consumer struct {
	broker      queue.Broker
	serializer  *EventSerializer
	dispatcher  *Dispatcher
	deadLetters shared.DeadLetterRepository
	config      ConsumerConfig
	logger      *zap.Logger
	metrics     *telemetry.BillingMetrics
	now         func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer. deadLetters may be nil, in which case
// dead jobs only live on the broker's dead queue.
func NewConsumer(
	broker queue.Broker,
	serializer *EventSerializer,
	dispatcher *Dispatcher,
	deadLetters shared.DeadLetterRepository,
	config ConsumerConfig,
	logger *zap.Logger,
	metrics *telemetry.BillingMetrics,
) *Consumer {
	defaults := DefaultConsumerConfig()
	if config.Queue == "" {
		config.Queue = defaults.Queue
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.ReserveTimeout <= 0 {
		config.ReserveTimeout = defaults.ReserveTimeout
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = defaults.Retry
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = defaults.ErrorBackoff
	}
	return &Consumer{
		broker:      broker,
		serializer:  serializer,
		dispatcher:  dispatcher,
		deadLetters: deadLetters,
		config:      config,
		logger:      logger.With(zap.String("queue", config.Queue)),
		metrics:     metrics,
		now:         time.Now,
	}
}

// Start launches the workers
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for i := range c.config.Concurrency {
		c.wg.Add(1)
		go c.workLoop(ctx, i)
	}

	c.logger.Info("event consumer started",
		zap.Int("concurrency", c.config.Concurrency),
		zap.Int("max_attempts", c.config.Retry.MaxAttempts),
	)
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to settle
func (c *Consumer) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("event consumer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) workLoop(ctx context.Context, worker int) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker", worker))

	for ctx.Err() == nil {
		_, err := c.ProcessOne(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, queue.ErrClosed) {
			log.Info("broker closed, worker exiting")
			return
		}
		if ctx.Err() != nil {
			return
		}
		log.Error("broker error", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.config.ErrorBackoff):
		}
	}
}

// ProcessOne reserves and settles at most one job. It reports whether a job
// was reserved; the error is a broker failure, never a handler failure.
func (c *Consumer) ProcessOne(ctx context.Context) (bool, error) {
	d, err := c.broker.Reserve(ctx, c.config.Queue, c.config.ReserveTimeout)
	if err != nil {
		return false, err
	}
	if d == nil {
		return false, nil
	}
	// A job that was taken is settled even when shutdown begins mid-handle.
	return true, c.process(context.WithoutCancel(ctx), d)
}

func (c *Consumer) process(ctx context.Context, d *queue.Delivery) error {
	job := d.Job
	ctx = telemetry.ExtractCarrier(ctx, job.Trace)
	ctx, span := telemetry.StartConsumerSpan(ctx, "billing.consume "+job.EventType,
		telemetry.AttrQueue.String(c.config.Queue),
		telemetry.AttrEventID.String(job.EventID.String()),
		telemetry.AttrEventType.String(job.EventType),
		telemetry.AttrTenantID.String(job.TenantID.String()),
	)
	defer span.End()

	ctx = logger.WithEvent(ctx, job.EventID.String(), job.EventType)
	ctx = logger.WithTenantID(ctx, job.TenantID.String())
	log := logger.Enrich(ctx, c.logger).With(zap.String("job_id", job.ID), zap.Int("attempts", job.Attempts))

	started := c.now()

	event, err := c.serializer.Open(job)
	if err != nil {
		// Undecodable jobs never succeed on retry.
		telemetry.RecordError(span, err)
		log.Error("failed to decode event", zap.Error(err))
		job.Attempts++
		job.LastError = err.Error()
		return c.deadLetter(ctx, d, log, started)
	}

	handleErr := c.dispatcher.Dispatch(ctx, event)
	if handleErr == nil {
		c.metrics.EventHandled(ctx, job.EventType, telemetry.OutcomeSuccess, c.now().Sub(started))
		return c.broker.Ack(ctx, d)
	}

	telemetry.RecordError(span, handleErr)
	job.Attempts++
	job.LastError = handleErr.Error()

	if !retryable(handleErr) || c.config.Retry.Exhausted(job.Attempts) {
		log.Warn("event handling failed permanently", zap.Error(handleErr))
		return c.deadLetter(ctx, d, log, started)
	}

	delay := c.config.Retry.Backoff(job.Attempts)
	log.Warn("event handling failed, retrying", zap.Duration("delay", delay), zap.Error(handleErr))
	c.metrics.EventHandled(ctx, job.EventType, telemetry.OutcomeRetry, c.now().Sub(started))
	return c.broker.Retry(ctx, d, delay)
}

func (c *Consumer) deadLetter(ctx context.Context, d *queue.Delivery, log *zap.Logger, started time.Time) error {
	job := d.Job
	if err := c.broker.DeadLetter(ctx, d); err != nil {
		return err
	}
	c.metrics.EventHandled(ctx, job.EventType, telemetry.OutcomeDeadLetter, c.now().Sub(started))

	if c.deadLetters == nil {
		return nil
	}
	payload, err := job.Marshal()
	if err != nil {
		log.Error("failed to encode dead letter", zap.Error(err))
		return nil
	}
	now := c.now().UTC()
	letter := &shared.DeadLetter{
		ID:        uuid.New(),
		JobID:     job.ID,
		Queue:     c.config.Queue,
		EventID:   job.EventID,
		EventType: job.EventType,
		TenantID:  job.TenantID,
		Payload:   payload,
		Attempts:  job.Attempts,
		LastError: job.LastError,
		Status:    shared.DeadLetterStatusDead,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.deadLetters.Save(ctx, letter); err != nil {
		// The job is already on the broker's dead queue.
		log.Error("failed to record dead letter", zap.Error(err))
		return nil
	}
	log.Warn("event moved to dead letter", zap.String("dead_letter_id", letter.ID.String()))
	return nil
}

// retryable reports whether any of the joined handler errors may succeed on retry
func retryable(err error) bool {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if retryable(e) {
				return true
			}
		}
		return false
	}
	return shared.IsRetryable(err)
}
