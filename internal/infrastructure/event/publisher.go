package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/queue"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Publisher names, as configured by events.publisher
const (
	PublisherInProcess = "inprocess"
	PublisherQueue     = "queue"
)

// InProcessPublisher dispatches events synchronously in the caller's
// goroutine. Handler failures are logged and never fail Publish.
type InProcessPublisher struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
	metrics    *telemetry.BillingMetrics
}

// NewInProcessPublisher creates an in-process publisher
func NewInProcessPublisher(dispatcher *Dispatcher, logger *zap.Logger, metrics *telemetry.BillingMetrics) *InProcessPublisher {
	return &InProcessPublisher{dispatcher: dispatcher, logger: logger, metrics: metrics}
}

// Publish dispatches each event in order
func (p *InProcessPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, event := range events {
		p.metrics.EventPublished(ctx, event.EventType(), PublisherInProcess)

		ctx := logger.WithEvent(ctx, event.EventID().String(), event.EventType())
		started := time.Now()
		outcome := telemetry.OutcomeSuccess
		if err := p.dispatcher.Dispatch(ctx, event); err != nil {
			outcome = telemetry.OutcomeRetry
			logger.Enrich(ctx, p.logger).Warn("in-process handlers failed, event not redelivered", zap.Error(err))
		}
		p.metrics.EventHandled(ctx, event.EventType(), outcome, time.Since(started))
	}
	return nil
}

// QueuePublisher serializes events into job envelopes and enqueues them on
// the durable broker. Handlers run later in a Consumer.
type QueuePublisher struct {
	broker     queue.Broker
	serializer *EventSerializer
	queueName  string
	logger     *zap.Logger
	metrics    *telemetry.BillingMetrics
	now        func() time.Time
}

// NewQueuePublisher creates a queue publisher for queueName
func NewQueuePublisher(broker queue.Broker, serializer *EventSerializer, queueName string, logger *zap.Logger, metrics *telemetry.BillingMetrics) *QueuePublisher {
	if queueName == "" {
		queueName = queue.DefaultQueue
	}
	return &QueuePublisher{
		broker:     broker,
		serializer: serializer,
		queueName:  queueName,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Publish enqueues every event, returning the joined enqueue failures
func (p *QueuePublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, event := range events {
		job, err := p.serializer.Envelope(event, p.queueName)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		job.ID = uuid.NewString()
		job.EnqueuedAt = p.now().UTC()
		job.Trace = telemetry.InjectCarrier(ctx)

		if err := p.broker.Enqueue(ctx, job); err != nil {
			logger.Enrich(ctx, p.logger).Error("failed to enqueue event",
				zap.String("event_id", event.EventID().String()),
				zap.String("event_type", event.EventType()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("enqueue %s %s: %w", event.EventType(), event.EventID(), err))
			continue
		}
		p.metrics.EventPublished(ctx, event.EventType(), PublisherQueue)
	}
	return errors.Join(errs...)
}

var (
	_ shared.Publisher = (*InProcessPublisher)(nil)
	_ shared.Publisher = (*QueuePublisher)(nil)
)
