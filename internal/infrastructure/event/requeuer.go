package event

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/queue"
	"go.uber.org/zap"
)

// JobRequeuer puts dead-lettered jobs back on their queue
type JobRequeuer struct {
	broker queue.Broker
	logger *zap.Logger
}

// NewJobRequeuer creates a JobRequeuer
func NewJobRequeuer(broker queue.Broker, logger *zap.Logger) *JobRequeuer {
	return &JobRequeuer{broker: broker, logger: logger}
}

// Requeue decodes the stored job and enqueues it with a fresh attempt count.
// The job keeps its event ID so idempotent handlers still recognise work that
// already succeeded.
func (r *JobRequeuer) Requeue(ctx context.Context, letter *shared.DeadLetter) error {
	job, err := queue.UnmarshalJob(letter.Payload)
	if err != nil {
		return shared.WrapDomainError(shared.CodeInvalidInput, "Dead letter payload is not a job", err)
	}
	if letter.Queue != "" {
		job.Queue = letter.Queue
	}
	if job.Queue == "" {
		job.Queue = queue.DefaultQueue
	}
	job.ID = uuid.NewString()
	job.Attempts = 0
	job.LastError = ""

	if err := r.broker.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	r.logger.Info("dead letter job requeued",
		zap.String("queue", job.Queue),
		zap.String("job_id", job.ID),
		zap.String("event_type", job.EventType),
	)
	return nil
}
