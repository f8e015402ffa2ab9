package billing

import (
	"context"
	"errors"
	"time"

	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// MaxConflictRetries bounds the load-transition-save loop of a handler
const MaxConflictRetries = 3

// Clock returns the current time
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// retryOnConflict runs fn until it stops failing with a version conflict,
// at most attempts times. fn must reload the aggregate on every call.
func retryOnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.L(ctx).Debug("version conflict, retrying", zap.Int("attempt", i+1))
	}
	return err
}

// publishEvents hands committed events to the publisher. The write they
// describe is already stored, so the caller must return the error: the
// retried request or job finds the transition done and publishes again.
func publishEvents(ctx context.Context, publisher shared.Publisher, log *zap.Logger, events []shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := publisher.Publish(ctx, events...); err != nil {
		logger.Enrich(ctx, log).Error("failed to publish events",
			zap.String("first_event_type", events[0].EventType()),
			zap.Int("event_count", len(events)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// notify publishes events that no saga step consumes: created, cancelled,
// suspended and expired records, tenant status changes and invoice status
// changes. The stored row is the record of the change, so a failure only
// costs the notification and is logged.
func notify(ctx context.Context, publisher shared.Publisher, log *zap.Logger, events []shared.DomainEvent) {
	_ = publishEvents(ctx, publisher, log, events)
}
