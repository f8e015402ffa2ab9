package billing

import (
	"context"
	"fmt"

	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/identity"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PaymentCompletedHandler handles PaymentCompletedEvent
// and activates or renews the subscription the payment was for
type PaymentCompletedHandler struct {
	subRepo   billing.SubscriptionRepository
	tenants   tenantLifecycle
	publisher shared.Publisher
	metrics   *telemetry.BillingMetrics
	logger    *zap.Logger
	now       Clock
}

// NewPaymentCompletedHandler creates a new handler for payment completed events
func NewPaymentCompletedHandler(
	subRepo billing.SubscriptionRepository,
	tenantRepo identity.TenantRepository,
	publisher shared.Publisher,
	metrics *telemetry.BillingMetrics,
	logger *zap.Logger,
) *PaymentCompletedHandler {
	return &PaymentCompletedHandler{
		subRepo: subRepo,
		tenants: tenantLifecycle{
			tenantRepo: tenantRepo,
			subRepo:    subRepo,
			publisher:  publisher,
			logger:     logger,
		},
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       utcNow,
	}
}

// Name identifies the handler in idempotency keys
func (h *PaymentCompletedHandler) Name() string {
	return "payment_completed_activation"
}

// EventTypes returns the event types this handler is interested in
func (h *PaymentCompletedHandler) EventTypes() []string {
	return []string{billing.EventTypePaymentCompleted}
}

// Handle activates the paid subscription. A subscription that is already
// active is renewed by a new payment. A redelivery of the payment that paid
// the current period writes nothing and publishes that period's event again.
// Publish failures are returned so the job is retried.
func (h *PaymentCompletedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	completed, ok := event.(*billing.PaymentCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			billing.EventTypePaymentCompleted, event.EventType())
	}
	log := logger.Enrich(ctx, h.logger).With(zap.String("payment_id", completed.PaymentID.String()))

	if completed.SubscriptionID == nil {
		log.Debug("payment is not linked to a subscription, nothing to activate")
		return nil
	}
	tenantID := completed.TenantID()
	subscriptionID := *completed.SubscriptionID
	log = log.With(zap.String("subscription_id", subscriptionID.String()))

	now := h.now()
	var current *billing.Subscription
	err := retryOnConflict(ctx, MaxConflictRetries, func(ctx context.Context) error {
		sub, err := h.subRepo.FindByID(ctx, tenantID, subscriptionID)
		if err != nil {
			return fmt.Errorf("failed to load subscription: %w", err)
		}

		var next billing.Subscription
		var events []shared.DomainEvent
		if sub.IsActive() {
			next, events, err = sub.Renew(completed.Charge(), now)
		} else {
			next, events, err = sub.Activate(sub.Plan.PeriodEnd(now), chargePtr(completed.Charge()), now)
		}
		if err != nil {
			return err
		}
		if len(events) == 0 {
			// An earlier delivery stored the transition but may have failed
			// to publish it. The invoice handler skips periods already billed.
			current = sub
			charge := completed.Charge()
			if again := sub.PeriodStartedEvent(&charge, now); again != nil {
				log.Info("subscription already paid by this payment, announcing period again")
				return publishEvents(ctx, h.publisher, h.logger, []shared.DomainEvent{again})
			}
			return nil
		}

		if err := h.subRepo.Update(ctx, &next); err != nil {
			return err
		}
		current = &next
		h.metrics.SubscriptionTransition(ctx, string(next.Status))
		if err := publishEvents(ctx, h.publisher, h.logger, events); err != nil {
			return fmt.Errorf("failed to publish %s: %w", events[0].EventType(), err)
		}
		log.Info("subscription paid",
			zap.String("event", events[0].EventType()),
			zap.Timep("ends_at", next.EndsAt),
		)
		return nil
	})
	if err != nil {
		log.Error("failed to apply payment to subscription", zap.Error(err))
		return err
	}

	// Runs on duplicates too so a delivery that failed after the subscription
	// write still brings the tenant in line.
	if current.EndsAt != nil {
		if err := h.tenants.activate(ctx, tenantID, *current.EndsAt, now); err != nil {
			log.Error("failed to activate tenant", zap.Error(err))
			return fmt.Errorf("failed to activate tenant: %w", err)
		}
	}
	return nil
}

func chargePtr(c billing.Charge) *billing.Charge {
	return &c
}

var _ shared.EventHandler = (*PaymentCompletedHandler)(nil)
