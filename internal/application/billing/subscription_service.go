package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/identity"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubscriptionService handles the subscription lifecycle use cases
type SubscriptionService struct {
	subRepo         billing.SubscriptionRepository
	tenantRepo      identity.TenantRepository
	publisher       shared.Publisher
	tenants         tenantLifecycle
	defaultCurrency billing.Currency
	metrics         *telemetry.BillingMetrics
	logger          *zap.Logger
	now             Clock
}

// SubscriptionServiceConfig contains configuration for SubscriptionService
type SubscriptionServiceConfig struct {
	SubscriptionRepo billing.SubscriptionRepository
	TenantRepo       identity.TenantRepository
	Publisher        shared.Publisher
	DefaultCurrency  billing.Currency
	Metrics          *telemetry.BillingMetrics
	Logger           *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(cfg SubscriptionServiceConfig) *SubscriptionService {
	currency := cfg.DefaultCurrency
	if currency == "" {
		currency = billing.DefaultCurrency
	}
	return &SubscriptionService{
		subRepo:    cfg.SubscriptionRepo,
		tenantRepo: cfg.TenantRepo,
		publisher:  cfg.Publisher,
		tenants: tenantLifecycle{
			tenantRepo: cfg.TenantRepo,
			subRepo:    cfg.SubscriptionRepo,
			publisher:  cfg.Publisher,
			logger:     cfg.Logger,
		},
		defaultCurrency: currency,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		now:             utcNow,
	}
}

// CreateSubscriptionInput contains input for creating a subscription
type CreateSubscriptionInput struct {
	TenantID uuid.UUID       `json:"-"`
	Plan     string          `json:"plan"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CreateSubscription opens a trial subscription for the tenant.
// A tenant may hold at most one active subscription.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*SubscriptionDTO, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.create_subscription", telemetry.AttrTenantID.String(input.TenantID.String()))
	defer span.End()

	plan, err := billing.ParsePlan(input.Plan)
	if err != nil {
		return nil, err
	}
	currency := s.defaultCurrency
	if input.Currency != "" {
		if currency, err = billing.ParseCurrency(input.Currency); err != nil {
			return nil, err
		}
	}

	if _, err := s.tenantRepo.FindByID(ctx, input.TenantID); err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	active, err := s.subRepo.HasActive(ctx, input.TenantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to check active subscription: %w", err)
	}
	if active {
		return nil, billing.ErrActiveSubscriptionExists
	}

	sub, events, err := billing.NewSubscription(input.TenantID, plan, input.Amount, currency, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.subRepo.Create(ctx, sub); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	notify(ctx, s.publisher, s.logger, events)
	s.metrics.SubscriptionTransition(ctx, string(sub.Status))

	logger.Enrich(ctx, s.logger).Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("plan", string(sub.Plan)),
	)

	dto := ToSubscriptionDTO(sub)
	return &dto, nil
}

// ActivateSubscriptionInput contains input for a manual activation
type ActivateSubscriptionInput struct {
	TenantID       uuid.UUID `json:"-"`
	SubscriptionID uuid.UUID `json:"-"`
	EndsAt         time.Time `json:"ends_at"`
}

// ActivateSubscription activates a subscription without a payment.
// Activating an active subscription changes nothing and publishes the
// current period's event again, so a request whose publish failed can be
// retried; the invoice handler bills each period once.
func (s *SubscriptionService) ActivateSubscription(ctx context.Context, input ActivateSubscriptionInput) (*SubscriptionDTO, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.activate_subscription", telemetry.AttrTenantID.String(input.TenantID.String()))
	defer span.End()

	now := s.now()
	var result *billing.Subscription
	err := retryOnConflict(ctx, MaxConflictRetries, func(ctx context.Context) error {
		sub, err := s.subRepo.FindByID(ctx, input.TenantID, input.SubscriptionID)
		if err != nil {
			return err
		}
		next, events, err := sub.Activate(input.EndsAt, nil, now)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			result = sub
			if again := sub.PeriodStartedEvent(nil, now); again != nil {
				return publishEvents(ctx, s.publisher, s.logger, []shared.DomainEvent{again})
			}
			return nil
		}
		if err := s.ensureNoOtherActive(ctx, sub); err != nil {
			return err
		}
		if err := s.subRepo.Update(ctx, &next); err != nil {
			return err
		}
		result = &next
		s.metrics.SubscriptionTransition(ctx, string(next.Status))
		return publishEvents(ctx, s.publisher, s.logger, events)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if result.EndsAt != nil {
		if err := s.tenants.activate(ctx, result.TenantID, *result.EndsAt, now); err != nil {
			logger.Enrich(ctx, s.logger).Warn("failed to activate tenant",
				zap.String("tenant_id", result.TenantID.String()),
				zap.Error(err),
			)
		}
	}

	dto := ToSubscriptionDTO(result)
	return &dto, nil
}

// ensureNoOtherActive rejects activating sub while another subscription of the tenant is active
func (s *SubscriptionService) ensureNoOtherActive(ctx context.Context, sub *billing.Subscription) error {
	active, err := s.subRepo.FindActiveByTenant(ctx, sub.TenantID)
	switch {
	case err == nil && active.ID != sub.ID:
		return billing.ErrActiveSubscriptionExists
	case err == nil, shared.ErrorCode(err) == shared.CodeNotFound:
		return nil
	default:
		return fmt.Errorf("failed to check active subscription: %w", err)
	}
}

// CancelSubscription cancels a subscription. Cancelling twice is a no-op.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) (*SubscriptionDTO, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.cancel_subscription", telemetry.AttrTenantID.String(tenantID.String()))
	defer span.End()

	now := s.now()
	var result *billing.Subscription
	cancelled := false
	err := retryOnConflict(ctx, MaxConflictRetries, func(ctx context.Context) error {
		sub, err := s.subRepo.FindByID(ctx, tenantID, subscriptionID)
		if err != nil {
			return err
		}
		next, events := sub.Cancel(now)
		if len(events) == 0 {
			result = sub
			return nil
		}
		if err := s.subRepo.Update(ctx, &next); err != nil {
			return err
		}
		result = &next
		cancelled = true
		notify(ctx, s.publisher, s.logger, events)
		s.metrics.SubscriptionTransition(ctx, string(next.Status))
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if cancelled {
		if _, err := s.tenants.lapse(ctx, tenantID, now); err != nil {
			logger.Enrich(ctx, s.logger).Warn("failed to update tenant after cancellation",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
		}
	}

	dto := ToSubscriptionDTO(result)
	return &dto, nil
}

// SuspendSubscription pauses a trial or active subscription
func (s *SubscriptionService) SuspendSubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) (*SubscriptionDTO, error) {
	now := s.now()
	var result *billing.Subscription
	err := retryOnConflict(ctx, MaxConflictRetries, func(ctx context.Context) error {
		sub, err := s.subRepo.FindByID(ctx, tenantID, subscriptionID)
		if err != nil {
			return err
		}
		next, events, err := sub.Suspend(now)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			result = sub
			return nil
		}
		if err := s.subRepo.Update(ctx, &next); err != nil {
			return err
		}
		result = &next
		notify(ctx, s.publisher, s.logger, events)
		s.metrics.SubscriptionTransition(ctx, string(next.Status))
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := ToSubscriptionDTO(result)
	return &dto, nil
}

// GetSubscription returns a subscription of the tenant
func (s *SubscriptionService) GetSubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) (*SubscriptionDTO, error) {
	sub, err := s.subRepo.FindByID(ctx, tenantID, subscriptionID)
	if err != nil {
		return nil, err
	}
	dto := ToSubscriptionDTO(sub)
	return &dto, nil
}

// ListSubscriptions returns a page of the tenant's subscriptions
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, tenantID uuid.UUID, filter ListFilter) (shared.Paginated[SubscriptionDTO], error) {
	f := filter.ToSharedFilter()
	subs, total, err := s.subRepo.FindAll(ctx, tenantID, f)
	if err != nil {
		return shared.Paginated[SubscriptionDTO]{}, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	items := make([]SubscriptionDTO, len(subs))
	for i := range subs {
		items[i] = ToSubscriptionDTO(&subs[i])
	}
	return shared.NewPaginated(items, total, f.Page, f.Limit()), nil
}
