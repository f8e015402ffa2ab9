package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/identity"
	"github.com/saas/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// tenantLifecycle keeps a tenant's status in step with its subscriptions
type tenantLifecycle struct {
	tenantRepo identity.TenantRepository
	subRepo    billing.SubscriptionRepository
	publisher  shared.Publisher
	logger     *zap.Logger
}

// activate marks the tenant paying until endsAt
func (l tenantLifecycle) activate(ctx context.Context, tenantID uuid.UUID, endsAt, now time.Time) error {
	return retryOnConflict(ctx, MaxConflictRetries, func(ctx context.Context) error {
		tenant, err := l.tenantRepo.FindByID(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to load tenant: %w", err)
		}
		next, events, err := tenant.Activate(endsAt, now)
		if err != nil {
			return err
		}
		if sameTenantState(tenant, &next) {
			return nil
		}
		if err := l.tenantRepo.Update(ctx, &next); err != nil {
			return err
		}
		notify(ctx, l.publisher, l.logger, events)
		return nil
	})
}

// lapse moves an active tenant to inactive unless another subscription
// still covers it. It reports whether the tenant changed.
func (l tenantLifecycle) lapse(ctx context.Context, tenantID uuid.UUID, now time.Time) (bool, error) {
	covered, err := l.subRepo.HasActive(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to check active subscriptions: %w", err)
	}
	if covered {
		return false, nil
	}

	lapsed := false
	err = retryOnConflict(ctx, MaxConflictRetries, func(ctx context.Context) error {
		tenant, err := l.tenantRepo.FindByID(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to load tenant: %w", err)
		}
		next, events := tenant.SubscriptionLapsed(now)
		if len(events) == 0 {
			return nil
		}
		if err := l.tenantRepo.Update(ctx, &next); err != nil {
			return err
		}
		lapsed = true
		notify(ctx, l.publisher, l.logger, events)
		return nil
	})
	return lapsed, err
}

func sameTenantState(before, after *identity.Tenant) bool {
	if before.Status != after.Status {
		return false
	}
	switch {
	case before.SubscriptionEndsAt == nil && after.SubscriptionEndsAt == nil:
		return true
	case before.SubscriptionEndsAt == nil || after.SubscriptionEndsAt == nil:
		return false
	default:
		return before.SubscriptionEndsAt.Equal(*after.SubscriptionEndsAt)
	}
}
