package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/identity"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultExpiryBatchSize is the page size of an expiry sweep
const DefaultExpiryBatchSize = 100

// Expiry kinds recorded in metrics
const (
	ExpiryKindSubscription = "subscription"
	ExpiryKindTrial        = "trial"
)

// SweepResult summarizes one expiry sweep
type SweepResult struct {
	Expired int `json:"expired"`
	// Skipped counts rows left for the next run after a version conflict
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	// Lapsed counts tenants moved to inactive
	Lapsed int `json:"lapsed"`
}

// ExpiryService ends lapsed subscriptions and trials
type ExpiryService struct {
	subRepo    billing.SubscriptionRepository
	tenantRepo identity.TenantRepository
	tenants    tenantLifecycle
	publisher  shared.Publisher
	batchSize  int
	metrics    *telemetry.BillingMetrics
	logger     *zap.Logger
	now        Clock
}

// NewExpiryService creates a new ExpiryService
func NewExpiryService(
	subRepo billing.SubscriptionRepository,
	tenantRepo identity.TenantRepository,
	publisher shared.Publisher,
	batchSize int,
	metrics *telemetry.BillingMetrics,
	logger *zap.Logger,
) *ExpiryService {
	if batchSize <= 0 {
		batchSize = DefaultExpiryBatchSize
	}
	return &ExpiryService{
		subRepo:    subRepo,
		tenantRepo: tenantRepo,
		tenants: tenantLifecycle{
			tenantRepo: tenantRepo,
			subRepo:    subRepo,
			publisher:  publisher,
			logger:     logger,
		},
		publisher: publisher,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger,
		now:       utcNow,
	}
}

// ExpireSubscriptions expires active subscriptions whose period ended and
// moves tenants left without an active subscription to inactive.
func (s *ExpiryService) ExpireSubscriptions(ctx context.Context) (SweepResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.expire_subscriptions")
	defer span.End()

	now := s.now()
	var result SweepResult
	for {
		subs, err := s.subRepo.FindActiveEndedBefore(ctx, now, s.batchSize)
		if err != nil {
			telemetry.RecordError(span, err)
			return result, fmt.Errorf("failed to find ended subscriptions: %w", err)
		}

		progressed := false
		for i := range subs {
			sub := &subs[i]
			switch err := s.expireSubscription(ctx, sub, &result); {
			case err == nil:
				result.Expired++
				progressed = true
			case errors.Is(err, shared.ErrConcurrencyConflict):
				result.Skipped++
			default:
				result.Failed++
				logger.Enrich(ctx, s.logger).Error("failed to expire subscription",
					zap.String("subscription_id", sub.ID.String()),
					zap.String("tenant_id", sub.TenantID.String()),
					zap.Error(err),
				)
			}
		}

		// Rows that were skipped or failed stay in the result set; stop
		// instead of fetching them again.
		if len(subs) < s.batchSize || !progressed || ctx.Err() != nil {
			break
		}
	}

	if err := s.lapseUncoveredTenants(ctx, now, &result); err != nil {
		telemetry.RecordError(span, err)
		return result, err
	}

	s.metrics.Expired(ctx, ExpiryKindSubscription, result.Expired)
	if result.Expired > 0 || result.Failed > 0 || result.Lapsed > 0 {
		logger.Enrich(ctx, s.logger).Info("subscription expiry sweep finished",
			zap.Int("expired", result.Expired),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
			zap.Int("lapsed", result.Lapsed),
		)
	}
	return result, nil
}

func (s *ExpiryService) expireSubscription(ctx context.Context, sub *billing.Subscription, result *SweepResult) error {
	now := s.now()
	next, events, err := sub.Expire(now)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	if err := s.subRepo.Update(ctx, &next); err != nil {
		return err
	}
	notify(ctx, s.publisher, s.logger, events)
	s.metrics.SubscriptionTransition(ctx, string(next.Status))

	s.lapseTenant(ctx, sub.TenantID, now, result)
	return nil
}

// lapseUncoveredTenants moves active tenants whose paid period ended and
// who hold no active subscription to inactive. It picks up tenants whose
// subscription expired in an earlier run while the tenant write failed.
func (s *ExpiryService) lapseUncoveredTenants(ctx context.Context, now time.Time, result *SweepResult) error {
	for {
		tenants, err := s.tenantRepo.FindLapsedBefore(ctx, now, s.batchSize)
		if err != nil {
			return fmt.Errorf("failed to find lapsed tenants: %w", err)
		}

		progressed := false
		for i := range tenants {
			if s.lapseTenant(ctx, tenants[i].ID, now, result) {
				progressed = true
			}
		}

		if len(tenants) < s.batchSize || !progressed || ctx.Err() != nil {
			return nil
		}
	}
}

// lapseTenant counts the outcome in result. A failed tenant stays active
// and is found again by lapseUncoveredTenants.
func (s *ExpiryService) lapseTenant(ctx context.Context, tenantID uuid.UUID, now time.Time, result *SweepResult) bool {
	lapsed, err := s.tenants.lapse(ctx, tenantID, now)
	switch {
	case err == nil:
		if lapsed {
			result.Lapsed++
		}
		return lapsed
	case errors.Is(err, shared.ErrConcurrencyConflict):
		result.Skipped++
	default:
		result.Failed++
		logger.Enrich(ctx, s.logger).Error("failed to lapse tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	}
	return false
}

// ExpireTrials ends trials whose window has closed
func (s *ExpiryService) ExpireTrials(ctx context.Context) (SweepResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.expire_trials")
	defer span.End()

	now := s.now()
	var result SweepResult
	for {
		tenants, err := s.tenantRepo.FindTrialsEndedBefore(ctx, now, s.batchSize)
		if err != nil {
			telemetry.RecordError(span, err)
			return result, fmt.Errorf("failed to find ended trials: %w", err)
		}

		progressed := false
		for i := range tenants {
			tenant := &tenants[i]
			switch err := s.expireTrial(ctx, tenant); {
			case err == nil:
				result.Expired++
				progressed = true
			case errors.Is(err, shared.ErrConcurrencyConflict):
				result.Skipped++
			default:
				result.Failed++
				logger.Enrich(ctx, s.logger).Error("failed to expire trial",
					zap.String("tenant_id", tenant.ID.String()),
					zap.Error(err),
				)
			}
		}

		if len(tenants) < s.batchSize || !progressed || ctx.Err() != nil {
			break
		}
	}

	s.metrics.Expired(ctx, ExpiryKindTrial, result.Expired)
	if result.Expired > 0 || result.Failed > 0 {
		logger.Enrich(ctx, s.logger).Info("trial expiry sweep finished",
			zap.Int("expired", result.Expired),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (s *ExpiryService) expireTrial(ctx context.Context, tenant *identity.Tenant) error {
	next, events, err := tenant.ExpireTrial(s.now())
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	if err := s.tenantRepo.Update(ctx, &next); err != nil {
		return err
	}
	notify(ctx, s.publisher, s.logger, events)
	return nil
}
