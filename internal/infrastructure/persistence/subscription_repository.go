package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSubscriptionRepository implements billing.SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// FindByID finds a subscription of the tenant
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindAll lists the tenant's subscriptions
func (r *GormSubscriptionRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]billing.Subscription, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SubscriptionModel{}).
		Scopes(tenantScope(tenantID), statusScope(filter))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SubscriptionModel
	if err := query.Scopes(pageScope(filter, subscriptionSortColumns)).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return subscriptionsToDomain(rows), total, nil
}

// FindActiveByTenant returns the tenant's active subscription
func (r *GormSubscriptionRepository) FindActiveByTenant(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("status = ?", billing.SubscriptionStatusActive).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// HasActive reports whether the tenant has an active subscription
func (r *GormSubscriptionRepository) HasActive(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.SubscriptionModel{}).
		Scopes(tenantScope(tenantID)).
		Where("status = ?", billing.SubscriptionStatusActive).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindActiveEndedBefore finds active subscriptions whose period ended before the given time
func (r *GormSubscriptionRepository) FindActiveEndedBefore(ctx context.Context, before time.Time, limit int) ([]billing.Subscription, error) {
	var rows []models.SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND ends_at IS NOT NULL AND ends_at < ?", billing.SubscriptionStatusActive, before.UTC()).
		Order("ends_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return subscriptionsToDomain(rows), nil
}

// Create inserts a new subscription
func (r *GormSubscriptionRepository) Create(ctx context.Context, sub *billing.Subscription) error {
	return translateError(r.db.WithContext(ctx).Create(models.SubscriptionModelFromDomain(sub)).Error)
}

// Update writes the subscription if nobody changed it since it was loaded
func (r *GormSubscriptionRepository) Update(ctx context.Context, sub *billing.Subscription) error {
	model := models.SubscriptionModelFromDomain(sub)
	model.Version = sub.Version + 1
	if err := casUpdate(ctx, r.db, model, sub.ID, sub.Version); err != nil {
		return err
	}
	sub.Version = model.Version
	return nil
}

// Delete soft-deletes a subscription
func (r *GormSubscriptionRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return softDelete(ctx, r.db, &models.SubscriptionModel{}, tenantID, id)
}

// Exists checks if the subscription exists for the tenant
func (r *GormSubscriptionRepository) Exists(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.SubscriptionModel{}).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func subscriptionsToDomain(rows []models.SubscriptionModel) []billing.Subscription {
	subs := make([]billing.Subscription, len(rows))
	for i := range rows {
		subs[i] = *rows[i].ToDomain()
	}
	return subs
}

// Ensure interface compliance
var _ billing.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
