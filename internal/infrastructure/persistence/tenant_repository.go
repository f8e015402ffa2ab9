package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/identity"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTenantRepository implements identity.TenantRepository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GormTenantRepository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// FindByID finds a tenant by its ID
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindBySubdomain finds a tenant by its unique subdomain
func (r *GormTenantRepository) FindBySubdomain(ctx context.Context, subdomain string) (*identity.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).
		Where("subdomain = ?", identity.NormalizeSubdomain(subdomain)).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindAll finds tenants matching the filter
func (r *GormTenantRepository) FindAll(ctx context.Context, filter shared.Filter) ([]identity.Tenant, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.TenantModel{}).Scopes(statusScope(filter))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.TenantModel
	if err := query.Scopes(pageScope(filter, tenantSortColumns)).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	tenants := make([]identity.Tenant, len(rows))
	for i := range rows {
		tenants[i] = *rows[i].ToDomain()
	}
	return tenants, total, nil
}

// FindLapsedBefore finds active tenants whose paid period ended before the given time
func (r *GormTenantRepository) FindLapsedBefore(ctx context.Context, before time.Time, limit int) ([]identity.Tenant, error) {
	var rows []models.TenantModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND subscription_ends_at < ?", identity.TenantStatusActive, before.UTC()).
		Order("subscription_ends_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	tenants := make([]identity.Tenant, len(rows))
	for i := range rows {
		tenants[i] = *rows[i].ToDomain()
	}
	return tenants, nil
}

// FindTrialsEndedBefore finds trial tenants whose trial window closed before the given time
func (r *GormTenantRepository) FindTrialsEndedBefore(ctx context.Context, before time.Time, limit int) ([]identity.Tenant, error) {
	var rows []models.TenantModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND trial_ends_at < ?", identity.TenantStatusTrial, before.UTC()).
		Order("trial_ends_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	tenants := make([]identity.Tenant, len(rows))
	for i := range rows {
		tenants[i] = *rows[i].ToDomain()
	}
	return tenants, nil
}

// Create inserts a new tenant
func (r *GormTenantRepository) Create(ctx context.Context, tenant *identity.Tenant) error {
	return translateError(r.db.WithContext(ctx).Create(models.TenantModelFromDomain(tenant)).Error)
}

// Update writes the tenant if nobody changed it since it was loaded
func (r *GormTenantRepository) Update(ctx context.Context, tenant *identity.Tenant) error {
	model := models.TenantModelFromDomain(tenant)
	model.Version = tenant.Version + 1
	if err := casUpdate(ctx, r.db, model, tenant.ID, tenant.Version); err != nil {
		return err
	}
	tenant.Version = model.Version
	return nil
}

// Delete soft-deletes a tenant
func (r *GormTenantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.TenantModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Exists checks if a tenant with the given ID exists
func (r *GormTenantRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, "id = ?", id)
}

// ExistsBySubdomain checks if a tenant with the given subdomain exists
func (r *GormTenantRepository) ExistsBySubdomain(ctx context.Context, subdomain string) (bool, error) {
	return r.exists(ctx, "subdomain = ?", identity.NormalizeSubdomain(subdomain))
}

// ExistsByEmail checks if a tenant with the given email exists
func (r *GormTenantRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email = ?", identity.NormalizeEmail(email))
}

func (r *GormTenantRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.TenantModel{}).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Ensure interface compliance
var _ identity.TenantRepository = (*GormTenantRepository)(nil)
