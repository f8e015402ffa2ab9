package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPaymentRepository implements billing.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment of the tenant
func (r *GormPaymentRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*billing.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindAll lists the tenant's payments
func (r *GormPaymentRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]billing.Payment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Scopes(tenantScope(tenantID), statusScope(filter))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.PaymentModel
	if err := query.Scopes(pageScope(filter, paymentSortColumns)).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	payments := make([]billing.Payment, len(rows))
	for i := range rows {
		payments[i] = *rows[i].ToDomain()
	}
	return payments, total, nil
}

// FindByPaymentIntentID finds a payment by its provider intent id.
// A miss is reported as billing.ErrPaymentNotFound.
func (r *GormPaymentRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*billing.Payment, error) {
	var model models.PaymentModel
	err := r.db.WithContext(ctx).Where("payment_intent_id = ?", paymentIntentID).First(&model).Error
	if err != nil {
		if err = translateError(err); errors.Is(err, shared.ErrNotFound) {
			return nil, billing.ErrPaymentNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a new payment
func (r *GormPaymentRepository) Create(ctx context.Context, payment *billing.Payment) error {
	return translateError(r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(payment)).Error)
}

// Update writes the payment if nobody changed it since it was loaded
func (r *GormPaymentRepository) Update(ctx context.Context, payment *billing.Payment) error {
	model := models.PaymentModelFromDomain(payment)
	model.Version = payment.Version + 1
	if err := casUpdate(ctx, r.db, model, payment.ID, payment.Version); err != nil {
		return err
	}
	payment.Version = model.Version
	return nil
}

// Delete soft-deletes a payment
func (r *GormPaymentRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return softDelete(ctx, r.db, &models.PaymentModel{}, tenantID, id)
}

// Exists checks if the payment exists for the tenant
func (r *GormPaymentRepository) Exists(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Ensure interface compliance
var _ billing.PaymentRepository = (*GormPaymentRepository)(nil)
