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

// GormInvoiceRepository implements billing.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice of the tenant
func (r *GormInvoiceRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindAll lists the tenant's invoices
func (r *GormInvoiceRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]billing.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Scopes(tenantScope(tenantID), statusScope(filter))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.InvoiceModel
	if err := query.Scopes(pageScope(filter, invoiceSortColumns)).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return invoicesToDomain(rows), total, nil
}

// FindByNumber finds an invoice by its number
func (r *GormInvoiceRepository) FindByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("invoice_number = ?", number).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindBySubscription lists invoices billed for a subscription, oldest period first
func (r *GormInvoiceRepository) FindBySubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) ([]billing.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("subscription_id = ?", subscriptionID).
		Order("issue_date ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(rows), nil
}

// ExistsBySourceEvent reports whether an invoice was already created for the event
func (r *GormInvoiceRepository) ExistsBySourceEvent(ctx context.Context, eventID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("source_event_id = ?", eventID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExistsForPeriod reports whether the subscription already has a live
// subscription invoice for the period starting at periodStart
func (r *GormInvoiceRepository) ExistsForPeriod(ctx context.Context, tenantID, subscriptionID uuid.UUID, periodStart time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Scopes(tenantScope(tenantID)).
		Where("subscription_id = ? AND type = ? AND period_start = ? AND status <> ?",
			subscriptionID, billing.InvoiceTypeSubscription, periodStart.UTC(), billing.InvoiceStatusCancelled).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExistsForPayment reports whether the payment already has a live invoice of invoiceType
func (r *GormInvoiceRepository) ExistsForPayment(ctx context.Context, tenantID, paymentID uuid.UUID, invoiceType billing.InvoiceType) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Scopes(tenantScope(tenantID)).
		Where("payment_id = ? AND type = ? AND status <> ?", paymentID, invoiceType, billing.InvoiceStatusCancelled).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a new invoice
func (r *GormInvoiceRepository) Create(ctx context.Context, invoice *billing.Invoice) error {
	return translateError(r.db.WithContext(ctx).Create(models.InvoiceModelFromDomain(invoice)).Error)
}

// Update writes the invoice if nobody changed it since it was loaded
func (r *GormInvoiceRepository) Update(ctx context.Context, invoice *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	model.Version = invoice.Version + 1
	if err := casUpdate(ctx, r.db, model, invoice.ID, invoice.Version); err != nil {
		return err
	}
	invoice.Version = model.Version
	return nil
}

// Delete soft-deletes an invoice
func (r *GormInvoiceRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return softDelete(ctx, r.db, &models.InvoiceModel{}, tenantID, id)
}

// Exists checks if the invoice exists for the tenant
func (r *GormInvoiceRepository) Exists(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func invoicesToDomain(rows []models.InvoiceModel) []billing.Invoice {
	invoices := make([]billing.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices
}

// Ensure interface compliance
var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
