package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
)

// SubscriptionRepository defines the interface for subscription persistence.
// Every lookup is scoped to a tenant.
type SubscriptionRepository interface {
	// FindByID finds a subscription of the tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Subscription, error)

	// FindAll lists the tenant's subscriptions
	FindAll(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Subscription, int64, error)

	// FindActiveByTenant returns the tenant's active subscription
	FindActiveByTenant(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)

	// HasActive reports whether the tenant has an active subscription
	HasActive(ctx context.Context, tenantID uuid.UUID) (bool, error)

	// FindActiveEndedBefore finds active subscriptions, across tenants, whose period ended before the given time
	FindActiveEndedBefore(ctx context.Context, before time.Time, limit int) ([]Subscription, error)

	// Create inserts a new subscription
	Create(ctx context.Context, sub *Subscription) error

	// Update writes the subscription if its version is unchanged, then bumps sub.Version.
	// Returns shared.ErrConcurrencyConflict otherwise.
	Update(ctx context.Context, sub *Subscription) error

	// Delete soft-deletes a subscription
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	// Exists checks if the subscription exists for the tenant
	Exists(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
}

// PaymentRepository defines the interface for payment persistence
type PaymentRepository interface {
	// FindByID finds a payment of the tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)

	// FindAll lists the tenant's payments
	FindAll(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Payment, int64, error)

	// FindByPaymentIntentID finds a payment by its provider intent id.
	// Webhooks carry no tenant, so this lookup is global; intent ids are unique.
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Payment, error)

	// Create inserts a new payment
	Create(ctx context.Context, payment *Payment) error

	// Update writes the payment if its version is unchanged, then bumps payment.Version.
	Update(ctx context.Context, payment *Payment) error

	// Delete soft-deletes a payment
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	// Exists checks if the payment exists for the tenant
	Exists(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
}

// InvoiceRepository defines the interface for invoice persistence
type InvoiceRepository interface {
	// FindByID finds an invoice of the tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)

	// FindAll lists the tenant's invoices
	FindAll(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Invoice, int64, error)

	// FindByNumber finds an invoice by its unique number
	FindByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*Invoice, error)

	// FindBySubscription lists invoices billed for a subscription
	FindBySubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) ([]Invoice, error)

	// ExistsBySourceEvent reports whether an invoice was already created for the event
	ExistsBySourceEvent(ctx context.Context, eventID uuid.UUID) (bool, error)

	// ExistsForPeriod reports whether the subscription already has a subscription invoice for the period
	ExistsForPeriod(ctx context.Context, tenantID, subscriptionID uuid.UUID, periodStart time.Time) (bool, error)

	// ExistsForPayment reports whether the payment already has a live invoice of the given type
	ExistsForPayment(ctx context.Context, tenantID, paymentID uuid.UUID, invoiceType InvoiceType) (bool, error)

	// Create inserts a new invoice. A duplicate source event or number yields shared.ErrAlreadyExists.
	Create(ctx context.Context, invoice *Invoice) error

	// Update writes the invoice if its version is unchanged, then bumps invoice.Version.
	Update(ctx context.Context, invoice *Invoice) error

	// Delete soft-deletes an invoice
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	// Exists checks if the invoice exists for the tenant
	Exists(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
}

// InvoiceNumberGenerator issues unique invoice numbers
type InvoiceNumberGenerator interface {
	Next(issueDate time.Time) string
}
