package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeInvoice = "Invoice"

// Event type constants
const (
	EventTypeInvoiceCreated       = "InvoiceCreated"
	EventTypeInvoiceStatusChanged = "InvoiceStatusChanged"
)

// InvoiceCreatedEvent is published when an invoice is drafted
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	Type           InvoiceType     `json:"type"`
	SubscriptionID *uuid.UUID      `json:"subscription_id,omitempty"`
	PaymentID      *uuid.UUID      `json:"payment_id,omitempty"`
	Total          decimal.Decimal `json:"total"`
	Currency       Currency        `json:"currency"`
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, AggregateTypeInvoice, inv.ID, inv.TenantID, inv.CreatedAt),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		Type:            inv.Type,
		SubscriptionID:  inv.SubscriptionID,
		PaymentID:       inv.PaymentID,
		Total:           inv.Total,
		Currency:        inv.Currency,
	}
}

// InvoiceStatusChangedEvent is published on every invoice status transition
type InvoiceStatusChangedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID     `json:"invoice_id"`
	InvoiceNumber string        `json:"invoice_number"`
	OldStatus     InvoiceStatus `json:"old_status"`
	NewStatus     InvoiceStatus `json:"new_status"`
}

// NewInvoiceStatusChangedEvent creates a new InvoiceStatusChangedEvent
func NewInvoiceStatusChangedEvent(inv *Invoice, old InvoiceStatus, now time.Time) *InvoiceStatusChangedEvent {
	return &InvoiceStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceStatusChanged, AggregateTypeInvoice, inv.ID, inv.TenantID, now),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		OldStatus:       old,
		NewStatus:       inv.Status,
	}
}
