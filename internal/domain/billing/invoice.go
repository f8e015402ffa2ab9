package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceType distinguishes what an invoice bills
type InvoiceType string

const (
	InvoiceTypeSubscription InvoiceType = "subscription"
	InvoiceTypeOneTime      InvoiceType = "one_time"
	InvoiceTypeRefund       InvoiceType = "refund"
)

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusPending   InvoiceStatus = "pending" // issued at the invoice provider
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// InvoiceItem is one billed line
type InvoiceItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// NewInvoiceItem creates a line whose amount is quantity × unit price
func NewInvoiceItem(description string, quantity int, unitPrice decimal.Decimal) (InvoiceItem, error) {
	if strings.TrimSpace(description) == "" {
		return InvoiceItem{}, shared.NewDomainError(shared.CodeInvalidInput, "Item description cannot be empty")
	}
	if quantity <= 0 {
		return InvoiceItem{}, shared.NewDomainError(shared.CodeInvalidInput, "Item quantity must be positive")
	}
	return InvoiceItem{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Amount:      RoundMoney(unitPrice.Mul(decimal.NewFromInt(int64(quantity)))),
	}, nil
}

// Invoice is the billing document for a paid period, a one-off charge or a refund
type Invoice struct {
	shared.TenantAggregateRoot
	SubscriptionID    *uuid.UUID
	PaymentID         *uuid.UUID
	InvoiceNumber     string
	Type              InvoiceType
	Status            InvoiceStatus
	Currency          Currency
	Items             []InvoiceItem
	Subtotal          decimal.Decimal
	TaxRate           decimal.Decimal
	Tax               decimal.Decimal
	Total             decimal.Decimal
	IssueDate         time.Time
	DueDate           *time.Time
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	SentAt            *time.Time
	PaidAt            *time.Time
	CancelledAt       *time.Time
	ProviderInvoiceID string
	DocumentKey       string
	SourceEventID     *uuid.UUID // event that caused the invoice; unique when set
}

// NewInvoiceParams holds the fields needed to draft an invoice
type NewInvoiceParams struct {
	TenantID       uuid.UUID
	SubscriptionID *uuid.UUID
	PaymentID      *uuid.UUID
	InvoiceNumber  string
	Type           InvoiceType
	Currency       Currency
	Items          []InvoiceItem
	TaxRate        decimal.Decimal
	IssueDate      time.Time
	DueDate        *time.Time
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	SourceEventID  *uuid.UUID
}

// NewInvoice drafts an invoice. Tax is the subtotal times the tax rate, rounded to cents.
func NewInvoice(p NewInvoiceParams, now time.Time) (*Invoice, []shared.DomainEvent, error) {
	if p.TenantID == uuid.Nil {
		return nil, nil, shared.NewDomainError(shared.CodeInvalidInput, "Tenant ID is required")
	}
	if strings.TrimSpace(p.InvoiceNumber) == "" {
		return nil, nil, shared.NewDomainError(shared.CodeInvalidInput, "Invoice number is required")
	}
	if len(p.Items) == 0 {
		return nil, nil, shared.NewDomainError(shared.CodeInvalidInput, "Invoice must have at least one item")
	}
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, nil, shared.NewDomainError(shared.CodeInvalidInput, "Tax rate must be in [0, 1)")
	}
	if p.Type == "" {
		p.Type = InvoiceTypeSubscription
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if p.IssueDate.IsZero() {
		p.IssueDate = now
	}

	subtotal := decimal.Zero
	for _, item := range p.Items {
		if item.Amount.IsNegative() && p.Type != InvoiceTypeRefund {
			return nil, nil, shared.NewDomainError(shared.CodeInvalidInput, "Only refund invoices may carry negative amounts")
		}
		subtotal = subtotal.Add(item.Amount)
	}
	tax := RoundMoney(subtotal.Mul(p.TaxRate))

	invoice := &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(p.TenantID, now),
		SubscriptionID:      p.SubscriptionID,
		PaymentID:           p.PaymentID,
		InvoiceNumber:       p.InvoiceNumber,
		Type:                p.Type,
		Status:              InvoiceStatusDraft,
		Currency:            p.Currency,
		Items:               append([]InvoiceItem(nil), p.Items...),
		Subtotal:            RoundMoney(subtotal),
		TaxRate:             p.TaxRate,
		Tax:                 tax,
		Total:               RoundMoney(subtotal).Add(tax),
		IssueDate:           p.IssueDate,
		DueDate:             p.DueDate,
		PeriodStart:         p.PeriodStart,
		PeriodEnd:           p.PeriodEnd,
		SourceEventID:       p.SourceEventID,
	}

	return invoice, []shared.DomainEvent{NewInvoiceCreatedEvent(invoice)}, nil
}

// MarkIssued records the id the invoice provider assigned and moves a draft to pending
func (i Invoice) MarkIssued(providerInvoiceID string, now time.Time) (Invoice, []shared.DomainEvent, error) {
	switch i.Status {
	case InvoiceStatusDraft:
	case InvoiceStatusPending:
		if i.ProviderInvoiceID == providerInvoiceID {
			return i, nil, nil
		}
		return i, nil, shared.NewDomainError(shared.CodeInvalidState, "Invoice was already issued under another provider id")
	default:
		return i, nil, shared.NewDomainError(shared.CodeInvalidState, "Cannot issue a "+string(i.Status)+" invoice")
	}
	if providerInvoiceID == "" {
		return i, nil, shared.NewDomainError(shared.CodeInvalidInput, "Provider invoice ID is required")
	}

	i.Status = InvoiceStatusPending
	i.ProviderInvoiceID = providerInvoiceID
	i.Touch(now)

	return i, []shared.DomainEvent{NewInvoiceStatusChangedEvent(&i, InvoiceStatusDraft, now)}, nil
}

// MarkSent records delivery to the tenant
func (i Invoice) MarkSent(now time.Time) (Invoice, []shared.DomainEvent, error) {
	switch i.Status {
	case InvoiceStatusSent:
		return i, nil, nil
	case InvoiceStatusDraft, InvoiceStatusPending:
	default:
		return i, nil, shared.NewDomainError(shared.CodeInvalidState, "Cannot send a "+string(i.Status)+" invoice")
	}

	old := i.Status
	i.Status = InvoiceStatusSent
	i.SentAt = &now
	i.Touch(now)

	return i, []shared.DomainEvent{NewInvoiceStatusChangedEvent(&i, old, now)}, nil
}

// MarkPaid settles the invoice
func (i Invoice) MarkPaid(now time.Time) (Invoice, []shared.DomainEvent, error) {
	switch i.Status {
	case InvoiceStatusPaid:
		return i, nil, nil
	case InvoiceStatusCancelled:
		return i, nil, shared.NewDomainError(shared.CodeInvalidState, "Cannot pay a cancelled invoice")
	}

	old := i.Status
	i.Status = InvoiceStatusPaid
	i.PaidAt = &now
	i.Touch(now)

	return i, []shared.DomainEvent{NewInvoiceStatusChangedEvent(&i, old, now)}, nil
}

// Cancel voids the invoice. A paid invoice cannot be cancelled.
func (i Invoice) Cancel(now time.Time) (Invoice, []shared.DomainEvent, error) {
	switch i.Status {
	case InvoiceStatusPaid:
		return i, nil, ErrInvoicePaid
	case InvoiceStatusCancelled:
		return i, nil, nil
	}

	old := i.Status
	i.Status = InvoiceStatusCancelled
	i.CancelledAt = &now
	i.Touch(now)

	return i, []shared.DomainEvent{NewInvoiceStatusChangedEvent(&i, old, now)}, nil
}

// AttachDocument records where the rendered invoice document is archived
func (i Invoice) AttachDocument(key string, now time.Time) Invoice {
	i.DocumentKey = key
	i.Touch(now)
	return i
}

// IsIssued reports whether the invoice exists at the invoice provider
func (i *Invoice) IsIssued() bool {
	return i.ProviderInvoiceID != ""
}
