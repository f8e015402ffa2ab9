package billing

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// PaymentMethod is how the payer pays
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodPix          PaymentMethod = "pix"
	PaymentMethodBoleto       PaymentMethod = "boleto"
)

// Payment is one charge attempt, correlated with the provider by PaymentIntentID
type Payment struct {
	shared.TenantAggregateRoot
	SubscriptionID        *uuid.UUID
	Status                PaymentStatus
	Method                PaymentMethod
	Amount                decimal.Decimal
	Currency              Currency
	PaymentIntentID       string
	ProviderTransactionID string
	Provider              string
	Metadata              map[string]any
	FailureReason         string
	CompletedAt           *time.Time
	FailedAt              *time.Time
	RefundID              string
	RefundedAmount        decimal.Decimal
	RefundedAt            *time.Time
}

// NewPaymentParams holds the fields needed to open a payment
type NewPaymentParams struct {
	TenantID        uuid.UUID
	SubscriptionID  *uuid.UUID
	Provider        string
	PaymentIntentID string
	Method          PaymentMethod
	Amount          decimal.Decimal
	Currency        Currency
	Metadata        map[string]any
}

// NewPayment creates a pending payment for a provider payment intent
func NewPayment(p NewPaymentParams, now time.Time) (*Payment, []shared.DomainEvent, error) {
	if p.TenantID == uuid.Nil {
		return nil, nil, shared.NewDomainError(shared.CodeInvalidInput, "Tenant ID is required")
	}
	if strings.TrimSpace(p.PaymentIntentID) == "" {
		return nil, nil, shared.NewDomainError(shared.CodeInvalidInput, "Payment intent ID is required")
	}
	if err := validatePositiveAmount(p.Amount); err != nil {
		return nil, nil, err
	}
	if p.Currency == "" {
		return nil, nil, shared.NewDomainError(shared.CodeInvalidInput, "Currency is required")
	}
	if p.Method == "" {
		p.Method = PaymentMethodCard
	}

	payment := &Payment{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(p.TenantID, now),
		SubscriptionID:      p.SubscriptionID,
		Status:              PaymentStatusPending,
		Method:              p.Method,
		Amount:              RoundMoney(p.Amount),
		Currency:            p.Currency,
		PaymentIntentID:     p.PaymentIntentID,
		Provider:            p.Provider,
		Metadata:            cloneMetadata(p.Metadata),
		RefundedAmount:      decimal.Zero,
	}

	return payment, []shared.DomainEvent{NewPaymentCreatedEvent(payment)}, nil
}

// MarkProcessing records that the provider has started settling the payment
func (p Payment) MarkProcessing(now time.Time) (Payment, error) {
	switch p.Status {
	case PaymentStatusProcessing:
		return p, nil
	case PaymentStatusPending:
		p.Status = PaymentStatusProcessing
		p.Touch(now)
		return p, nil
	default:
		return p, shared.NewDomainError(shared.CodeInvalidState, "Cannot process a "+string(p.Status)+" payment")
	}
}

// Complete settles the payment. Completing a completed payment is a no-op and emits nothing.
func (p Payment) Complete(transactionID string, metadata map[string]any, now time.Time) (Payment, []shared.DomainEvent, error) {
	switch p.Status {
	case PaymentStatusCompleted:
		return p, nil, nil
	case PaymentStatusPending, PaymentStatusProcessing:
	default:
		return p, nil, shared.NewDomainError(shared.CodeInvalidState, "Cannot complete a "+string(p.Status)+" payment")
	}

	p.Status = PaymentStatusCompleted
	p.ProviderTransactionID = transactionID
	p.Metadata = mergeMetadata(p.Metadata, metadata)
	p.FailureReason = ""
	p.CompletedAt = &now
	p.Touch(now)

	return p, []shared.DomainEvent{NewPaymentCompletedEvent(&p, now)}, nil
}

// Fail records a declined charge. Failing a failed payment is a no-op and emits nothing.
func (p Payment) Fail(reason string, now time.Time) (Payment, []shared.DomainEvent, error) {
	switch p.Status {
	case PaymentStatusFailed:
		return p, nil, nil
	case PaymentStatusPending, PaymentStatusProcessing:
	default:
		return p, nil, shared.NewDomainError(shared.CodeInvalidState, "Cannot fail a "+string(p.Status)+" payment")
	}

	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.FailedAt = &now
	p.Touch(now)

	return p, []shared.DomainEvent{NewPaymentFailedEvent(&p, now)}, nil
}

// Cancel abandons a payment that never settled
func (p Payment) Cancel(now time.Time) (Payment, []shared.DomainEvent, error) {
	switch p.Status {
	case PaymentStatusCancelled:
		return p, nil, nil
	case PaymentStatusPending, PaymentStatusProcessing:
	default:
		return p, nil, shared.NewDomainError(shared.CodeInvalidState, "Cannot cancel a "+string(p.Status)+" payment")
	}

	p.Status = PaymentStatusCancelled
	p.Touch(now)

	return p, []shared.DomainEvent{NewPaymentCancelledEvent(&p, now)}, nil
}

// Refund returns money for a completed payment. amount must not exceed the payment amount.
func (p Payment) Refund(refundID string, amount decimal.Decimal, now time.Time) (Payment, []shared.DomainEvent, error) {
	if p.Status != PaymentStatusCompleted {
		return p, nil, ErrRefundNotAllowed
	}
	if err := validatePositiveAmount(amount); err != nil {
		return p, nil, err
	}
	if amount.GreaterThan(p.Amount) {
		return p, nil, shared.NewDomainError(shared.CodeInvalidInput, "Refund amount exceeds payment amount")
	}

	p.Status = PaymentStatusRefunded
	p.RefundID = refundID
	p.RefundedAmount = RoundMoney(amount)
	p.RefundedAt = &now
	p.Touch(now)

	return p, []shared.DomainEvent{NewPaymentRefundedEvent(&p, now)}, nil
}

// IsCompleted returns true if the payment settled
func (p *Payment) IsCompleted() bool {
	return p.Status == PaymentStatusCompleted
}

// IsTerminal returns true once the payment can no longer settle or fail
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return maps.Clone(m)
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	out := cloneMetadata(base)
	maps.Copy(out, extra)
	return out
}
