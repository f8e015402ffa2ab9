package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypePayment = "Payment"

// Event type constants
const (
	EventTypePaymentCreated   = "PaymentCreated"
	EventTypePaymentCompleted = "PaymentCompleted"
	EventTypePaymentFailed    = "PaymentFailed"
	EventTypePaymentCancelled = "PaymentCancelled"
	EventTypePaymentRefunded  = "PaymentRefunded"
)

// PaymentCreatedEvent is published when a payment intent is opened
type PaymentCreatedEvent struct {
	shared.BaseDomainEvent
	PaymentID       uuid.UUID       `json:"payment_id"`
	SubscriptionID  *uuid.UUID      `json:"subscription_id,omitempty"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Provider        string          `json:"provider"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        Currency        `json:"currency"`
}

// NewPaymentCreatedEvent creates a new PaymentCreatedEvent
func NewPaymentCreatedEvent(p *Payment) *PaymentCreatedEvent {
	return &PaymentCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentCreated, AggregateTypePayment, p.ID, p.TenantID, p.CreatedAt),
		PaymentID:       p.ID,
		SubscriptionID:  p.SubscriptionID,
		PaymentIntentID: p.PaymentIntentID,
		Provider:        p.Provider,
		Amount:          p.Amount,
		Currency:        p.Currency,
	}
}

// PaymentCompletedEvent is published when the provider confirms the charge.
// It starts the activation saga for the linked subscription.
type PaymentCompletedEvent struct {
	shared.BaseDomainEvent
	PaymentID             uuid.UUID       `json:"payment_id"`
	SubscriptionID        *uuid.UUID      `json:"subscription_id,omitempty"`
	PaymentIntentID       string          `json:"payment_intent_id"`
	ProviderTransactionID string          `json:"provider_transaction_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              Currency        `json:"currency"`
	CompletedAt           time.Time       `json:"completed_at"`
}

// NewPaymentCompletedEvent creates a new PaymentCompletedEvent
func NewPaymentCompletedEvent(p *Payment, now time.Time) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseDomainEvent:       shared.NewBaseDomainEvent(EventTypePaymentCompleted, AggregateTypePayment, p.ID, p.TenantID, now),
		PaymentID:             p.ID,
		SubscriptionID:        p.SubscriptionID,
		PaymentIntentID:       p.PaymentIntentID,
		ProviderTransactionID: p.ProviderTransactionID,
		Amount:                p.Amount,
		Currency:              p.Currency,
		CompletedAt:           now,
	}
}

// Charge returns the charge this payment represents
func (e *PaymentCompletedEvent) Charge() Charge {
	return Charge{PaymentID: e.PaymentID, Amount: e.Amount, Currency: e.Currency}
}

// PaymentFailedEvent is published when the provider declines the charge
type PaymentFailedEvent struct {
	shared.BaseDomainEvent
	PaymentID       uuid.UUID       `json:"payment_id"`
	SubscriptionID  *uuid.UUID      `json:"subscription_id,omitempty"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        Currency        `json:"currency"`
	Reason          string          `json:"reason"`
}

// NewPaymentFailedEvent creates a new PaymentFailedEvent
func NewPaymentFailedEvent(p *Payment, now time.Time) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentFailed, AggregateTypePayment, p.ID, p.TenantID, now),
		PaymentID:       p.ID,
		SubscriptionID:  p.SubscriptionID,
		PaymentIntentID: p.PaymentIntentID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Reason:          p.FailureReason,
	}
}

// PaymentCancelledEvent is published when an unsettled payment is abandoned
type PaymentCancelledEvent struct {
	shared.BaseDomainEvent
	PaymentID       uuid.UUID `json:"payment_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
}

// NewPaymentCancelledEvent creates a new PaymentCancelledEvent
func NewPaymentCancelledEvent(p *Payment, now time.Time) *PaymentCancelledEvent {
	return &PaymentCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentCancelled, AggregateTypePayment, p.ID, p.TenantID, now),
		PaymentID:       p.ID,
		PaymentIntentID: p.PaymentIntentID,
	}
}

// PaymentRefundedEvent is published when a completed payment is refunded
type PaymentRefundedEvent struct {
	shared.BaseDomainEvent
	PaymentID      uuid.UUID       `json:"payment_id"`
	SubscriptionID *uuid.UUID      `json:"subscription_id,omitempty"`
	RefundID       string          `json:"refund_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       Currency        `json:"currency"`
}

// NewPaymentRefundedEvent creates a new PaymentRefundedEvent
func NewPaymentRefundedEvent(p *Payment, now time.Time) *PaymentRefundedEvent {
	return &PaymentRefundedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRefunded, AggregateTypePayment, p.ID, p.TenantID, now),
		PaymentID:       p.ID,
		SubscriptionID:  p.SubscriptionID,
		RefundID:        p.RefundID,
		Amount:          p.RefundedAmount,
		Currency:        p.Currency,
	}
}
