package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeSubscription = "Subscription"

// Event type constants
const (
	EventTypeSubscriptionCreated   = "SubscriptionCreated"
	EventTypeSubscriptionActivated = "SubscriptionActivated"
	EventTypeSubscriptionRenewed   = "SubscriptionRenewed"
	EventTypeSubscriptionCancelled = "SubscriptionCancelled"
	EventTypeSubscriptionExpired   = "SubscriptionExpired"
	EventTypeSubscriptionSuspended = "SubscriptionSuspended"
)

// SubscriptionCreatedEvent is published when a tenant picks a plan
type SubscriptionCreatedEvent struct {
	shared.BaseDomainEvent
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	Plan           Plan            `json:"plan"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       Currency        `json:"currency"`
}

// NewSubscriptionCreatedEvent creates a new SubscriptionCreatedEvent
func NewSubscriptionCreatedEvent(sub *Subscription) *SubscriptionCreatedEvent {
	return &SubscriptionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionCreated, AggregateTypeSubscription, sub.ID, sub.TenantID, sub.CreatedAt),
		SubscriptionID:  sub.ID,
		Plan:            sub.Plan,
		Amount:          sub.Amount,
		Currency:        sub.Currency,
	}
}

// SubscriptionActivatedEvent is published when a subscription's first paid period starts.
// It carries the charged amount so the invoice can bill it.
type SubscriptionActivatedEvent struct {
	shared.BaseDomainEvent
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	Plan           Plan            `json:"plan"`
	StartsAt       time.Time       `json:"starts_at"`
	EndsAt         time.Time       `json:"ends_at"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       Currency        `json:"currency"`
	PaymentID      *uuid.UUID      `json:"payment_id,omitempty"`
}

// NewSubscriptionActivatedEvent creates a new SubscriptionActivatedEvent
func NewSubscriptionActivatedEvent(sub *Subscription, charge Charge, now time.Time) *SubscriptionActivatedEvent {
	return &SubscriptionActivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionActivated, AggregateTypeSubscription, sub.ID, sub.TenantID, now),
		SubscriptionID:  sub.ID,
		Plan:            sub.Plan,
		StartsAt:        sub.StartsAt,
		EndsAt:          *sub.EndsAt,
		Amount:          charge.Amount,
		Currency:        charge.Currency,
		PaymentID:       paymentRef(charge),
	}
}

// SubscriptionRenewedEvent is published when an active subscription is extended by a new payment
type SubscriptionRenewedEvent struct {
	shared.BaseDomainEvent
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	Plan           Plan            `json:"plan"`
	PeriodStart    time.Time       `json:"period_start"`
	EndsAt         time.Time       `json:"ends_at"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       Currency        `json:"currency"`
	PaymentID      *uuid.UUID      `json:"payment_id,omitempty"`
}

// NewSubscriptionRenewedEvent creates a new SubscriptionRenewedEvent
func NewSubscriptionRenewedEvent(sub *Subscription, charge Charge, periodStart, now time.Time) *SubscriptionRenewedEvent {
	return &SubscriptionRenewedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionRenewed, AggregateTypeSubscription, sub.ID, sub.TenantID, now),
		SubscriptionID:  sub.ID,
		Plan:            sub.Plan,
		PeriodStart:     periodStart,
		EndsAt:          *sub.EndsAt,
		Amount:          charge.Amount,
		Currency:        charge.Currency,
		PaymentID:       paymentRef(charge),
	}
}

// SubscriptionCancelledEvent is published when a subscription is cancelled
type SubscriptionCancelledEvent struct {
	shared.BaseDomainEvent
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	Plan           Plan       `json:"plan"`
	EndsAt         *time.Time `json:"ends_at,omitempty"`
}

// NewSubscriptionCancelledEvent creates a new SubscriptionCancelledEvent
func NewSubscriptionCancelledEvent(sub *Subscription, now time.Time) *SubscriptionCancelledEvent {
	return &SubscriptionCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionCancelled, AggregateTypeSubscription, sub.ID, sub.TenantID, now),
		SubscriptionID:  sub.ID,
		Plan:            sub.Plan,
		EndsAt:          sub.EndsAt,
	}
}

// SubscriptionExpiredEvent is published when a paid period ends without renewal
type SubscriptionExpiredEvent struct {
	shared.BaseDomainEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Plan           Plan      `json:"plan"`
	EndedAt        time.Time `json:"ended_at"`
}

// NewSubscriptionExpiredEvent creates a new SubscriptionExpiredEvent
func NewSubscriptionExpiredEvent(sub *Subscription, now time.Time) *SubscriptionExpiredEvent {
	endedAt := now
	if sub.EndsAt != nil {
		endedAt = *sub.EndsAt
	}
	return &SubscriptionExpiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionExpired, AggregateTypeSubscription, sub.ID, sub.TenantID, now),
		SubscriptionID:  sub.ID,
		Plan:            sub.Plan,
		EndedAt:         endedAt,
	}
}

// SubscriptionSuspendedEvent is published when a subscription is paused
type SubscriptionSuspendedEvent struct {
	shared.BaseDomainEvent
	SubscriptionID uuid.UUID          `json:"subscription_id"`
	OldStatus      SubscriptionStatus `json:"old_status"`
}

// NewSubscriptionSuspendedEvent creates a new SubscriptionSuspendedEvent
func NewSubscriptionSuspendedEvent(sub *Subscription, old SubscriptionStatus, now time.Time) *SubscriptionSuspendedEvent {
	return &SubscriptionSuspendedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionSuspended, AggregateTypeSubscription, sub.ID, sub.TenantID, now),
		SubscriptionID:  sub.ID,
		OldStatus:       old,
	}
}

func paymentRef(charge Charge) *uuid.UUID {
	if charge.PaymentID == uuid.Nil {
		return nil
	}
	id := charge.PaymentID
	return &id
}
