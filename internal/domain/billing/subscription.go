package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus represents the lifecycle status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
)

// Charge identifies the payment that pays for a subscription period
type Charge struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	Currency  Currency
}

// Subscription is a tenant's plan. At most one subscription per tenant is active.
type Subscription struct {
	shared.TenantAggregateRoot
	Plan            Plan
	Status          SubscriptionStatus
	StartsAt        time.Time
	EndsAt          *time.Time // nil until activated
	PeriodStart     *time.Time // start of the paid period EndsAt closes
	AutoRenew       bool
	Amount          decimal.Decimal
	Currency        Currency
	PaymentIntentID string
	LastPaymentID   *uuid.UUID // payment that activated or last renewed the subscription
	CancelledAt     *time.Time
}

// NewSubscription creates a subscription in trial status
func NewSubscription(tenantID uuid.UUID, plan Plan, amount decimal.Decimal, currency Currency, now time.Time) (*Subscription, []shared.DomainEvent, error) {
	if tenantID == uuid.Nil {
		return nil, nil, shared.NewDomainError(shared.CodeInvalidInput, "Tenant ID is required")
	}
	if _, err := ParsePlan(string(plan)); err != nil {
		return nil, nil, err
	}
	if err := validatePositiveAmount(amount); err != nil {
		return nil, nil, err
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	sub := &Subscription{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID, now),
		Plan:                plan,
		Status:              SubscriptionStatusTrial,
		StartsAt:            now,
		AutoRenew:           true,
		Amount:              RoundMoney(amount),
		Currency:            currency,
	}

	return sub, []shared.DomainEvent{NewSubscriptionCreatedEvent(sub)}, nil
}

// Activate starts the paid period ending at endsAt. charge is nil for manual activations.
// Activating an already active subscription is a no-op: endsAt is kept and no event is emitted.
func (s Subscription) Activate(endsAt time.Time, charge *Charge, now time.Time) (Subscription, []shared.DomainEvent, error) {
	switch s.Status {
	case SubscriptionStatusActive:
		return s, nil, nil
	case SubscriptionStatusTrial, SubscriptionStatusSuspended:
	default:
		return s, nil, shared.NewDomainError(shared.CodeInvalidState, "Cannot activate a "+string(s.Status)+" subscription")
	}
	if !endsAt.After(now) {
		return s, nil, shared.NewDomainError(shared.CodeInvalidInput, "Subscription end must be in the future")
	}

	s.Status = SubscriptionStatusActive
	s.StartsAt = now
	s.EndsAt = &endsAt
	s.PeriodStart = &now
	if charge != nil {
		s.LastPaymentID = &charge.PaymentID
	}
	s.Touch(now)

	return s, []shared.DomainEvent{NewSubscriptionActivatedEvent(&s, s.billedCharge(charge), now)}, nil
}

// Renew extends an active subscription by one period from its current end.
// It is a no-op when the charge's payment already activated or renewed the subscription.
func (s Subscription) Renew(charge Charge, now time.Time) (Subscription, []shared.DomainEvent, error) {
	if s.Status != SubscriptionStatusActive {
		return s, nil, shared.NewDomainError(shared.CodeInvalidState, "Only active subscriptions can be renewed")
	}
	if s.PaidBy(charge.PaymentID) {
		return s, nil, nil
	}

	periodStart := now
	if s.EndsAt != nil && s.EndsAt.After(now) {
		periodStart = *s.EndsAt
	}
	endsAt := s.Plan.PeriodEnd(periodStart)

	s.EndsAt = &endsAt
	s.PeriodStart = &periodStart
	s.LastPaymentID = &charge.PaymentID
	s.Touch(now)

	return s, []shared.DomainEvent{NewSubscriptionRenewedEvent(&s, s.billedCharge(&charge), periodStart, now)}, nil
}

// Cancel stops the subscription. Cancelling a cancelled or expired subscription is a no-op.
func (s Subscription) Cancel(now time.Time) (Subscription, []shared.DomainEvent) {
	if s.Status == SubscriptionStatusCancelled || s.Status == SubscriptionStatusExpired {
		return s, nil
	}

	s.Status = SubscriptionStatusCancelled
	s.AutoRenew = false
	s.CancelledAt = &now
	s.Touch(now)

	return s, []shared.DomainEvent{NewSubscriptionCancelledEvent(&s, now)}
}

// Expire ends an active subscription whose paid period is over.
// Expired and cancelled subscriptions are left as they are.
func (s Subscription) Expire(now time.Time) (Subscription, []shared.DomainEvent, error) {
	switch s.Status {
	case SubscriptionStatusExpired, SubscriptionStatusCancelled:
		return s, nil, nil
	case SubscriptionStatusActive:
	default:
		return s, nil, shared.NewDomainError(shared.CodeInvalidState, "Only active subscriptions can expire")
	}
	if s.EndsAt != nil && now.Before(*s.EndsAt) {
		return s, nil, shared.NewDomainError(shared.CodeInvalidState, "Subscription period has not ended")
	}

	s.Status = SubscriptionStatusExpired
	s.Touch(now)

	return s, []shared.DomainEvent{NewSubscriptionExpiredEvent(&s, now)}, nil
}

// Suspend pauses a trial or active subscription
func (s Subscription) Suspend(now time.Time) (Subscription, []shared.DomainEvent, error) {
	switch s.Status {
	case SubscriptionStatusSuspended:
		return s, nil, nil
	case SubscriptionStatusTrial, SubscriptionStatusActive:
	default:
		return s, nil, shared.NewDomainError(shared.CodeInvalidState, "Cannot suspend a "+string(s.Status)+" subscription")
	}

	old := s.Status
	s.Status = SubscriptionStatusSuspended
	s.Touch(now)

	return s, []shared.DomainEvent{NewSubscriptionSuspendedEvent(&s, old, now)}, nil
}

// AttachPaymentIntent records the provider intent created to pay for this subscription
func (s Subscription) AttachPaymentIntent(paymentIntentID string, now time.Time) Subscription {
	s.PaymentIntentID = paymentIntentID
	s.Touch(now)
	return s
}

// PaidBy reports whether paymentID is the payment that last activated or renewed the subscription
func (s *Subscription) PaidBy(paymentID uuid.UUID) bool {
	return s.LastPaymentID != nil && *s.LastPaymentID == paymentID
}

// PeriodStartedEvent rebuilds the activation or renewal event of the current
// paid period, for announcing a transition again after its publish failed.
// charge is nil for manual activations. It returns nil unless the
// subscription is active.
func (s *Subscription) PeriodStartedEvent(charge *Charge, now time.Time) shared.DomainEvent {
	if !s.IsActive() || s.EndsAt == nil {
		return nil
	}
	billed := s.billedCharge(charge)
	if s.PeriodStart == nil || s.PeriodStart.Equal(s.StartsAt) {
		return NewSubscriptionActivatedEvent(s, billed, now)
	}
	return NewSubscriptionRenewedEvent(s, billed, *s.PeriodStart, now)
}

// billedCharge returns the charge an invoice bills: the payment when there is one,
// the plan price otherwise.
func (s *Subscription) billedCharge(charge *Charge) Charge {
	if charge == nil {
		return Charge{Amount: s.Amount, Currency: s.Currency}
	}
	c := *charge
	if c.Currency == "" {
		c.Currency = s.Currency
	}
	return c
}

// IsActive returns true if the subscription is active
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// IsEndedAt reports whether an active subscription's paid period is over at now
func (s *Subscription) IsEndedAt(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.EndsAt != nil && s.EndsAt.Before(now)
}
