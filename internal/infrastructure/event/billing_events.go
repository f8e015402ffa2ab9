package event

import (
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/identity"
)

// RegisterBillingEvents registers every event the billing saga publishes.
// Consumers can only decode registered types.
func RegisterBillingEvents(s *EventSerializer) {
	// Tenant
	s.Register(identity.EventTypeTenantCreated, &identity.TenantCreatedEvent{})
	s.Register(identity.EventTypeTenantStatusChanged, &identity.TenantStatusChangedEvent{})
	s.Register(identity.EventTypeTenantTrialExpired, &identity.TenantTrialExpiredEvent{})

	// Subscription
	s.Register(billing.EventTypeSubscriptionCreated, &billing.SubscriptionCreatedEvent{})
	s.Register(billing.EventTypeSubscriptionActivated, &billing.SubscriptionActivatedEvent{})
	s.Register(billing.EventTypeSubscriptionRenewed, &billing.SubscriptionRenewedEvent{})
	s.Register(billing.EventTypeSubscriptionCancelled, &billing.SubscriptionCancelledEvent{})
	s.Register(billing.EventTypeSubscriptionExpired, &billing.SubscriptionExpiredEvent{})
	s.Register(billing.EventTypeSubscriptionSuspended, &billing.SubscriptionSuspendedEvent{})

	// Payment
	s.Register(billing.EventTypePaymentCreated, &billing.PaymentCreatedEvent{})
	s.Register(billing.EventTypePaymentCompleted, &billing.PaymentCompletedEvent{})
	s.Register(billing.EventTypePaymentFailed, &billing.PaymentFailedEvent{})
	s.Register(billing.EventTypePaymentCancelled, &billing.PaymentCancelledEvent{})
	s.Register(billing.EventTypePaymentRefunded, &billing.PaymentRefundedEvent{})

	// Invoice
	s.Register(billing.EventTypeInvoiceCreated, &billing.InvoiceCreatedEvent{})
	s.Register(billing.EventTypeInvoiceStatusChanged, &billing.InvoiceStatusChangedEvent{})
}
