// Package billing provides the domain model for subscription billing in a multi-tenant SaaS application.
//
// Key Aggregates:
//   - Subscription: a tenant's plan and its paid-through window
//   - Payment: one charge attempt correlated to a provider payment intent
//   - Invoice: the billing document issued for a paid period or a refund
//
// The aggregates are linked by domain events rather than references:
// PaymentCompleted activates a Subscription, SubscriptionActivated issues an Invoice.
// Each transition returns the next aggregate state and the events it emitted.
//
// The billing domain integrates with:
//   - Identity domain: tenants own subscriptions, payments and invoices
//   - PaymentProvider / InvoiceProvider: external processors behind interfaces
package billing
