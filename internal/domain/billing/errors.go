package billing

import "github.com/saas/backend/internal/domain/shared"

// Billing error codes
const (
	CodeInvalidSignature         = "INVALID_SIGNATURE"
	CodePaymentNotFound          = "PAYMENT_NOT_FOUND"
	CodeActiveSubscriptionExists = "ACTIVE_SUBSCRIPTION_EXISTS"
	CodeInvoicePaid              = "INVOICE_PAID"
	CodeRefundNotAllowed         = "REFUND_NOT_ALLOWED"
	CodeProviderNotFound         = "PROVIDER_NOT_FOUND"
)

// Billing errors
var (
	ErrInvalidSignature         = shared.NewDomainError(CodeInvalidSignature, "Webhook signature verification failed")
	ErrPaymentNotFound          = shared.NewDomainError(CodePaymentNotFound, "No payment matches the payment intent")
	ErrActiveSubscriptionExists = shared.NewDomainError(CodeActiveSubscriptionExists, "Tenant already has an active subscription")
	ErrInvoicePaid              = shared.NewDomainError(CodeInvoicePaid, "A paid invoice cannot be cancelled")
	ErrRefundNotAllowed         = shared.NewDomainError(CodeRefundNotAllowed, "Only completed payments can be refunded")
	ErrProviderNotFound         = shared.NewDomainError(CodeProviderNotFound, "Payment provider is not configured")
)

// NewProviderError wraps a failure returned by an external provider.
// Provider failures are retryable from the caller's point of view.
func NewProviderError(provider string, cause error) *shared.DomainError {
	return shared.WrapDomainError(shared.CodeUnavailable, provider+" provider call failed", cause)
}
