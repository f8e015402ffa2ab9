package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	billingapp "github.com/saas/backend/internal/application/billing"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/scheduler"
	"github.com/saas/backend/internal/interfaces/http/dto"
)

// The interfaces below are the slices of the billing use cases each handler
// needs; the application services satisfy them.

// TenantUseCases is implemented by billingapp.TenantService
type TenantUseCases interface {
	CreateTenant(ctx context.Context, input billingapp.CreateTenantInput) (*billingapp.TenantDTO, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*billingapp.TenantDTO, error)
	ListTenants(ctx context.Context, filter billingapp.ListFilter) (shared.Paginated[billingapp.TenantDTO], error)
}

// SubscriptionUseCases is implemented by billingapp.SubscriptionService
type SubscriptionUseCases interface {
	CreateSubscription(ctx context.Context, input billingapp.CreateSubscriptionInput) (*billingapp.SubscriptionDTO, error)
	ActivateSubscription(ctx context.Context, input billingapp.ActivateSubscriptionInput) (*billingapp.SubscriptionDTO, error)
	CancelSubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) (*billingapp.SubscriptionDTO, error)
	SuspendSubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) (*billingapp.SubscriptionDTO, error)
	GetSubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) (*billingapp.SubscriptionDTO, error)
	ListSubscriptions(ctx context.Context, tenantID uuid.UUID, filter billingapp.ListFilter) (shared.Paginated[billingapp.SubscriptionDTO], error)
}

// PaymentUseCases is implemented by billingapp.PaymentService
type PaymentUseCases interface {
	CreatePaymentIntent(ctx context.Context, input billingapp.CreatePaymentIntentInput) (*billingapp.PaymentIntentResult, error)
	ProcessPaymentWebhook(ctx context.Context, providerName, signature string, payload []byte) (*billingapp.WebhookOutcome, error)
	RefundPayment(ctx context.Context, input billingapp.RefundPaymentInput) (*billingapp.PaymentDTO, error)
	GetPayment(ctx context.Context, tenantID, paymentID uuid.UUID) (*billingapp.PaymentDTO, error)
	ListPayments(ctx context.Context, tenantID uuid.UUID, filter billingapp.ListFilter) (shared.Paginated[billingapp.PaymentDTO], error)
}

// InvoiceUseCases is implemented by billingapp.InvoiceService
type InvoiceUseCases interface {
	IssueInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error)
	SendInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error)
	MarkInvoicePaid(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error)
	CancelInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error)
	ArchiveInvoiceDocument(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error)
	InvoiceDocumentURL(ctx context.Context, tenantID, invoiceID uuid.UUID, expiresIn time.Duration) (*billingapp.DocumentURL, error)
	GetInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error)
	ListInvoices(ctx context.Context, tenantID uuid.UUID, filter billingapp.ListFilter) (shared.Paginated[billingapp.InvoiceDTO], error)
}

// DeadLetterUseCases is implemented by billingapp.DeadLetterService
type DeadLetterUseCases interface {
	ListDeadLetters(ctx context.Context, filter billingapp.ListFilter) (shared.Paginated[billingapp.DeadLetterDTO], error)
	RequeueDeadLetter(ctx context.Context, id uuid.UUID) (*billingapp.DeadLetterDTO, error)
	DiscardDeadLetter(ctx context.Context, id uuid.UUID) (*billingapp.DeadLetterDTO, error)
}

// ExpiryRunner is implemented by scheduler.ExpiryScheduler
type ExpiryRunner interface {
	RunOnce(ctx context.Context) (scheduler.RunResult, error)
}

func toListFilter(req dto.ListRequest) billingapp.ListFilter {
	return billingapp.ListFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
		SortBy:   req.OrderBy,
		SortDir:  req.OrderDir,
		Status:   req.Status,
	}
}
