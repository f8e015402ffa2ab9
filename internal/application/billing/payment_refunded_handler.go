package billing

import (
	"context"
	"fmt"

	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PaymentRefundedHandler handles PaymentRefundedEvent
// and issues a credit invoice for the refunded amount
type PaymentRefundedHandler struct {
	invoicer invoicer
	logger   *zap.Logger
	now      Clock
}

// NewPaymentRefundedHandler creates a new handler for payment refunded events
func NewPaymentRefundedHandler(
	invoiceRepo billing.InvoiceRepository,
	provider billing.InvoiceProvider,
	numbers billing.InvoiceNumberGenerator,
	policy InvoicePolicy,
	publisher shared.Publisher,
	metrics *telemetry.BillingMetrics,
	logger *zap.Logger,
) *PaymentRefundedHandler {
	return &PaymentRefundedHandler{
		invoicer: invoicer{
			invoiceRepo: invoiceRepo,
			provider:    provider,
			numbers:     numbers,
			policy:      policy,
			publisher:   publisher,
			metrics:     metrics,
			logger:      logger,
		},
		logger: logger,
		now:    utcNow,
	}
}

// Name identifies the handler in idempotency keys
func (h *PaymentRefundedHandler) Name() string {
	return "payment_refund_credit_note"
}

// EventTypes returns the event types this handler is interested in
func (h *PaymentRefundedHandler) EventTypes() []string {
	return []string{billing.EventTypePaymentRefunded}
}

// Handle creates a refund invoice with a negative total
func (h *PaymentRefundedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	refunded, ok := event.(*billing.PaymentRefundedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			billing.EventTypePaymentRefunded, event.EventType())
	}
	log := logger.Enrich(ctx, h.logger).With(
		zap.String("payment_id", refunded.PaymentID.String()),
		zap.String("refund_id", refunded.RefundID),
	)

	exists, err := h.invoicer.invoiceRepo.ExistsForPayment(ctx, refunded.TenantID(), refunded.PaymentID, billing.InvoiceTypeRefund)
	if err != nil {
		return fmt.Errorf("failed to check refund invoice: %w", err)
	}
	if exists {
		log.Info("refund already invoiced, skipping")
		return nil
	}

	item, err := billing.NewInvoiceItem("Refund "+refunded.RefundID, 1, refunded.Amount.Neg())
	if err != nil {
		return err
	}
	paymentID := refunded.PaymentID

	now := h.now()
	invoice, err := h.invoicer.draft(ctx, draftRequest{
		TenantID:       refunded.TenantID(),
		SubscriptionID: refunded.SubscriptionID,
		PaymentID:      &paymentID,
		Type:           billing.InvoiceTypeRefund,
		Currency:       refunded.Currency,
		Items:          []billing.InvoiceItem{item},
		SourceEventID:  refunded.EventID(),
	}, now)
	if err != nil {
		log.Error("failed to create refund invoice", zap.Error(err))
		return err
	}
	if invoice == nil {
		log.Info("refund already invoiced, skipping")
		return nil
	}

	h.invoicer.issueBestEffort(ctx, invoice, now)
	return nil
}

var _ shared.EventHandler = (*PaymentRefundedHandler)(nil)
