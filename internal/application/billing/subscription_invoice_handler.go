package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubscriptionInvoiceHandler bills every paid subscription period.
// It handles SubscriptionActivatedEvent and SubscriptionRenewedEvent.
type SubscriptionInvoiceHandler struct {
	invoiceRepo billing.InvoiceRepository
	invoicer    invoicer
	logger      *zap.Logger
	now         Clock
}

// SubscriptionInvoiceHandlerConfig contains configuration for SubscriptionInvoiceHandler
type SubscriptionInvoiceHandlerConfig struct {
	InvoiceRepo billing.InvoiceRepository
	Provider    billing.InvoiceProvider
	Numbers     billing.InvoiceNumberGenerator
	Policy      InvoicePolicy
	Publisher   shared.Publisher
	Metrics     *telemetry.BillingMetrics
	Logger      *zap.Logger
}

// NewSubscriptionInvoiceHandler creates a new SubscriptionInvoiceHandler
func NewSubscriptionInvoiceHandler(cfg SubscriptionInvoiceHandlerConfig) *SubscriptionInvoiceHandler {
	return &SubscriptionInvoiceHandler{
		invoiceRepo: cfg.InvoiceRepo,
		invoicer: invoicer{
			invoiceRepo: cfg.InvoiceRepo,
			provider:    cfg.Provider,
			numbers:     cfg.Numbers,
			policy:      cfg.Policy,
			publisher:   cfg.Publisher,
			metrics:     cfg.Metrics,
			logger:      cfg.Logger,
		},
		logger: cfg.Logger,
		now:    utcNow,
	}
}

// Name identifies the handler in idempotency keys
func (h *SubscriptionInvoiceHandler) Name() string {
	return "subscription_invoice"
}

// EventTypes returns the event types this handler is interested in
func (h *SubscriptionInvoiceHandler) EventTypes() []string {
	return []string{billing.EventTypeSubscriptionActivated, billing.EventTypeSubscriptionRenewed}
}

// billedPeriod is the part of an activation or renewal event an invoice needs
type billedPeriod struct {
	subscriptionID uuid.UUID
	plan           billing.Plan
	start          time.Time
	end            time.Time
	amount         decimal.Decimal
	currency       billing.Currency
	paymentID      *uuid.UUID
}

// Handle creates one subscription invoice for the billed period
func (h *SubscriptionInvoiceHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var period billedPeriod
	switch e := event.(type) {
	case *billing.SubscriptionActivatedEvent:
		period = billedPeriod{e.SubscriptionID, e.Plan, e.StartsAt, e.EndsAt, e.Amount, e.Currency, e.PaymentID}
	case *billing.SubscriptionRenewedEvent:
		period = billedPeriod{e.SubscriptionID, e.Plan, e.PeriodStart, e.EndsAt, e.Amount, e.Currency, e.PaymentID}
	default:
		return fmt.Errorf("unexpected event type: expected %s or %s, got %s",
			billing.EventTypeSubscriptionActivated, billing.EventTypeSubscriptionRenewed, event.EventType())
	}

	tenantID := event.TenantID()
	log := logger.Enrich(ctx, h.logger).With(
		zap.String("subscription_id", period.subscriptionID.String()),
		zap.Time("period_start", period.start),
	)

	exists, err := h.invoiceRepo.ExistsForPeriod(ctx, tenantID, period.subscriptionID, period.start)
	if err != nil {
		return fmt.Errorf("failed to check period invoice: %w", err)
	}
	if exists {
		log.Info("subscription period already invoiced, skipping")
		return nil
	}

	item, err := billing.NewInvoiceItem("Subscription – "+string(period.plan), 1, period.amount)
	if err != nil {
		return err
	}
	subscriptionID := period.subscriptionID
	start, end := period.start, period.end

	now := h.now()
	invoice, err := h.invoicer.draft(ctx, draftRequest{
		TenantID:       tenantID,
		SubscriptionID: &subscriptionID,
		PaymentID:      period.paymentID,
		Type:           billing.InvoiceTypeSubscription,
		Currency:       period.currency,
		Items:          []billing.InvoiceItem{item},
		PeriodStart:    &start,
		PeriodEnd:      &end,
		SourceEventID:  event.EventID(),
	}, now)
	if err != nil {
		log.Error("failed to create subscription invoice", zap.Error(err))
		return err
	}
	if invoice == nil {
		log.Info("invoice already created for this event, skipping")
		return nil
	}

	h.invoicer.issueBestEffort(ctx, invoice, now)
	return nil
}

var _ shared.EventHandler = (*SubscriptionInvoiceHandler)(nil)
