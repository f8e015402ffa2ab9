package billing

import (
	"context"
	"errors"
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

// DefaultInvoiceDueDays is used when the policy leaves DueDays unset
const DefaultInvoiceDueDays = 14

// InvoicePolicy holds the tax and payment terms applied to new invoices
type InvoicePolicy struct {
	TaxRate decimal.Decimal
	DueDays int
}

func (p InvoicePolicy) dueDate(issueDate time.Time) *time.Time {
	days := p.DueDays
	if days <= 0 {
		days = DefaultInvoiceDueDays
	}
	due := issueDate.AddDate(0, 0, days)
	return &due
}

// draftRequest describes an invoice caused by a domain event
type draftRequest struct {
	TenantID       uuid.UUID
	SubscriptionID *uuid.UUID
	PaymentID      *uuid.UUID
	Type           billing.InvoiceType
	Currency       billing.Currency
	Items          []billing.InvoiceItem
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	SourceEventID  uuid.UUID
}

// invoicer drafts invoices and forwards them to the invoice provider
type invoicer struct {
	invoiceRepo billing.InvoiceRepository
	provider    billing.InvoiceProvider
	numbers     billing.InvoiceNumberGenerator
	policy      InvoicePolicy
	publisher   shared.Publisher
	metrics     *telemetry.BillingMetrics
	logger      *zap.Logger
}

// draft creates and stores an invoice for req. It returns nil, nil when the
// source event already produced an invoice.
func (iv invoicer) draft(ctx context.Context, req draftRequest, now time.Time) (*billing.Invoice, error) {
	exists, err := iv.invoiceRepo.ExistsBySourceEvent(ctx, req.SourceEventID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing invoice: %w", err)
	}
	if exists {
		return nil, nil
	}

	sourceEventID := req.SourceEventID
	invoice, events, err := billing.NewInvoice(billing.NewInvoiceParams{
		TenantID:       req.TenantID,
		SubscriptionID: req.SubscriptionID,
		PaymentID:      req.PaymentID,
		InvoiceNumber:  iv.numbers.Next(now),
		Type:           req.Type,
		Currency:       req.Currency,
		Items:          req.Items,
		TaxRate:        iv.policy.TaxRate,
		IssueDate:      now,
		DueDate:        iv.policy.dueDate(now),
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		SourceEventID:  &sourceEventID,
	}, now)
	if err != nil {
		return nil, err
	}

	if err := iv.invoiceRepo.Create(ctx, invoice); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Another delivery of the same event won the insert.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}
	notify(ctx, iv.publisher, iv.logger, events)
	iv.metrics.InvoiceCreated(ctx, string(invoice.Type), invoice.Currency.String(), invoice.Total)

	logger.Enrich(ctx, iv.logger).Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("type", string(invoice.Type)),
		zap.String("total", invoice.Total.String()),
		zap.String("currency", invoice.Currency.String()),
	)
	return invoice, nil
}

// issue registers a draft invoice at the provider and moves it to pending.
// Invoices past draft are returned unchanged.
func (iv invoicer) issue(ctx context.Context, invoice *billing.Invoice, now time.Time) (*billing.Invoice, error) {
	if invoice.Status != billing.InvoiceStatusDraft {
		return invoice, nil
	}

	res, err := iv.provider.CreateInvoice(ctx, billing.NewInvoiceRequest(invoice))
	if err != nil {
		return nil, fmt.Errorf("failed to register invoice %s: %w", invoice.InvoiceNumber, err)
	}

	var result *billing.Invoice
	err = retryOnConflict(ctx, MaxConflictRetries, func(ctx context.Context) error {
		current, err := iv.invoiceRepo.FindByID(ctx, invoice.TenantID, invoice.ID)
		if err != nil {
			return err
		}
		next, events, err := current.MarkIssued(res.ProviderInvoiceID, now)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			result = current
			return nil
		}
		if err := iv.invoiceRepo.Update(ctx, &next); err != nil {
			return err
		}
		result = &next
		notify(ctx, iv.publisher, iv.logger, events)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// issueBestEffort forwards a freshly drafted invoice to the provider. A
// failure leaves the invoice in draft for a later IssueInvoice call.
func (iv invoicer) issueBestEffort(ctx context.Context, invoice *billing.Invoice, now time.Time) {
	if _, err := iv.issue(ctx, invoice, now); err != nil {
		logger.Enrich(ctx, iv.logger).Warn("invoice provider unavailable, invoice left in draft",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Error(err),
		)
	}
}
