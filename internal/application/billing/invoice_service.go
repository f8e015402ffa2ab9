package billing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/identity"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultDocumentURLExpiry is the lifetime of an invoice download URL
const DefaultDocumentURLExpiry = 15 * time.Minute

// InvoiceService handles invoice delivery, settlement and archiving
type InvoiceService struct {
	invoiceRepo billing.InvoiceRepository
	tenantRepo  identity.TenantRepository
	provider    billing.InvoiceProvider
	documents   billing.DocumentStore
	invoicer    invoicer
	publisher   shared.Publisher
	logger      *zap.Logger
	now         Clock
}

// InvoiceServiceConfig contains configuration for InvoiceService
type InvoiceServiceConfig struct {
	InvoiceRepo   billing.InvoiceRepository
	TenantRepo    identity.TenantRepository
	Provider      billing.InvoiceProvider
	DocumentStore billing.DocumentStore
	Numbers       billing.InvoiceNumberGenerator
	Policy        InvoicePolicy
	Publisher     shared.Publisher
	Metrics       *telemetry.BillingMetrics
	Logger        *zap.Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(cfg InvoiceServiceConfig) *InvoiceService {
	return &InvoiceService{
		invoiceRepo: cfg.InvoiceRepo,
		tenantRepo:  cfg.TenantRepo,
		provider:    cfg.Provider,
		documents:   cfg.DocumentStore,
		invoicer: invoicer{
			invoiceRepo: cfg.InvoiceRepo,
			provider:    cfg.Provider,
			numbers:     cfg.Numbers,
			policy:      cfg.Policy,
			publisher:   cfg.Publisher,
			metrics:     cfg.Metrics,
			logger:      cfg.Logger,
		},
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       utcNow,
	}
}

// IssueInvoice registers a draft invoice at the invoice provider
func (s *InvoiceService) IssueInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDTO, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.issue_invoice", telemetry.AttrTenantID.String(tenantID.String()))
	defer span.End()

	invoice, err := s.invoiceRepo.FindByID(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != billing.InvoiceStatusDraft && invoice.Status != billing.InvoiceStatusPending {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Cannot issue a "+string(invoice.Status)+" invoice")
	}
	issued, err := s.invoicer.issue(ctx, invoice, s.now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	dto := ToInvoiceDTO(issued)
	return &dto, nil
}

// SendInvoice emails an issued invoice to the tenant
func (s *InvoiceService) SendInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDTO, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.send_invoice", telemetry.AttrTenantID.String(tenantID.String()))
	defer span.End()

	invoice, err := s.invoiceRepo.FindByID(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == billing.InvoiceStatusSent {
		dto := ToInvoiceDTO(invoice)
		return &dto, nil
	}
	if invoice.Status == billing.InvoiceStatusDraft {
		if invoice, err = s.invoicer.issue(ctx, invoice, s.now()); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}
	if invoice.Status != billing.InvoiceStatusPending {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Cannot send a "+string(invoice.Status)+" invoice")
	}

	tenant, err := s.tenantRepo.FindByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	res, err := s.provider.SendInvoice(ctx, invoice.ProviderInvoiceID, tenant.Email)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to send invoice: %w", err)
	}
	if !res.Success {
		return nil, billing.NewProviderError("invoicing", fmt.Errorf("send rejected: %s", res.Error))
	}

	result, err := s.transition(ctx, invoice, func(inv billing.Invoice, now time.Time) (billing.Invoice, []shared.DomainEvent, error) {
		return inv.MarkSent(now)
	})
	if err != nil {
		return nil, err
	}
	logger.Enrich(ctx, s.logger).Info("invoice sent",
		zap.String("invoice_number", result.InvoiceNumber),
		zap.String("message_id", res.MessageID),
	)
	dto := ToInvoiceDTO(result)
	return &dto, nil
}

// MarkInvoicePaid settles an invoice
func (s *InvoiceService) MarkInvoicePaid(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDTO, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	result, err := s.transition(ctx, invoice, func(inv billing.Invoice, now time.Time) (billing.Invoice, []shared.DomainEvent, error) {
		return inv.MarkPaid(now)
	})
	if err != nil {
		return nil, err
	}
	dto := ToInvoiceDTO(result)
	return &dto, nil
}

// CancelInvoice voids an invoice here and at the provider. Paid invoices
// cannot be cancelled.
func (s *InvoiceService) CancelInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDTO, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.cancel_invoice", telemetry.AttrTenantID.String(tenantID.String()))
	defer span.End()

	invoice, err := s.invoiceRepo.FindByID(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	switch invoice.Status {
	case billing.InvoiceStatusPaid:
		return nil, billing.ErrInvoicePaid
	case billing.InvoiceStatusCancelled:
		dto := ToInvoiceDTO(invoice)
		return &dto, nil
	}

	if invoice.IsIssued() {
		if err := s.provider.CancelInvoice(ctx, invoice.ProviderInvoiceID); err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to cancel invoice at provider: %w", err)
		}
	}

	result, err := s.transition(ctx, invoice, func(inv billing.Invoice, now time.Time) (billing.Invoice, []shared.DomainEvent, error) {
		return inv.Cancel(now)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	dto := ToInvoiceDTO(result)
	return &dto, nil
}

// ArchiveInvoiceDocument fetches the rendered invoice from the provider and
// stores it in the document store
func (s *InvoiceService) ArchiveInvoiceDocument(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDTO, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.archive_invoice_document", telemetry.AttrTenantID.String(tenantID.String()))
	defer span.End()

	invoice, err := s.invoiceRepo.FindByID(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if !invoice.IsIssued() {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Invoice has not been issued yet")
	}

	data, err := s.provider.GetInvoicePDF(ctx, invoice.ProviderInvoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to fetch invoice document: %w", err)
	}
	contentType := http.DetectContentType(data)
	key := documentKey(invoice, contentType)
	if err := s.documents.Put(ctx, key, data, contentType); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to store invoice document: %w", err)
	}

	var result *billing.Invoice
	err = retryOnConflict(ctx, MaxConflictRetries, func(ctx context.Context) error {
		current, err := s.invoiceRepo.FindByID(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		next := current.AttachDocument(key, s.now())
		if err := s.invoiceRepo.Update(ctx, &next); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Enrich(ctx, s.logger).Info("invoice document archived",
		zap.String("invoice_number", result.InvoiceNumber),
		zap.String("document_key", key),
		zap.Int("bytes", len(data)),
	)
	dto := ToInvoiceDTO(result)
	return &dto, nil
}

// DocumentURL is a time-limited link to an archived invoice document
type DocumentURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InvoiceDocumentURL presigns a download of the archived invoice document
func (s *InvoiceService) InvoiceDocumentURL(ctx context.Context, tenantID, invoiceID uuid.UUID, expiresIn time.Duration) (*DocumentURL, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.DocumentKey == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Invoice document has not been archived")
	}
	if expiresIn <= 0 {
		expiresIn = DefaultDocumentURLExpiry
	}
	url, expiresAt, err := s.documents.DownloadURL(ctx, invoice.DocumentKey, expiresIn)
	if err != nil {
		return nil, fmt.Errorf("failed to create download url: %w", err)
	}
	return &DocumentURL{URL: url, ExpiresAt: expiresAt}, nil
}

// GetInvoice returns an invoice of the tenant
func (s *InvoiceService) GetInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDTO, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	dto := ToInvoiceDTO(invoice)
	return &dto, nil
}

// ListInvoices returns a page of the tenant's invoices
func (s *InvoiceService) ListInvoices(ctx context.Context, tenantID uuid.UUID, filter ListFilter) (shared.Paginated[InvoiceDTO], error) {
	f := filter.ToSharedFilter()
	invoices, total, err := s.invoiceRepo.FindAll(ctx, tenantID, f)
	if err != nil {
		return shared.Paginated[InvoiceDTO]{}, fmt.Errorf("failed to list invoices: %w", err)
	}
	items := make([]InvoiceDTO, len(invoices))
	for i := range invoices {
		items[i] = ToInvoiceDTO(&invoices[i])
	}
	return shared.NewPaginated(items, total, f.Page, f.Limit()), nil
}

// transition applies fn to the stored invoice with a version check
func (s *InvoiceService) transition(
	ctx context.Context,
	invoice *billing.Invoice,
	fn func(billing.Invoice, time.Time) (billing.Invoice, []shared.DomainEvent, error),
) (*billing.Invoice, error) {
	now := s.now()
	var result *billing.Invoice
	first := true
	err := retryOnConflict(ctx, MaxConflictRetries, func(ctx context.Context) error {
		current := invoice
		if !first {
			reloaded, err := s.invoiceRepo.FindByID(ctx, invoice.TenantID, invoice.ID)
			if err != nil {
				return err
			}
			current = reloaded
		}
		first = false

		next, events, err := fn(*current, now)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			result = current
			return nil
		}
		if err := s.invoiceRepo.Update(ctx, &next); err != nil {
			return err
		}
		result = &next
		notify(ctx, s.publisher, s.logger, events)
		return nil
	})
	return result, err
}

// documentKey is tenants/<tenant>/invoices/<number><ext>
func documentKey(inv *billing.Invoice, contentType string) string {
	ext := ".bin"
	switch {
	case strings.HasPrefix(contentType, "application/pdf"):
		ext = ".pdf"
	case strings.HasPrefix(contentType, "text/plain"):
		ext = ".txt"
	case strings.HasPrefix(contentType, "text/html"):
		ext = ".html"
	}
	return fmt.Sprintf("tenants/%s/invoices/%s%s", inv.TenantID, inv.InvoiceNumber, ext)
}
