package invoicing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/shared"
)

// NoopProvider stands in for the e-invoicing system when none is
// configured. It remembers what it was given and renders plain-text
// documents, so the invoice lifecycle can run end to end locally.
type NoopProvider struct {
	mu       sync.Mutex
	invoices map[string]billing.InvoiceRequest
	sent     map[string]string
}

// NewNoopProvider creates an empty provider
func NewNoopProvider() *NoopProvider {
	return &NoopProvider{
		invoices: make(map[string]billing.InvoiceRequest),
		sent:     make(map[string]string),
	}
}

// CreateInvoice records the request under "noop-<invoice number>"
func (p *NoopProvider) CreateInvoice(_ context.Context, req billing.InvoiceRequest) (*billing.InvoiceResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := "noop-" + req.InvoiceNumber
	p.invoices[id] = req
	return &billing.InvoiceResult{ProviderInvoiceID: id, InvoiceNumber: req.InvoiceNumber}, nil
}

// SendInvoice records the recipient
func (p *NoopProvider) SendInvoice(_ context.Context, providerInvoiceID, email string) (*billing.SendResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.invoices[providerInvoiceID]; !ok {
		return nil, shared.ErrNotFound
	}
	p.sent[providerInvoiceID] = email
	return &billing.SendResult{Success: true, MessageID: "noop-msg-" + providerInvoiceID}, nil
}

// GetInvoicePDF renders a plain-text summary of the invoice
func (p *NoopProvider) GetInvoicePDF(_ context.Context, providerInvoiceID string) ([]byte, error) {
	p.mu.Lock()
	req, ok := p.invoices[providerInvoiceID]
	p.mu.Unlock()
	if !ok {
		return nil, shared.ErrNotFound
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Invoice %s\n", req.InvoiceNumber)
	fmt.Fprintf(&b, "Issued %s\n\n", req.IssueDate.UTC().Format("2006-01-02"))
	for _, item := range req.Items {
		fmt.Fprintf(&b, "%-40s %3d x %s = %s\n", item.Description, item.Quantity, item.UnitPrice.StringFixed(2), item.Amount.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nSubtotal %s\nTax %s\nTotal %s %s\n",
		req.Subtotal.StringFixed(2), req.Tax.StringFixed(2), req.Total.StringFixed(2), req.Currency)
	return []byte(b.String()), nil
}

// CancelInvoice forgets the invoice
func (p *NoopProvider) CancelInvoice(_ context.Context, providerInvoiceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.invoices, providerInvoiceID)
	return nil
}

// SentTo returns the address an invoice was sent to
func (p *NoopProvider) SentTo(providerInvoiceID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	email, ok := p.sent[providerInvoiceID]
	return email, ok
}

var _ billing.InvoiceProvider = (*NoopProvider)(nil)
