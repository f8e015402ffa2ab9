// Package invoicing integrates the external e-invoicing system that
// registers, delivers and renders invoices.
package invoicing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const providerName = "invoicing"

// HTTPProvider talks to the e-invoicing REST API
type HTTPProvider struct {
	client *resty.Client
	logger *zap.Logger
}

type invoiceItemBody struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

type createInvoiceBody struct {
	InvoiceNumber  string                  `json:"invoice_number"`
	TenantID       string                  `json:"tenant_id"`
	Items          []invoiceItemBody       `json:"items"`
	Subtotal       decimal.Decimal         `json:"subtotal"`
	Tax            decimal.Decimal         `json:"tax"`
	Total          decimal.Decimal         `json:"total"`
	Currency       string                  `json:"currency"`
	IssueDate      string                  `json:"issue_date"`
	DueDate        string                  `json:"due_date,omitempty"`
	BillingAddress *billing.BillingAddress `json:"billing_address,omitempty"`
	Metadata       map[string]string       `json:"metadata,omitempty"`
}

type createInvoiceResponse struct {
	ID            string            `json:"id"`
	InvoiceNumber string            `json:"invoice_number"`
	PDFURL        string            `json:"pdf_url"`
	Metadata      map[string]string `json:"metadata"`
}

type sendInvoiceResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// NewHTTPProvider creates a client for cfg.BaseURL. Server errors and
// network failures are retried cfg.RetryCount times.
func NewHTTPProvider(cfg config.InvoicingConfig, logger *zap.Logger) *HTTPProvider {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/json").
		SetError(&errorResponse{})
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &HTTPProvider{client: client, logger: logger}
}

// CreateInvoice registers the invoice. The invoice number doubles as the
// idempotency key so a retried request never registers twice.
func (p *HTTPProvider) CreateInvoice(ctx context.Context, req billing.InvoiceRequest) (*billing.InvoiceResult, error) {
	body := createInvoiceBody{
		InvoiceNumber:  req.InvoiceNumber,
		TenantID:       req.TenantID.String(),
		Subtotal:       req.Subtotal,
		Tax:            req.Tax,
		Total:          req.Total,
		Currency:       string(req.Currency),
		IssueDate:      req.IssueDate.UTC().Format(time.DateOnly),
		BillingAddress: req.BillingAddress,
		Metadata:       req.Metadata,
	}
	if req.DueDate != nil {
		body.DueDate = req.DueDate.UTC().Format(time.DateOnly)
	}
	for _, item := range req.Items {
		body.Items = append(body.Items, invoiceItemBody(item))
	}

	var out createInvoiceResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.InvoiceNumber).
		SetBody(body).
		SetResult(&out).
		Post("/invoices")
	if err := p.check(resp, err, "create invoice"); err != nil {
		return nil, err
	}

	p.logger.Info("Invoice registered with provider",
		zap.String("invoice_number", req.InvoiceNumber),
		zap.String("provider_invoice_id", out.ID))

	number := out.InvoiceNumber
	if number == "" {
		number = req.InvoiceNumber
	}
	return &billing.InvoiceResult{
		ProviderInvoiceID: out.ID,
		InvoiceNumber:     number,
		PDFURL:            out.PDFURL,
		Metadata:          out.Metadata,
	}, nil
}

// SendInvoice asks the provider to deliver the invoice to email
func (p *HTTPProvider) SendInvoice(ctx context.Context, providerInvoiceID, email string) (*billing.SendResult, error) {
	var out sendInvoiceResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("id", providerInvoiceID).
		SetBody(map[string]string{"email": email}).
		SetResult(&out).
		Post("/invoices/{id}/send")
	if err := p.check(resp, err, "send invoice"); err != nil {
		return nil, err
	}
	return &billing.SendResult{Success: out.Success, MessageID: out.MessageID, Error: out.Error}, nil
}

// GetInvoicePDF downloads the rendered document
func (p *HTTPProvider) GetInvoicePDF(ctx context.Context, providerInvoiceID string) ([]byte, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/pdf").
		SetPathParam("id", providerInvoiceID).
		Get("/invoices/{id}/pdf")
	if err := p.check(resp, err, "download invoice pdf"); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// CancelInvoice voids the invoice at the provider. An unknown invoice is
// treated as already cancelled.
func (p *HTTPProvider) CancelInvoice(ctx context.Context, providerInvoiceID string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("id", providerInvoiceID).
		Post("/invoices/{id}/cancel")
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return p.check(resp, err, "cancel invoice")
}

// check turns transport failures and 5xx into retryable provider errors and
// 4xx into invalid-input errors
func (p *HTTPProvider) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		p.logger.Error("Invoicing provider call failed", zap.String("op", op), zap.Error(err))
		return billing.NewProviderError(providerName, fmt.Errorf("%s: %w", op, err))
	}
	if resp.IsSuccess() {
		return nil
	}

	msg := resp.Status()
	if e, ok := resp.Error().(*errorResponse); ok && e.Message != "" {
		msg = e.Message
	}
	p.logger.Error("Invoicing provider rejected request",
		zap.String("op", op),
		zap.Int("status_code", resp.StatusCode()),
		zap.String("message", msg))

	cause := fmt.Errorf("%s: %s (status %d)", op, msg, resp.StatusCode())
	if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
		return billing.NewProviderError(providerName, cause)
	}
	return shared.WrapDomainError(shared.CodeInvalidInput, "invoicing provider rejected the request", cause)
}

var _ billing.InvoiceProvider = (*HTTPProvider)(nil)
