package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Payment Provider
// ---------------------------------------------------------------------------

// WebhookStatus is the provider-neutral outcome carried by a webhook
type WebhookStatus string

const (
	WebhookStatusCompleted WebhookStatus = "completed"
	WebhookStatusFailed    WebhookStatus = "failed"
	WebhookStatusPending   WebhookStatus = "pending"
)

// IntentRequest asks a provider to open a payment intent
type IntentRequest struct {
	// IdempotencyKey lets the provider dedupe retried requests
	IdempotencyKey string
	TenantID       uuid.UUID
	Amount         decimal.Decimal
	Currency       Currency
	Method         PaymentMethod
	Description    string
	ReturnURL      string
	CancelURL      string
	Metadata       map[string]string
}

// IntentResult is the provider's answer to an IntentRequest
type IntentResult struct {
	PaymentIntentID string
	ClientSecret    string
	RedirectURL     string
	Metadata        map[string]string
}

// WebhookResult is a provider webhook normalized to the billing model
type WebhookResult struct {
	// EventID is the provider's id for the notification, when it has one
	EventID         string
	TransactionID   string
	PaymentIntentID string
	Status          WebhookStatus
	Amount          decimal.Decimal
	Currency        Currency
	FailureReason   string
	Metadata        map[string]any
}

// RefundResult is the provider's answer to a refund
type RefundResult struct {
	RefundID string
	Status   string
	Amount   decimal.Decimal
}

// PaymentProvider abstracts an external payment processor
type PaymentProvider interface {
	// Name returns the provider key used in webhook routes and on payments
	Name() string

	// CreatePaymentIntent opens a payment intent at the provider
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*IntentResult, error)

	// VerifyWebhook checks the signature of a raw webhook payload
	VerifyWebhook(signature string, payload []byte) bool

	// ParseWebhook normalizes a verified webhook payload
	ParseWebhook(payload []byte) (*WebhookResult, error)

	// Refund refunds a settled transaction. A nil amount refunds in full.
	Refund(ctx context.Context, transactionID string, amount *decimal.Decimal) (*RefundResult, error)
}

// PaymentProviderRegistry resolves providers by name
type PaymentProviderRegistry interface {
	Get(name string) (PaymentProvider, error)
	Default() PaymentProvider
}

// ---------------------------------------------------------------------------
// Invoice Provider
// ---------------------------------------------------------------------------

// BillingAddress is the postal address printed on an invoice
type BillingAddress struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// InvoiceRequest asks the e-invoicing system to register an invoice
type InvoiceRequest struct {
	InvoiceNumber  string
	TenantID       uuid.UUID
	Items          []InvoiceItem
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	Currency       Currency
	IssueDate      time.Time
	DueDate        *time.Time
	BillingAddress *BillingAddress
	Metadata       map[string]string
}

// InvoiceResult is the e-invoicing system's answer to an InvoiceRequest
type InvoiceResult struct {
	ProviderInvoiceID string
	InvoiceNumber     string
	PDFURL            string
	Metadata          map[string]string
}

// SendResult reports the delivery of an invoice
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// InvoiceProvider abstracts an external e-invoicing system
type InvoiceProvider interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*InvoiceResult, error)
	SendInvoice(ctx context.Context, providerInvoiceID, email string) (*SendResult, error)
	GetInvoicePDF(ctx context.Context, providerInvoiceID string) ([]byte, error)
	CancelInvoice(ctx context.Context, providerInvoiceID string) error
}

// NewInvoiceRequest builds the provider request for an invoice
func NewInvoiceRequest(inv *Invoice) InvoiceRequest {
	return InvoiceRequest{
		InvoiceNumber: inv.InvoiceNumber,
		TenantID:      inv.TenantID,
		Items:         inv.Items,
		Subtotal:      inv.Subtotal,
		Tax:           inv.Tax,
		Total:         inv.Total,
		Currency:      inv.Currency,
		IssueDate:     inv.IssueDate,
		DueDate:       inv.DueDate,
		Metadata: map[string]string{
			"invoice_id": inv.ID.String(),
			"type":       string(inv.Type),
		},
	}
}

// ---------------------------------------------------------------------------
// Document Store
// ---------------------------------------------------------------------------

// DocumentStore archives rendered invoice documents
type DocumentStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// DownloadURL returns a time-limited URL for key and when it expires
	DownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
