package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/identity"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ListFilter is the paging input shared by list queries
type ListFilter struct {
	Page     int
	PageSize int
	SortBy   string
	SortDir  string
	Status   string
}

// ToSharedFilter converts ListFilter to shared.Filter
func (f ListFilter) ToSharedFilter() shared.Filter {
	filter := shared.DefaultFilter()
	if f.Page > 0 {
		filter.Page = f.Page
	}
	if f.PageSize > 0 {
		filter.PageSize = f.PageSize
	}
	if f.SortBy != "" {
		filter.OrderBy = f.SortBy
	}
	if f.SortDir != "" {
		filter.OrderDir = f.SortDir
	}
	filter.Status = f.Status
	return filter
}

// TenantDTO represents tenant data transfer object
type TenantDTO struct {
	ID                 uuid.UUID      `json:"id"`
	Name               string         `json:"name"`
	Subdomain          string         `json:"subdomain"`
	Email              string         `json:"email"`
	Status             string         `json:"status"`
	TrialEndsAt        time.Time      `json:"trial_ends_at"`
	SubscriptionEndsAt *time.Time     `json:"subscription_ends_at,omitempty"`
	Settings           map[string]any `json:"settings,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	Version            int            `json:"version"`
}

// ToTenantDTO converts a tenant to its DTO
func ToTenantDTO(t *identity.Tenant) TenantDTO {
	return TenantDTO{
		ID:                 t.ID,
		Name:               t.Name,
		Subdomain:          t.Subdomain,
		Email:              t.Email,
		Status:             string(t.Status),
		TrialEndsAt:        t.TrialEndsAt,
		SubscriptionEndsAt: t.SubscriptionEndsAt,
		Settings:           t.Settings,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		Version:            t.Version,
	}
}

// SubscriptionDTO represents subscription data transfer object
type SubscriptionDTO struct {
	ID              uuid.UUID       `json:"id"`
	TenantID        uuid.UUID       `json:"tenant_id"`
	Plan            string          `json:"plan"`
	Status          string          `json:"status"`
	StartsAt        time.Time       `json:"starts_at"`
	EndsAt          *time.Time      `json:"ends_at,omitempty"`
	AutoRenew       bool            `json:"auto_renew"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	LastPaymentID   *uuid.UUID      `json:"last_payment_id,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
}

// ToSubscriptionDTO converts a subscription to its DTO
func ToSubscriptionDTO(s *billing.Subscription) SubscriptionDTO {
	return SubscriptionDTO{
		ID:              s.ID,
		TenantID:        s.TenantID,
		Plan:            string(s.Plan),
		Status:          string(s.Status),
		StartsAt:        s.StartsAt,
		EndsAt:          s.EndsAt,
		AutoRenew:       s.AutoRenew,
		Amount:          s.Amount,
		Currency:        s.Currency.String(),
		PaymentIntentID: s.PaymentIntentID,
		LastPaymentID:   s.LastPaymentID,
		CancelledAt:     s.CancelledAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		Version:         s.Version,
	}
}

// PaymentDTO represents payment data transfer object
type PaymentDTO struct {
	ID                    uuid.UUID       `json:"id"`
	TenantID              uuid.UUID       `json:"tenant_id"`
	SubscriptionID        *uuid.UUID      `json:"subscription_id,omitempty"`
	Status                string          `json:"status"`
	Method                string          `json:"method"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Provider              string          `json:"provider"`
	PaymentIntentID       string          `json:"payment_intent_id"`
	ProviderTransactionID string          `json:"provider_transaction_id,omitempty"`
	FailureReason         string          `json:"failure_reason,omitempty"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	FailedAt              *time.Time      `json:"failed_at,omitempty"`
	RefundID              string          `json:"refund_id,omitempty"`
	RefundedAmount        decimal.Decimal `json:"refunded_amount"`
	RefundedAt            *time.Time      `json:"refunded_at,omitempty"`
	Metadata              map[string]any  `json:"metadata,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// ToPaymentDTO converts a payment to its DTO
func ToPaymentDTO(p *billing.Payment) PaymentDTO {
	return PaymentDTO{
		ID:                    p.ID,
		TenantID:              p.TenantID,
		SubscriptionID:        p.SubscriptionID,
		Status:                string(p.Status),
		Method:                string(p.Method),
		Amount:                p.Amount,
		Currency:              p.Currency.String(),
		Provider:              p.Provider,
		PaymentIntentID:       p.PaymentIntentID,
		ProviderTransactionID: p.ProviderTransactionID,
		FailureReason:         p.FailureReason,
		CompletedAt:           p.CompletedAt,
		FailedAt:              p.FailedAt,
		RefundID:              p.RefundID,
		RefundedAmount:        p.RefundedAmount,
		RefundedAt:            p.RefundedAt,
		Metadata:              p.Metadata,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

// InvoiceItemDTO is one line of an invoice
type InvoiceItemDTO struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoiceDTO represents invoice data transfer object
type InvoiceDTO struct {
	ID                uuid.UUID        `json:"id"`
	TenantID          uuid.UUID        `json:"tenant_id"`
	SubscriptionID    *uuid.UUID       `json:"subscription_id,omitempty"`
	PaymentID         *uuid.UUID       `json:"payment_id,omitempty"`
	InvoiceNumber     string           `json:"invoice_number"`
	Type              string           `json:"type"`
	Status            string           `json:"status"`
	Currency          string           `json:"currency"`
	Items             []InvoiceItemDTO `json:"items"`
	Subtotal          decimal.Decimal  `json:"subtotal"`
	TaxRate           decimal.Decimal  `json:"tax_rate"`
	Tax               decimal.Decimal  `json:"tax"`
	Total             decimal.Decimal  `json:"total"`
	IssueDate         time.Time        `json:"issue_date"`
	DueDate           *time.Time       `json:"due_date,omitempty"`
	PeriodStart       *time.Time       `json:"period_start,omitempty"`
	PeriodEnd         *time.Time       `json:"period_end,omitempty"`
	SentAt            *time.Time       `json:"sent_at,omitempty"`
	PaidAt            *time.Time       `json:"paid_at,omitempty"`
	CancelledAt       *time.Time       `json:"cancelled_at,omitempty"`
	ProviderInvoiceID string           `json:"provider_invoice_id,omitempty"`
	DocumentKey       string           `json:"document_key,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// ToInvoiceDTO converts an invoice to its DTO
func ToInvoiceDTO(inv *billing.Invoice) InvoiceDTO {
	items := make([]InvoiceItemDTO, len(inv.Items))
	for i, item := range inv.Items {
		items[i] = InvoiceItemDTO{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
		}
	}
	return InvoiceDTO{
		ID:                inv.ID,
		TenantID:          inv.TenantID,
		SubscriptionID:    inv.SubscriptionID,
		PaymentID:         inv.PaymentID,
		InvoiceNumber:     inv.InvoiceNumber,
		Type:              string(inv.Type),
		Status:            string(inv.Status),
		Currency:          inv.Currency.String(),
		Items:             items,
		Subtotal:          inv.Subtotal,
		TaxRate:           inv.TaxRate,
		Tax:               inv.Tax,
		Total:             inv.Total,
		IssueDate:         inv.IssueDate,
		DueDate:           inv.DueDate,
		PeriodStart:       inv.PeriodStart,
		PeriodEnd:         inv.PeriodEnd,
		SentAt:            inv.SentAt,
		PaidAt:            inv.PaidAt,
		CancelledAt:       inv.CancelledAt,
		ProviderInvoiceID: inv.ProviderInvoiceID,
		DocumentKey:       inv.DocumentKey,
		CreatedAt:         inv.CreatedAt,
		UpdatedAt:         inv.UpdatedAt,
	}
}

// DeadLetterDTO represents a dead-lettered queue job
type DeadLetterDTO struct {
	ID         uuid.UUID  `json:"id"`
	JobID      string     `json:"job_id"`
	Queue      string     `json:"queue"`
	EventID    uuid.UUID  `json:"event_id"`
	EventType  string     `json:"event_type"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"last_error"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	RequeuedAt *time.Time `json:"requeued_at,omitempty"`
}

// ToDeadLetterDTO converts a dead letter to its DTO
func ToDeadLetterDTO(d *shared.DeadLetter) DeadLetterDTO {
	return DeadLetterDTO{
		ID:         d.ID,
		JobID:      d.JobID,
		Queue:      d.Queue,
		EventID:    d.EventID,
		EventType:  d.EventType,
		TenantID:   d.TenantID,
		Attempts:   d.Attempts,
		LastError:  d.LastError,
		Status:     string(d.Status),
		CreatedAt:  d.CreatedAt,
		RequeuedAt: d.RequeuedAt,
	}
}
