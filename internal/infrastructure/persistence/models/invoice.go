package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceModel is the persistence model for the Invoice aggregate.
// source_event_id is unique so a redelivered event can never bill twice.
type InvoiceModel struct {
	TenantAggregateModel
	SubscriptionID    *uuid.UUID                              `gorm:"type:uuid;index"`
	PaymentID         *uuid.UUID                              `gorm:"type:uuid;index"`
	InvoiceNumber     string                                  `gorm:"type:varchar(64);not null;uniqueIndex"`
	Type              billing.InvoiceType                     `gorm:"type:varchar(20);not null"`
	Status            billing.InvoiceStatus                   `gorm:"type:varchar(20);not null;index"`
	Currency          billing.Currency                        `gorm:"type:varchar(3);not null"`
	Items             datatypes.JSONSlice[billing.InvoiceItem] `gorm:"type:jsonb;not null"`
	Subtotal          decimal.Decimal                         `gorm:"type:decimal(18,2);not null"`
	TaxRate           decimal.Decimal                         `gorm:"type:decimal(6,4);not null"`
	Tax               decimal.Decimal                         `gorm:"type:decimal(18,2);not null"`
	Total             decimal.Decimal                         `gorm:"type:decimal(18,2);not null"`
	IssueDate         time.Time                               `gorm:"not null"`
	DueDate           *time.Time
	PeriodStart       *time.Time `gorm:"index"`
	PeriodEnd         *time.Time
	SentAt            *time.Time
	PaidAt            *time.Time
	CancelledAt       *time.Time
	ProviderInvoiceID string     `gorm:"type:varchar(255)"`
	DocumentKey       string     `gorm:"type:varchar(500)"`
	SourceEventID     *uuid.UUID `gorm:"type:uuid;uniqueIndex"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	items := make([]billing.InvoiceItem, len(m.Items))
	copy(items, m.Items)
	return &billing.Invoice{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		SubscriptionID:      m.SubscriptionID,
		PaymentID:           m.PaymentID,
		InvoiceNumber:       m.InvoiceNumber,
		Type:                m.Type,
		Status:              m.Status,
		Currency:            m.Currency,
		Items:               items,
		Subtotal:            m.Subtotal,
		TaxRate:             m.TaxRate,
		Tax:                 m.Tax,
		Total:               m.Total,
		IssueDate:           m.IssueDate,
		DueDate:             m.DueDate,
		PeriodStart:         m.PeriodStart,
		PeriodEnd:           m.PeriodEnd,
		SentAt:              m.SentAt,
		PaidAt:              m.PaidAt,
		CancelledAt:         m.CancelledAt,
		ProviderInvoiceID:   m.ProviderInvoiceID,
		DocumentKey:         m.DocumentKey,
		SourceEventID:       m.SourceEventID,
	}
}

// InvoiceModelFromDomain creates a persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{
		SubscriptionID:    inv.SubscriptionID,
		PaymentID:         inv.PaymentID,
		InvoiceNumber:     inv.InvoiceNumber,
		Type:              inv.Type,
		Status:            inv.Status,
		Currency:          inv.Currency,
		Items:             datatypes.JSONSlice[billing.InvoiceItem](inv.Items),
		Subtotal:          inv.Subtotal,
		TaxRate:           inv.TaxRate,
		Tax:               inv.Tax,
		Total:             inv.Total,
		IssueDate:         inv.IssueDate.UTC(),
		DueDate:           utcPtr(inv.DueDate),
		PeriodStart:       utcPtr(inv.PeriodStart),
		PeriodEnd:         utcPtr(inv.PeriodEnd),
		SentAt:            utcPtr(inv.SentAt),
		PaidAt:            utcPtr(inv.PaidAt),
		CancelledAt:       utcPtr(inv.CancelledAt),
		ProviderInvoiceID: inv.ProviderInvoiceID,
		DocumentKey:       inv.DocumentKey,
		SourceEventID:     inv.SourceEventID,
	}
	m.FromDomainTenantAggregateRoot(inv.TenantAggregateRoot)
	return m
}
