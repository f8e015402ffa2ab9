package models

import (
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentModel is the persistence model for the Payment aggregate.
type PaymentModel struct {
	TenantAggregateModel
	SubscriptionID        *uuid.UUID            `gorm:"type:uuid;index"`
	Status                billing.PaymentStatus `gorm:"type:varchar(20);not null;index"`
	Method                billing.PaymentMethod `gorm:"type:varchar(20);not null"`
	Amount                decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	Currency              billing.Currency      `gorm:"type:varchar(3);not null"`
	PaymentIntentID       string                `gorm:"type:varchar(255);not null;uniqueIndex"`
	ProviderTransactionID string                `gorm:"type:varchar(255)"`
	Provider              string                `gorm:"type:varchar(50);not null"`
	Metadata              datatypes.JSONMap     `gorm:"type:jsonb"`
	FailureReason         string                `gorm:"type:text"`
	CompletedAt           *time.Time
	FailedAt              *time.Time
	RefundID              string          `gorm:"type:varchar(255)"`
	RefundedAmount        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	RefundedAt            *time.Time
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment.
func (m *PaymentModel) ToDomain() *billing.Payment {
	metadata := map[string]any{}
	maps.Copy(metadata, m.Metadata)
	return &billing.Payment{
		TenantAggregateRoot:   m.ToDomainTenantAggregateRoot(),
		SubscriptionID:        m.SubscriptionID,
		Status:                m.Status,
		Method:                m.Method,
		Amount:                m.Amount,
		Currency:              m.Currency,
		PaymentIntentID:       m.PaymentIntentID,
		ProviderTransactionID: m.ProviderTransactionID,
		Provider:              m.Provider,
		Metadata:              metadata,
		FailureReason:         m.FailureReason,
		CompletedAt:           m.CompletedAt,
		FailedAt:              m.FailedAt,
		RefundID:              m.RefundID,
		RefundedAmount:        m.RefundedAmount,
		RefundedAt:            m.RefundedAt,
	}
}

// PaymentModelFromDomain creates a persistence model from a domain Payment.
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{
		SubscriptionID:        p.SubscriptionID,
		Status:                p.Status,
		Method:                p.Method,
		Amount:                p.Amount,
		Currency:              p.Currency,
		PaymentIntentID:       p.PaymentIntentID,
		ProviderTransactionID: p.ProviderTransactionID,
		Provider:              p.Provider,
		Metadata:              datatypes.JSONMap(maps.Clone(p.Metadata)),
		FailureReason:         p.FailureReason,
		CompletedAt:           utcPtr(p.CompletedAt),
		FailedAt:              utcPtr(p.FailedAt),
		RefundID:              p.RefundID,
		RefundedAmount:        p.RefundedAmount,
		RefundedAt:            utcPtr(p.RefundedAt),
	}
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	return m
}
