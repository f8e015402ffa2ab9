package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// SubscriptionModel is the persistence model for the Subscription aggregate.
// The one-active-subscription-per-tenant rule is enforced by a partial
// unique index created in the SQL migrations.
type SubscriptionModel struct {
	TenantAggregateModel
	Plan            billing.Plan               `gorm:"type:varchar(20);not null"`
	Status          billing.SubscriptionStatus `gorm:"type:varchar(20);not null;index"`
	StartsAt        time.Time                  `gorm:"not null"`
	EndsAt          *time.Time                 `gorm:"index"`
	PeriodStart     *time.Time
	AutoRenew       bool                       `gorm:"not null;default:true"`
	Amount          decimal.Decimal            `gorm:"type:decimal(18,2);not null"`
	Currency        billing.Currency           `gorm:"type:varchar(3);not null"`
	PaymentIntentID string                     `gorm:"type:varchar(255);index"`
	LastPaymentID   *uuid.UUID                 `gorm:"type:uuid"`
	CancelledAt     *time.Time
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the persistence model to a domain Subscription.
func (m *SubscriptionModel) ToDomain() *billing.Subscription {
	return &billing.Subscription{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		Plan:                m.Plan,
		Status:              m.Status,
		StartsAt:            m.StartsAt,
		EndsAt:              m.EndsAt,
		PeriodStart:         m.PeriodStart,
		AutoRenew:           m.AutoRenew,
		Amount:              m.Amount,
		Currency:            m.Currency,
		PaymentIntentID:     m.PaymentIntentID,
		LastPaymentID:       m.LastPaymentID,
		CancelledAt:         m.CancelledAt,
	}
}

// SubscriptionModelFromDomain creates a persistence model from a domain Subscription.
func SubscriptionModelFromDomain(s *billing.Subscription) *SubscriptionModel {
	m := &SubscriptionModel{
		Plan:            s.Plan,
		Status:          s.Status,
		StartsAt:        s.StartsAt.UTC(),
		EndsAt:          utcPtr(s.EndsAt),
		PeriodStart:     utcPtr(s.PeriodStart),
		AutoRenew:       s.AutoRenew,
		Amount:          s.Amount,
		Currency:        s.Currency,
		PaymentIntentID: s.PaymentIntentID,
		LastPaymentID:   s.LastPaymentID,
		CancelledAt:     utcPtr(s.CancelledAt),
	}
	m.FromDomainTenantAggregateRoot(s.TenantAggregateRoot)
	return m
}
