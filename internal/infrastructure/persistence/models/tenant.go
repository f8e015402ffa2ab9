package models

import (
	"maps"
	"time"

	"github.com/saas/backend/internal/domain/identity"
	"gorm.io/datatypes"
)

// TenantModel is the persistence model for the Tenant aggregate.
type TenantModel struct {
	AggregateModel
	Name               string                `gorm:"type:varchar(200);not null"`
	Subdomain          string                `gorm:"type:varchar(63);not null;uniqueIndex"`
	Email              string                `gorm:"type:varchar(254);not null;uniqueIndex"`
	Status             identity.TenantStatus `gorm:"type:varchar(20);not null;index"`
	TrialEndsAt        time.Time             `gorm:"not null;index"`
	SubscriptionEndsAt *time.Time
	Settings           datatypes.JSONMap `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (TenantModel) TableName() string {
	return "tenants"
}

// ToDomain converts the persistence model to a domain Tenant.
func (m *TenantModel) ToDomain() *identity.Tenant {
	settings := map[string]any{}
	maps.Copy(settings, m.Settings)
	return &identity.Tenant{
		BaseAggregateRoot:  m.ToDomainAggregateRoot(),
		Name:               m.Name,
		Subdomain:          m.Subdomain,
		Email:              m.Email,
		Status:             m.Status,
		TrialEndsAt:        m.TrialEndsAt,
		SubscriptionEndsAt: m.SubscriptionEndsAt,
		Settings:           settings,
	}
}

// TenantModelFromDomain creates a persistence model from a domain Tenant.
func TenantModelFromDomain(t *identity.Tenant) *TenantModel {
	m := &TenantModel{
		Name:               t.Name,
		Subdomain:          t.Subdomain,
		Email:              t.Email,
		Status:             t.Status,
		TrialEndsAt:        t.TrialEndsAt.UTC(),
		SubscriptionEndsAt: utcPtr(t.SubscriptionEndsAt),
		Settings:           datatypes.JSONMap(maps.Clone(t.Settings)),
	}
	m.FromDomainAggregateRoot(t.BaseAggregateRoot)
	return m
}
