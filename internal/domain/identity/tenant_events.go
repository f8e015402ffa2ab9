package identity

import (
	"time"

	"github.com/saas/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeTenant = "Tenant"

// Event type constants
const (
	EventTypeTenantCreated       = "TenantCreated"
	EventTypeTenantStatusChanged = "TenantStatusChanged"
	EventTypeTenantTrialExpired  = "TenantTrialExpired"
)

// TenantCreatedEvent is published when a tenant signs up
type TenantCreatedEvent struct {
	shared.BaseDomainEvent
	Name        string       `json:"name"`
	Subdomain   string       `json:"subdomain"`
	Email       string       `json:"email"`
	Status      TenantStatus `json:"status"`
	TrialEndsAt time.Time    `json:"trial_ends_at"`
}

// NewTenantCreatedEvent creates a new TenantCreatedEvent
func NewTenantCreatedEvent(tenant *Tenant) *TenantCreatedEvent {
	return &TenantCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTenantCreated, AggregateTypeTenant, tenant.ID, tenant.ID, tenant.CreatedAt),
		Name:            tenant.Name,
		Subdomain:       tenant.Subdomain,
		Email:           tenant.Email,
		Status:          tenant.Status,
		TrialEndsAt:     tenant.TrialEndsAt,
	}
}

// TenantStatusChangedEvent is published when a tenant's status changes
type TenantStatusChangedEvent struct {
	shared.BaseDomainEvent
	Subdomain          string       `json:"subdomain"`
	OldStatus          TenantStatus `json:"old_status"`
	NewStatus          TenantStatus `json:"new_status"`
	SubscriptionEndsAt *time.Time   `json:"subscription_ends_at,omitempty"`
	Reason             string       `json:"reason,omitempty"`
}

// NewTenantStatusChangedEvent creates a new TenantStatusChangedEvent
func NewTenantStatusChangedEvent(tenant *Tenant, oldStatus, newStatus TenantStatus, now time.Time) *TenantStatusChangedEvent {
	return &TenantStatusChangedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeTenantStatusChanged, AggregateTypeTenant, tenant.ID, tenant.ID, now),
		Subdomain:          tenant.Subdomain,
		OldStatus:          oldStatus,
		NewStatus:          newStatus,
		SubscriptionEndsAt: tenant.SubscriptionEndsAt,
	}
}

// TenantTrialExpiredEvent is published when a trial ends without a subscription
type TenantTrialExpiredEvent struct {
	shared.BaseDomainEvent
	Subdomain   string    `json:"subdomain"`
	Email       string    `json:"email"`
	TrialEndsAt time.Time `json:"trial_ends_at"`
}

// NewTenantTrialExpiredEvent creates a new TenantTrialExpiredEvent
func NewTenantTrialExpiredEvent(tenant *Tenant, now time.Time) *TenantTrialExpiredEvent {
	return &TenantTrialExpiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTenantTrialExpired, AggregateTypeTenant, tenant.ID, tenant.ID, now),
		Subdomain:       tenant.Subdomain,
		Email:           tenant.Email,
		TrialEndsAt:     tenant.TrialEndsAt,
	}
}
