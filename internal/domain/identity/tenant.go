package identity

import (
	"maps"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
)

var addressValidator = validator.New()

// TenantStatus represents the status of a tenant
type TenantStatus string

const (
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended" // Suspended by an operator
	TenantStatusInactive  TenantStatus = "inactive"  // Subscription lapsed or deactivated
	TenantStatusExpired   TenantStatus = "expired"   // Trial ran out without a subscription
)

// TrialPeriod is the length of the signup trial
const TrialPeriod = 7 * 24 * time.Hour

var subdomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// Tenant represents a customer organization of the SaaS.
// It is the aggregate root for tenant-related operations.
//
// Transitions are value methods: they return the next state and the events
// it produced, and leave the receiver untouched.
type Tenant struct {
	shared.BaseAggregateRoot
	Name               string
	Subdomain          string
	Email              string
	Status             TenantStatus
	TrialEndsAt        time.Time
	SubscriptionEndsAt *time.Time
	Settings           map[string]any
}

// NewTenant signs up a tenant in trial status with a 7 day trial window
func NewTenant(name, subdomain, email string, now time.Time) (*Tenant, []shared.DomainEvent, error) {
	name = strings.TrimSpace(name)
	subdomain = NormalizeSubdomain(subdomain)
	email = NormalizeEmail(email)

	if err := validateTenantName(name); err != nil {
		return nil, nil, err
	}
	if err := validateSubdomain(subdomain); err != nil {
		return nil, nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, nil, err
	}

	tenant := &Tenant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		Name:              name,
		Subdomain:         subdomain,
		Email:             email,
		Status:            TenantStatusTrial,
		TrialEndsAt:       now.Add(TrialPeriod),
		Settings:          map[string]any{},
	}

	return tenant, []shared.DomainEvent{NewTenantCreatedEvent(tenant)}, nil
}

// Activate marks the tenant as paying until subscriptionEndsAt.
// An already active tenant only has its paid-through date moved forward.
func (t Tenant) Activate(subscriptionEndsAt, now time.Time) (Tenant, []shared.DomainEvent, error) {
	switch t.Status {
	case TenantStatusSuspended:
		return t, nil, shared.NewDomainError(shared.CodeInvalidState, "Cannot activate a suspended tenant")
	case TenantStatusActive:
		if t.SubscriptionEndsAt != nil && !subscriptionEndsAt.After(*t.SubscriptionEndsAt) {
			return t, nil, nil
		}
		t.SubscriptionEndsAt = &subscriptionEndsAt
		t.Touch(now)
		return t, nil, nil
	}

	old := t.Status
	t.Status = TenantStatusActive
	t.SubscriptionEndsAt = &subscriptionEndsAt
	t.Touch(now)

	return t, []shared.DomainEvent{NewTenantStatusChangedEvent(&t, old, TenantStatusActive, now)}, nil
}

// SubscriptionLapsed moves an active tenant to inactive once no subscription covers it.
// Any other status is left alone.
func (t Tenant) SubscriptionLapsed(now time.Time) (Tenant, []shared.DomainEvent) {
	if t.Status != TenantStatusActive {
		return t, nil
	}
	t.Status = TenantStatusInactive
	t.Touch(now)
	return t, []shared.DomainEvent{NewTenantStatusChangedEvent(&t, TenantStatusActive, TenantStatusInactive, now)}
}

// ExpireTrial ends a trial whose window has passed.
// It is a no-op for tenants that are no longer in trial.
func (t Tenant) ExpireTrial(now time.Time) (Tenant, []shared.DomainEvent, error) {
	if t.Status != TenantStatusTrial {
		return t, nil, nil
	}
	if !t.IsTrialExpired(now) {
		return t, nil, shared.NewDomainError(shared.CodeInvalidState, "Trial has not ended yet")
	}

	t.Status = TenantStatusExpired
	t.Touch(now)

	return t, []shared.DomainEvent{NewTenantTrialExpiredEvent(&t, now)}, nil
}

// Suspend suspends the tenant
func (t Tenant) Suspend(reason string, now time.Time) (Tenant, []shared.DomainEvent, error) {
	if t.Status == TenantStatusSuspended {
		return t, nil, shared.NewDomainError(shared.CodeInvalidState, "Tenant is already suspended")
	}

	old := t.Status
	t.Status = TenantStatusSuspended
	t.Touch(now)

	event := NewTenantStatusChangedEvent(&t, old, TenantStatusSuspended, now)
	event.Reason = reason
	return t, []shared.DomainEvent{event}, nil
}

// Deactivate deactivates the tenant
func (t Tenant) Deactivate(now time.Time) (Tenant, []shared.DomainEvent, error) {
	if t.Status == TenantStatusInactive {
		return t, nil, shared.NewDomainError(shared.CodeInvalidState, "Tenant is already inactive")
	}

	old := t.Status
	t.Status = TenantStatusInactive
	t.Touch(now)

	return t, []shared.DomainEvent{NewTenantStatusChangedEvent(&t, old, TenantStatusInactive, now)}, nil
}

// UpdateSettings replaces the tenant settings
func (t Tenant) UpdateSettings(settings map[string]any, now time.Time) Tenant {
	t.Settings = maps.Clone(settings)
	if t.Settings == nil {
		t.Settings = map[string]any{}
	}
	t.Touch(now)
	return t
}

// IsActive returns true if the tenant is active
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// IsTrial returns true if the tenant is in trial period
func (t *Tenant) IsTrial() bool {
	return t.Status == TenantStatusTrial
}

// IsTrialExpired reports whether a trial tenant is past its trial window.
// Nothing changes until a sweep calls ExpireTrial.
func (t *Tenant) IsTrialExpired(now time.Time) bool {
	if t.Status != TenantStatusTrial {
		return false
	}
	return now.After(t.TrialEndsAt)
}

// GetTenantID returns the tenant ID; a tenant is its own tenant scope
func (t *Tenant) GetTenantID() uuid.UUID {
	return t.ID
}

// NormalizeSubdomain lowercases and trims a subdomain
func NormalizeSubdomain(subdomain string) string {
	return strings.ToLower(strings.TrimSpace(subdomain))
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validation functions

func validateTenantName(name string) error {
	if name == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "Tenant name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Tenant name cannot exceed 200 characters")
	}
	return nil
}

func validateSubdomain(subdomain string) error {
	if subdomain == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "Subdomain cannot be empty")
	}
	if !subdomainPattern.MatchString(subdomain) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Subdomain can only contain lowercase letters, digits and inner hyphens (3-63 characters)")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "Email cannot be empty")
	}
	if err := addressValidator.Var(email, "email"); err != nil {
		return shared.NewDomainError(shared.CodeInvalidInput, "Email is not a valid address")
	}
	return nil
}
