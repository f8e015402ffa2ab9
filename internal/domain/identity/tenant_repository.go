package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
)

// TenantRepository defines the interface for tenant persistence.
// Tenant lookups are the only ones not scoped by a tenant ID.
type TenantRepository interface {
	// FindByID finds a tenant by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// FindBySubdomain finds a tenant by its unique subdomain
	FindBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)

	// FindAll finds tenants matching the filter and returns the total count
	FindAll(ctx context.Context, filter shared.Filter) ([]Tenant, int64, error)

	// FindTrialsEndedBefore finds trial tenants whose trial window closed before the given time
	FindTrialsEndedBefore(ctx context.Context, before time.Time, limit int) ([]Tenant, error)

	// FindLapsedBefore finds active tenants whose paid period ended before the given time
	FindLapsedBefore(ctx context.Context, before time.Time, limit int) ([]Tenant, error)

	// Create inserts a new tenant
	Create(ctx context.Context, tenant *Tenant) error

	// Update writes the tenant if its version is unchanged since it was loaded,
	// then bumps tenant.Version. Returns shared.ErrConcurrencyConflict otherwise.
	Update(ctx context.Context, tenant *Tenant) error

	// Delete soft-deletes a tenant
	Delete(ctx context.Context, id uuid.UUID) error

	// Exists checks if a tenant with the given ID exists
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// ExistsBySubdomain checks if a tenant with the given subdomain exists
	ExistsBySubdomain(ctx context.Context, subdomain string) (bool, error)

	// ExistsByEmail checks if a tenant with the given email exists
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
