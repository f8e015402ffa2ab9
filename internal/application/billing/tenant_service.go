package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/identity"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// TenantService handles tenant signup and lookup
type TenantService struct {
	tenantRepo identity.TenantRepository
	publisher  shared.Publisher
	logger     *zap.Logger
	now        Clock
}

// NewTenantService creates a new tenant service
func NewTenantService(
	tenantRepo identity.TenantRepository,
	publisher shared.Publisher,
	logger *zap.Logger,
) *TenantService {
	return &TenantService{
		tenantRepo: tenantRepo,
		publisher:  publisher,
		logger:     logger,
		now:        utcNow,
	}
}

// CreateTenantInput contains input for creating a tenant
type CreateTenantInput struct {
	Name      string         `json:"name"`
	Subdomain string         `json:"subdomain"`
	Email     string         `json:"email"`
	Settings  map[string]any `json:"settings"`
}

// CreateTenant signs up a tenant with a trial window.
// Subdomain and email must be unused.
func (s *TenantService) CreateTenant(ctx context.Context, input CreateTenantInput) (*TenantDTO, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.create_tenant")
	defer span.End()

	tenant, events, err := identity.NewTenant(input.Name, input.Subdomain, input.Email, s.now())
	if err != nil {
		return nil, err
	}
	if len(input.Settings) > 0 {
		*tenant = tenant.UpdateSettings(input.Settings, tenant.CreatedAt)
	}

	exists, err := s.tenantRepo.ExistsBySubdomain(ctx, tenant.Subdomain)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to check subdomain: %w", err)
	}
	if exists {
		return nil, shared.NewDomainError(shared.CodeAlreadyExists, "Subdomain is already taken")
	}
	exists, err = s.tenantRepo.ExistsByEmail(ctx, tenant.Email)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, shared.NewDomainError(shared.CodeAlreadyExists, "Email is already registered")
	}

	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	notify(ctx, s.publisher, s.logger, events)

	logger.Enrich(logger.WithTenantID(ctx, tenant.ID.String()), s.logger).Info("tenant created",
		zap.String("subdomain", tenant.Subdomain),
		zap.Time("trial_ends_at", tenant.TrialEndsAt),
	)

	dto := ToTenantDTO(tenant)
	return &dto, nil
}

// GetTenant returns a tenant by ID
func (s *TenantService) GetTenant(ctx context.Context, id uuid.UUID) (*TenantDTO, error) {
	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := ToTenantDTO(tenant)
	return &dto, nil
}

// ListTenants returns a page of tenants
func (s *TenantService) ListTenants(ctx context.Context, filter ListFilter) (shared.Paginated[TenantDTO], error) {
	f := filter.ToSharedFilter()
	tenants, total, err := s.tenantRepo.FindAll(ctx, f)
	if err != nil {
		return shared.Paginated[TenantDTO]{}, fmt.Errorf("failed to list tenants: %w", err)
	}
	items := make([]TenantDTO, len(tenants))
	for i := range tenants {
		items[i] = ToTenantDTO(&tenants[i])
	}
	return shared.NewPaginated(items, total, f.Page, f.Limit()), nil
}
