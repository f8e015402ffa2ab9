package billing

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/identity"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// MockTenantRepository is a mock implementation of identity.TenantRepository
type MockTenantRepository struct {
	mock.Mock
}

func (m *MockTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
}

func (m *MockTenantRepository) FindBySubdomain(ctx context.Context, subdomain string) (*identity.Tenant, error) {
	args := m.Called(ctx, subdomain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
}

func (m *MockTenantRepository) FindAll(ctx context.Context, filter shared.Filter) ([]identity.Tenant, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]identity.Tenant), args.Get(1).(int64), args.Error(2)
}

func (m *MockTenantRepository) FindTrialsEndedBefore(ctx context.Context, before time.Time, limit int) ([]identity.Tenant, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).([]identity.Tenant), args.Error(1)
}

func (m *MockTenantRepository) FindLapsedBefore(ctx context.Context, before time.Time, limit int) ([]identity.Tenant, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).([]identity.Tenant), args.Error(1)
}

func (m *MockTenantRepository) Create(ctx context.Context, tenant *identity.Tenant) error {
	return m.Called(ctx, tenant).Error(0)
}

func (m *MockTenantRepository) Update(ctx context.Context, tenant *identity.Tenant) error {
	return m.Called(ctx, tenant).Error(0)
}

func (m *MockTenantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTenantRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockTenantRepository) ExistsBySubdomain(ctx context.Context, subdomain string) (bool, error) {
	args := m.Called(ctx, subdomain)
	return args.Bool(0), args.Error(1)
}

func (m *MockTenantRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

// MockSubscriptionRepository is a mock implementation of billing.SubscriptionRepository
type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]billing.Subscription, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]billing.Subscription), args.Get(1).(int64), args.Error(2)
}

func (m *MockSubscriptionRepository) FindActiveByTenant(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) HasActive(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tenantID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSubscriptionRepository) FindActiveEndedBefore(ctx context.Context, before time.Time, limit int) ([]billing.Subscription, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).([]billing.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, sub *billing.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, sub *billing.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *MockSubscriptionRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

func (m *MockSubscriptionRepository) Exists(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, tenantID, id)
	return args.Bool(0), args.Error(1)
}

// MockInvoiceRepository is a mock implementation of billing.InvoiceRepository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]billing.Invoice, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]billing.Invoice), args.Get(1).(int64), args.Error(2)
}

func (m *MockInvoiceRepository) FindByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*billing.Invoice, error) {
	args := m.Called(ctx, tenantID, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindBySubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) ([]billing.Invoice, error) {
	args := m.Called(ctx, tenantID, subscriptionID)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ExistsBySourceEvent(ctx context.Context, eventID uuid.UUID) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvoiceRepository) ExistsForPeriod(ctx context.Context, tenantID, subscriptionID uuid.UUID, periodStart time.Time) (bool, error) {
	args := m.Called(ctx, tenantID, subscriptionID, periodStart)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvoiceRepository) ExistsForPayment(ctx context.Context, tenantID, paymentID uuid.UUID, invoiceType billing.InvoiceType) (bool, error) {
	args := m.Called(ctx, tenantID, paymentID, invoiceType)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvoiceRepository) Create(ctx context.Context, invoice *billing.Invoice) error {
	return m.Called(ctx, invoice).Error(0)
}

func (m *MockInvoiceRepository) Update(ctx context.Context, invoice *billing.Invoice) error {
	return m.Called(ctx, invoice).Error(0)
}

func (m *MockInvoiceRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

func (m *MockInvoiceRepository) Exists(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, tenantID, id)
	return args.Bool(0), args.Error(1)
}

// MockInvoiceProvider is a mock implementation of billing.InvoiceProvider
type MockInvoiceProvider struct {
	mock.Mock
}

func (m *MockInvoiceProvider) CreateInvoice(ctx context.Context, req billing.InvoiceRequest) (*billing.InvoiceResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.InvoiceResult), args.Error(1)
}

func (m *MockInvoiceProvider) SendInvoice(ctx context.Context, providerInvoiceID, email string) (*billing.SendResult, error) {
	args := m.Called(ctx, providerInvoiceID, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SendResult), args.Error(1)
}

func (m *MockInvoiceProvider) GetInvoicePDF(ctx context.Context, providerInvoiceID string) ([]byte, error) {
	args := m.Called(ctx, providerInvoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockInvoiceProvider) CancelInvoice(ctx context.Context, providerInvoiceID string) error {
	return m.Called(ctx, providerInvoiceID).Error(0)
}

// MockDeadLetterRepository is a mock implementation of shared.DeadLetterRepository
type MockDeadLetterRepository struct {
	mock.Mock
}

func (m *MockDeadLetterRepository) Save(ctx context.Context, letter *shared.DeadLetter) error {
	return m.Called(ctx, letter).Error(0)
}

func (m *MockDeadLetterRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.DeadLetter, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.DeadLetter), args.Error(1)
}

func (m *MockDeadLetterRepository) FindDead(ctx context.Context, filter shared.Filter) ([]*shared.DeadLetter, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*shared.DeadLetter), args.Get(1).(int64), args.Error(2)
}

func (m *MockDeadLetterRepository) Update(ctx context.Context, letter *shared.DeadLetter) error {
	return m.Called(ctx, letter).Error(0)
}

func (m *MockDeadLetterRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// MockJobRequeuer is a mock implementation of JobRequeuer
type MockJobRequeuer struct {
	mock.Mock
}

func (m *MockJobRequeuer) Requeue(ctx context.Context, letter *shared.DeadLetter) error {
	return m.Called(ctx, letter).Error(0)
}

// recordingPublisher collects published events
type recordingPublisher struct {
	events []shared.DomainEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) types() []string {
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.EventType()
	}
	return types
}

// brokerOutage forwards to next once down is cleared, and fails every
// publish until then
type brokerOutage struct {
	next  shared.Publisher
	down  bool
	calls int
}

func (p *brokerOutage) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	p.calls++
	if p.down {
		return errors.New("broker unavailable")
	}
	return p.next.Publish(ctx, events...)
}

// fixedNumbers issues INV-TEST-<n>
type fixedNumbers struct {
	n int
}

func (g *fixedNumbers) Next(time.Time) string {
	g.n++
	return "INV-TEST-" + strconv.Itoa(g.n)
}
