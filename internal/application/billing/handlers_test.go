package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/identity"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTrialTenant(t *testing.T) *identity.Tenant {
	t.Helper()
	tenant, _, err := identity.NewTenant("Acme", "acme", "billing@acme.io", testNow.Add(-time.Hour))
	require.NoError(t, err)
	return tenant
}

func newTrialSubscription(t *testing.T, tenantID uuid.UUID) *billing.Subscription {
	t.Helper()
	sub, _, err := billing.NewSubscription(tenantID, billing.PlanMonthly, decimal.NewFromInt(100), billing.USD, testNow.Add(-time.Hour))
	require.NoError(t, err)
	return sub
}

func newCompletedEvent(t *testing.T, tenantID, subID uuid.UUID) *billing.PaymentCompletedEvent {
	t.Helper()
	p, _, err := billing.NewPayment(billing.NewPaymentParams{
		TenantID:        tenantID,
		SubscriptionID:  &subID,
		Provider:        "hmac",
		PaymentIntentID: "pi_123",
		Amount:          decimal.NewFromInt(100),
		Currency:        billing.USD,
	}, testNow.Add(-time.Minute))
	require.NoError(t, err)
	_, events, err := p.Complete("ch_1", nil, testNow)
	require.NoError(t, err)
	return events[0].(*billing.PaymentCompletedEvent)
}

func TestPaymentCompletedHandler_Metadata(t *testing.T) {
	h := NewPaymentCompletedHandler(nil, nil, nil, nil, zap.NewNop())
	assert.Equal(t, "payment_completed_activation", h.Name())
	assert.Equal(t, []string{billing.EventTypePaymentCompleted}, h.EventTypes())
}

func TestPaymentCompletedHandler_WrongEventType(t *testing.T) {
	h := NewPaymentCompletedHandler(nil, nil, nil, nil, zap.NewNop())
	tenant := newTrialTenant(t)
	_, events, err := tenant.ExpireTrial(testNow.Add(identity.TrialPeriod + time.Hour))
	require.NoError(t, err)

	err = h.Handle(context.Background(), events[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected event type")
}

func TestPaymentCompletedHandler_ActivatesAfterConflict(t *testing.T) {
	ctx := context.Background()
	tenant := newTrialTenant(t)
	sub := newTrialSubscription(t, tenant.ID)
	event := newCompletedEvent(t, tenant.ID, sub.ID)

	subRepo := new(MockSubscriptionRepository)
	tenantRepo := new(MockTenantRepository)
	publisher := &recordingPublisher{}

	subRepo.On("FindByID", mock.Anything, tenant.ID, sub.ID).Return(sub, nil)
	subRepo.On("Update", mock.Anything, mock.Anything).Return(shared.ErrConcurrencyConflict).Once()
	subRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *billing.Subscription) bool {
		return s.Status == billing.SubscriptionStatusActive && s.LastPaymentID != nil && *s.LastPaymentID == event.PaymentID
	})).Return(nil).Once()
	tenantRepo.On("FindByID", mock.Anything, tenant.ID).Return(tenant, nil)
	tenantRepo.On("Update", mock.Anything, mock.MatchedBy(func(tn *identity.Tenant) bool {
		return tn.Status == identity.TenantStatusActive && tn.SubscriptionEndsAt != nil
	})).Return(nil)

	h := NewPaymentCompletedHandler(subRepo, tenantRepo, publisher, nil, zap.NewNop())
	h.now = fixedClock

	require.NoError(t, h.Handle(ctx, event))

	subRepo.AssertNumberOfCalls(t, "FindByID", 2)
	subRepo.AssertNumberOfCalls(t, "Update", 2)
	tenantRepo.AssertExpectations(t)
	assert.Equal(t, []string{billing.EventTypeSubscriptionActivated, identity.EventTypeTenantStatusChanged}, publisher.types())

	activated := publisher.events[0].(*billing.SubscriptionActivatedEvent)
	assert.True(t, activated.EndsAt.Equal(billing.PlanMonthly.PeriodEnd(testNow)))
}

func TestPaymentCompletedHandler_DuplicateStillAlignsTenant(t *testing.T) {
	ctx := context.Background()
	tenant := newTrialTenant(t)
	sub := newTrialSubscription(t, tenant.ID)
	event := newCompletedEvent(t, tenant.ID, sub.ID)

	active, _, err := sub.Activate(testNow.AddDate(0, 1, 0), chargePtr(event.Charge()), testNow)
	require.NoError(t, err)

	subRepo := new(MockSubscriptionRepository)
	tenantRepo := new(MockTenantRepository)
	publisher := &recordingPublisher{}

	subRepo.On("FindByID", mock.Anything, tenant.ID, sub.ID).Return(&active, nil)
	// the tenant write failed on the previous delivery
	tenantRepo.On("FindByID", mock.Anything, tenant.ID).Return(tenant, nil)
	tenantRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	h := NewPaymentCompletedHandler(subRepo, tenantRepo, publisher, nil, zap.NewNop())
	h.now = fixedClock

	require.NoError(t, h.Handle(ctx, event))

	subRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	tenantRepo.AssertCalled(t, "Update", mock.Anything, mock.Anything)
	assert.Equal(t, []string{billing.EventTypeSubscriptionActivated, identity.EventTypeTenantStatusChanged}, publisher.types())

	again := publisher.events[0].(*billing.SubscriptionActivatedEvent)
	require.NotNil(t, again.PaymentID)
	assert.Equal(t, event.PaymentID, *again.PaymentID)
}

func TestPaymentCompletedHandler_RenewsWithNewPayment(t *testing.T) {
	ctx := context.Background()
	tenant := newTrialTenant(t)
	sub := newTrialSubscription(t, tenant.ID)
	first := newCompletedEvent(t, tenant.ID, sub.ID)
	endsAt := testNow.AddDate(0, 0, 3)
	active, _, err := sub.Activate(endsAt, chargePtr(first.Charge()), testNow.Add(-time.Hour))
	require.NoError(t, err)

	activeTenant, _, err := tenant.Activate(endsAt, testNow.Add(-time.Hour))
	require.NoError(t, err)

	second := newCompletedEvent(t, tenant.ID, sub.ID)

	subRepo := new(MockSubscriptionRepository)
	tenantRepo := new(MockTenantRepository)
	publisher := &recordingPublisher{}

	subRepo.On("FindByID", mock.Anything, tenant.ID, sub.ID).Return(&active, nil)
	subRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	tenantRepo.On("FindByID", mock.Anything, tenant.ID).Return(&activeTenant, nil)
	tenantRepo.On("Update", mock.Anything, mock.MatchedBy(func(tn *identity.Tenant) bool {
		return tn.SubscriptionEndsAt.Equal(billing.PlanMonthly.PeriodEnd(endsAt))
	})).Return(nil)

	h := NewPaymentCompletedHandler(subRepo, tenantRepo, publisher, nil, zap.NewNop())
	h.now = fixedClock

	require.NoError(t, h.Handle(ctx, second))

	require.Len(t, publisher.events, 1)
	renewed := publisher.events[0].(*billing.SubscriptionRenewedEvent)
	assert.True(t, renewed.PeriodStart.Equal(endsAt))
	assert.True(t, renewed.EndsAt.Equal(billing.PlanMonthly.PeriodEnd(endsAt)))
	tenantRepo.AssertExpectations(t)
}

func TestPaymentCompletedHandler_NoSubscription(t *testing.T) {
	p, _, err := billing.NewPayment(billing.NewPaymentParams{
		TenantID:        uuid.New(),
		Provider:        "hmac",
		PaymentIntentID: "pi_9",
		Amount:          decimal.NewFromInt(5),
		Currency:        billing.USD,
	}, testNow)
	require.NoError(t, err)
	_, events, err := p.Complete("ch_9", nil, testNow)
	require.NoError(t, err)

	subRepo := new(MockSubscriptionRepository)
	h := NewPaymentCompletedHandler(subRepo, nil, &recordingPublisher{}, nil, zap.NewNop())
	require.NoError(t, h.Handle(context.Background(), events[0]))
	subRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything, mock.Anything)
}

func activatedEvent(t *testing.T) *billing.SubscriptionActivatedEvent {
	t.Helper()
	tenant := newTrialTenant(t)
	sub := newTrialSubscription(t, tenant.ID)
	completed := newCompletedEvent(t, tenant.ID, sub.ID)
	_, events, err := sub.Activate(testNow.AddDate(0, 1, 0), chargePtr(completed.Charge()), testNow)
	require.NoError(t, err)
	return events[0].(*billing.SubscriptionActivatedEvent)
}

func newInvoiceHandler(invoiceRepo *MockInvoiceRepository, provider *MockInvoiceProvider, publisher shared.Publisher, log *zap.Logger) *SubscriptionInvoiceHandler {
	h := NewSubscriptionInvoiceHandler(SubscriptionInvoiceHandlerConfig{
		InvoiceRepo: invoiceRepo,
		Provider:    provider,
		Numbers:     &fixedNumbers{},
		Policy:      InvoicePolicy{TaxRate: decimal.RequireFromString("0.2")},
		Publisher:   publisher,
		Logger:      log,
	})
	h.now = fixedClock
	return h
}

func TestSubscriptionInvoiceHandler_SkipsInvoicedPeriod(t *testing.T) {
	event := activatedEvent(t)
	invoiceRepo := new(MockInvoiceRepository)
	invoiceRepo.On("ExistsForPeriod", mock.Anything, event.TenantID(), event.SubscriptionID, event.StartsAt).Return(true, nil)

	h := newInvoiceHandler(invoiceRepo, new(MockInvoiceProvider), &recordingPublisher{}, zap.NewNop())
	require.NoError(t, h.Handle(context.Background(), event))
	invoiceRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubscriptionInvoiceHandler_ProviderDownLeavesDraft(t *testing.T) {
	event := activatedEvent(t)
	invoiceRepo := new(MockInvoiceRepository)
	provider := new(MockInvoiceProvider)
	publisher := &recordingPublisher{}
	core, logs := observer.New(zap.WarnLevel)

	invoiceRepo.On("ExistsForPeriod", mock.Anything, event.TenantID(), event.SubscriptionID, event.StartsAt).Return(false, nil)
	invoiceRepo.On("ExistsBySourceEvent", mock.Anything, event.EventID()).Return(false, nil)
	invoiceRepo.On("Create", mock.Anything, mock.MatchedBy(func(inv *billing.Invoice) bool {
		return inv.Status == billing.InvoiceStatusDraft &&
			inv.Total.Equal(decimal.NewFromInt(120)) &&
			inv.InvoiceNumber == "INV-TEST-1" &&
			*inv.SourceEventID == event.EventID()
	})).Return(nil)
	provider.On("CreateInvoice", mock.Anything, mock.Anything).Return(nil, billing.NewProviderError("invoicing", errors.New("503")))

	h := newInvoiceHandler(invoiceRepo, provider, publisher, zap.New(core))
	require.NoError(t, h.Handle(context.Background(), event))

	invoiceRepo.AssertExpectations(t)
	invoiceRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	assert.Equal(t, []string{billing.EventTypeInvoiceCreated}, publisher.types())
	assert.Equal(t, 1, logs.FilterMessage("invoice provider unavailable, invoice left in draft").Len())
}

func TestSubscriptionInvoiceHandler_LostInsertRaceIsSuccess(t *testing.T) {
	event := activatedEvent(t)
	invoiceRepo := new(MockInvoiceRepository)
	provider := new(MockInvoiceProvider)

	invoiceRepo.On("ExistsForPeriod", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	invoiceRepo.On("ExistsBySourceEvent", mock.Anything, event.EventID()).Return(false, nil)
	invoiceRepo.On("Create", mock.Anything, mock.Anything).
		Return(shared.WrapDomainError(shared.CodeAlreadyExists, "Resource already exists", errors.New("unique")))

	h := newInvoiceHandler(invoiceRepo, provider, &recordingPublisher{}, zap.NewNop())
	require.NoError(t, h.Handle(context.Background(), event))
	provider.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything)
}

func TestPaymentRefundedHandler_CreatesNegativeInvoice(t *testing.T) {
	tenantID := uuid.New()
	subID := uuid.New()
	p, _, err := billing.NewPayment(billing.NewPaymentParams{
		TenantID:        tenantID,
		SubscriptionID:  &subID,
		Provider:        "hmac",
		PaymentIntentID: "pi_123",
		Amount:          decimal.NewFromInt(100),
		Currency:        billing.USD,
	}, testNow)
	require.NoError(t, err)
	completed, _, err := p.Complete("ch_1", nil, testNow)
	require.NoError(t, err)
	_, events, err := completed.Refund("re_1", decimal.NewFromInt(100), testNow)
	require.NoError(t, err)
	refunded := events[0]

	invoiceRepo := new(MockInvoiceRepository)
	provider := new(MockInvoiceProvider)
	invoiceRepo.On("ExistsForPayment", mock.Anything, tenantID, completed.ID, billing.InvoiceTypeRefund).Return(false, nil)
	invoiceRepo.On("ExistsBySourceEvent", mock.Anything, refunded.EventID()).Return(false, nil)
	var created billing.Invoice
	invoiceRepo.On("Create", mock.Anything, mock.MatchedBy(func(inv *billing.Invoice) bool {
		return inv.Type == billing.InvoiceTypeRefund && inv.Total.Equal(decimal.NewFromInt(-120))
	})).Run(func(args mock.Arguments) {
		created = *args.Get(1).(*billing.Invoice)
	}).Return(nil)
	provider.On("CreateInvoice", mock.Anything, mock.Anything).Return(&billing.InvoiceResult{ProviderInvoiceID: "prov-1"}, nil)
	invoiceRepo.On("FindByID", mock.Anything, tenantID, mock.Anything).Return(&created, nil)
	invoiceRepo.On("Update", mock.Anything, mock.MatchedBy(func(inv *billing.Invoice) bool {
		return inv.Status == billing.InvoiceStatusPending && inv.ProviderInvoiceID == "prov-1"
	})).Return(nil)

	h := NewPaymentRefundedHandler(invoiceRepo, provider, &fixedNumbers{}, InvoicePolicy{TaxRate: decimal.RequireFromString("0.2")}, &recordingPublisher{}, nil, zap.NewNop())
	h.now = fixedClock
	require.NoError(t, h.Handle(context.Background(), refunded))

	invoiceRepo.AssertExpectations(t)
	provider.AssertExpectations(t)
}
