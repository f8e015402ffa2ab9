package billing

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/identity"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/event"
	"github.com/saas/backend/internal/infrastructure/invoicing"
	"github.com/saas/backend/internal/infrastructure/payment"
	"github.com/saas/backend/internal/infrastructure/persistence"
	"github.com/saas/backend/internal/infrastructure/persistence/models"
	"github.com/saas/backend/internal/infrastructure/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const webhookSecret = "whsec_test"

// sagaFixture wires the billing saga against in-memory sqlite and the
// in-process publisher, the same way cmd/server does with real backends.
type sagaFixture struct {
	tenantRepo  *persistence.GormTenantRepository
	subRepo     *persistence.GormSubscriptionRepository
	paymentRepo *persistence.GormPaymentRepository
	invoiceRepo *persistence.GormInvoiceRepository

	gateway    *payment.HMACProvider
	invoices   *invoicing.NoopProvider
	documents  *storage.MemoryDocumentStore
	dispatcher *event.Dispatcher
	publisher  *event.InProcessPublisher

	tenants       *TenantService
	subscriptions *SubscriptionService
	payments      *PaymentService
	invoiceSvc    *InvoiceService
	expiry        *ExpiryService
}

func setupSagaDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()
	db := setupSagaDB(t)
	log := zap.NewNop()

	f := &sagaFixture{
		tenantRepo:  persistence.NewGormTenantRepository(db),
		subRepo:     persistence.NewGormSubscriptionRepository(db),
		paymentRepo: persistence.NewGormPaymentRepository(db),
		invoiceRepo: persistence.NewGormInvoiceRepository(db),
		gateway:     payment.NewHMACProvider(webhookSecret, 0),
		invoices:    invoicing.NewNoopProvider(),
		documents:   storage.NewMemoryDocumentStore(""),
	}
	f.dispatcher = event.NewDispatcher(event.NewHandlerRegistry(), log)
	f.publisher = event.NewInProcessPublisher(f.dispatcher, log, nil)

	registry, err := payment.NewRegistry(payment.ProviderHMAC, f.gateway)
	require.NoError(t, err)
	numbers, err := invoicing.NewSnowflakeNumberGenerator("INV", 1)
	require.NoError(t, err)
	policy := InvoicePolicy{TaxRate: decimal.RequireFromString("0.2"), DueDays: 14}

	f.tenants = NewTenantService(f.tenantRepo, f.publisher, log)
	f.subscriptions = NewSubscriptionService(SubscriptionServiceConfig{
		SubscriptionRepo: f.subRepo,
		TenantRepo:       f.tenantRepo,
		Publisher:        f.publisher,
		DefaultCurrency:  billing.USD,
		Logger:           log,
	})
	f.payments = NewPaymentService(PaymentServiceConfig{
		PaymentRepo:      f.paymentRepo,
		SubscriptionRepo: f.subRepo,
		TenantRepo:       f.tenantRepo,
		Providers:        registry,
		Publisher:        f.publisher,
		Logger:           log,
	})
	f.invoiceSvc = NewInvoiceService(InvoiceServiceConfig{
		InvoiceRepo:   f.invoiceRepo,
		TenantRepo:    f.tenantRepo,
		Provider:      f.invoices,
		DocumentStore: f.documents,
		Numbers:       numbers,
		Policy:        policy,
		Publisher:     f.publisher,
		Logger:        log,
	})
	f.expiry = NewExpiryService(f.subRepo, f.tenantRepo, f.publisher, 10, nil, log)

	f.dispatcher.Subscribe(NewPaymentCompletedHandler(f.subRepo, f.tenantRepo, f.publisher, nil, log))
	f.dispatcher.Subscribe(NewSubscriptionInvoiceHandler(SubscriptionInvoiceHandlerConfig{
		InvoiceRepo: f.invoiceRepo,
		Provider:    f.invoices,
		Numbers:     numbers,
		Policy:      policy,
		Publisher:   f.publisher,
		Logger:      log,
	}))
	f.dispatcher.Subscribe(NewPaymentRefundedHandler(f.invoiceRepo, f.invoices, numbers, policy, f.publisher, nil, log))
	return f
}

// seedPendingPayment creates a tenant in trial, a monthly subscription and a
// pending payment for it under intentID
func (f *sagaFixture) seedPendingPayment(t *testing.T, intentID string) (uuid.UUID, uuid.UUID, *billing.Payment) {
	t.Helper()
	ctx := context.Background()

	tenant, err := f.tenants.CreateTenant(ctx, CreateTenantInput{
		Name:      "Acme",
		Subdomain: "acme",
		Email:     "billing@acme.io",
	})
	require.NoError(t, err)

	sub, err := f.subscriptions.CreateSubscription(ctx, CreateSubscriptionInput{
		TenantID: tenant.ID,
		Plan:     "monthly",
		Amount:   decimal.NewFromInt(100),
		Currency: "USD",
	})
	require.NoError(t, err)

	subID := sub.ID
	p, _, err := billing.NewPayment(billing.NewPaymentParams{
		TenantID:        tenant.ID,
		SubscriptionID:  &subID,
		Provider:        payment.ProviderHMAC,
		PaymentIntentID: intentID,
		Method:          billing.PaymentMethodCard,
		Amount:          decimal.NewFromInt(100),
		Currency:        billing.USD,
	}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, f.paymentRepo.Create(ctx, p))
	return tenant.ID, sub.ID, p
}

func (f *sagaFixture) webhook(t *testing.T, intentID, status string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":                "evt_" + intentID,
		"transaction_id":    "ch_" + intentID,
		"payment_intent_id": intentID,
		"status":            status,
		"amount":            "100",
		"currency":          "USD",
	})
	require.NoError(t, err)
	return payload, f.gateway.Sign(payload, time.Now())
}

func TestBillingSaga_PaymentActivatesSubscriptionAndInvoices(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	tenantID, subID, p := f.seedPendingPayment(t, "pi_123")

	payload, signature := f.webhook(t, "pi_123", "completed")
	outcome, err := f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, signature, payload)
	require.NoError(t, err)
	assert.True(t, outcome.Handled)
	assert.False(t, outcome.Duplicate)
	assert.Equal(t, p.ID, outcome.PaymentID)
	assert.Equal(t, string(billing.PaymentStatusCompleted), outcome.Status)

	storedPayment, err := f.paymentRepo.FindByID(ctx, tenantID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentStatusCompleted, storedPayment.Status)
	assert.Equal(t, "ch_pi_123", storedPayment.ProviderTransactionID)

	sub, err := f.subRepo.FindByID(ctx, tenantID, subID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.EndsAt)
	assert.WithinDuration(t, billing.PlanMonthly.PeriodEnd(time.Now().UTC()), *sub.EndsAt, time.Minute)
	require.NotNil(t, sub.LastPaymentID)
	assert.Equal(t, p.ID, *sub.LastPaymentID)

	tenant, err := f.tenantRepo.FindByID(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, identity.TenantStatusActive, tenant.Status)
	require.NotNil(t, tenant.SubscriptionEndsAt)
	assert.True(t, sub.EndsAt.Equal(*tenant.SubscriptionEndsAt))

	invoices, err := f.invoiceRepo.FindBySubscription(ctx, tenantID, subID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	inv := invoices[0]
	assert.True(t, strings.HasPrefix(inv.InvoiceNumber, "INV-"))
	assert.Equal(t, billing.InvoiceTypeSubscription, inv.Type)
	assert.Equal(t, billing.InvoiceStatusPending, inv.Status)
	assert.Equal(t, "noop-"+inv.InvoiceNumber, inv.ProviderInvoiceID)
	assert.True(t, decimal.NewFromInt(100).Equal(inv.Subtotal))
	assert.True(t, decimal.NewFromInt(20).Equal(inv.Tax))
	assert.True(t, decimal.NewFromInt(120).Equal(inv.Total))
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Subscription – monthly", inv.Items[0].Description)
	require.NotNil(t, inv.PeriodStart)
	require.NotNil(t, inv.PeriodEnd)
	assert.True(t, inv.PeriodEnd.Equal(*sub.EndsAt))

	t.Run("redelivered webhook changes nothing", func(t *testing.T) {
		endsAt := *sub.EndsAt
		payload, signature := f.webhook(t, "pi_123", "completed")
		outcome, err := f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, signature, payload)
		require.NoError(t, err)
		assert.True(t, outcome.Duplicate)

		again, err := f.subRepo.FindByID(ctx, tenantID, subID)
		require.NoError(t, err)
		assert.True(t, endsAt.Equal(*again.EndsAt))

		invoices, err := f.invoiceRepo.FindBySubscription(ctx, tenantID, subID)
		require.NoError(t, err)
		assert.Len(t, invoices, 1)
	})

	t.Run("redelivered completion event changes nothing", func(t *testing.T) {
		current, err := f.paymentRepo.FindByID(ctx, tenantID, p.ID)
		require.NoError(t, err)
		completed := billing.NewPaymentCompletedEvent(current, time.Now().UTC())
		require.NoError(t, f.dispatcher.Dispatch(ctx, completed))

		again, err := f.subRepo.FindByID(ctx, tenantID, subID)
		require.NoError(t, err)
		assert.True(t, sub.EndsAt.Equal(*again.EndsAt))

		invoices, err := f.invoiceRepo.FindBySubscription(ctx, tenantID, subID)
		require.NoError(t, err)
		assert.Len(t, invoices, 1)
	})
}

func TestBillingSaga_WebhookRetriedAfterBrokerOutage(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	tenantID, subID, p := f.seedPendingPayment(t, "pi_123")

	broker := &brokerOutage{next: f.publisher, down: true}
	f.payments.publisher = broker

	payload, signature := f.webhook(t, "pi_123", "completed")
	_, err := f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, signature, payload)
	require.Error(t, err, "the provider must be told to retry")

	stored, err := f.paymentRepo.FindByID(ctx, tenantID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentStatusCompleted, stored.Status)
	sub, err := f.subRepo.FindByID(ctx, tenantID, subID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubscriptionStatusTrial, sub.Status)

	broker.down = false
	outcome, err := f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, signature, payload)
	require.NoError(t, err)
	assert.True(t, outcome.Duplicate)
	assert.Equal(t, 2, broker.calls)

	sub, err = f.subRepo.FindByID(ctx, tenantID, subID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubscriptionStatusActive, sub.Status)

	tenant, err := f.tenantRepo.FindByID(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, identity.TenantStatusActive, tenant.Status)

	invoices, err := f.invoiceRepo.FindBySubscription(ctx, tenantID, subID)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestBillingSaga_ActivationRetriedAfterBrokerOutage(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	tenantID, subID, p := f.seedPendingPayment(t, "pi_123")

	completedPayment, _, err := p.Complete("ch_pi_123", nil, time.Now().UTC())
	require.NoError(t, err)
	completed := billing.NewPaymentCompletedEvent(&completedPayment, time.Now().UTC())

	broker := &brokerOutage{next: f.publisher, down: true}
	h := NewPaymentCompletedHandler(f.subRepo, f.tenantRepo, broker, nil, zap.NewNop())

	require.Error(t, h.Handle(ctx, completed), "the job must stay on the queue")

	sub, err := f.subRepo.FindByID(ctx, tenantID, subID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubscriptionStatusActive, sub.Status)
	invoices, err := f.invoiceRepo.FindBySubscription(ctx, tenantID, subID)
	require.NoError(t, err)
	assert.Empty(t, invoices)

	broker.down = false
	require.NoError(t, h.Handle(ctx, completed))

	again, err := f.subRepo.FindByID(ctx, tenantID, subID)
	require.NoError(t, err)
	assert.True(t, sub.EndsAt.Equal(*again.EndsAt), "redelivery must not extend the period")

	invoices, err = f.invoiceRepo.FindBySubscription(ctx, tenantID, subID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.NotNil(t, invoices[0].PeriodStart)
	assert.True(t, invoices[0].PeriodStart.Equal(*sub.PeriodStart))

	tenant, err := f.tenantRepo.FindByID(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, identity.TenantStatusActive, tenant.Status)

	// A third delivery finds the period billed.
	require.NoError(t, h.Handle(ctx, completed))
	invoices, err = f.invoiceRepo.FindBySubscription(ctx, tenantID, subID)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestBillingSaga_RefundRetriedAfterBrokerOutage(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	tenantID, subID, p := f.seedPendingPayment(t, "pi_123")

	payload, signature := f.webhook(t, "pi_123", "completed")
	_, err := f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, signature, payload)
	require.NoError(t, err)

	broker := &brokerOutage{next: f.publisher, down: true}
	f.payments.publisher = broker

	_, err = f.payments.RefundPayment(ctx, RefundPaymentInput{TenantID: tenantID, PaymentID: p.ID})
	require.Error(t, err)

	stored, err := f.paymentRepo.FindByID(ctx, tenantID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentStatusRefunded, stored.Status)

	broker.down = false
	for i := 0; i < 2; i++ {
		refunded, err := f.payments.RefundPayment(ctx, RefundPaymentInput{TenantID: tenantID, PaymentID: p.ID})
		require.NoError(t, err)
		assert.Equal(t, string(billing.PaymentStatusRefunded), refunded.Status)
	}

	invoices, err := f.invoiceRepo.FindBySubscription(ctx, tenantID, subID)
	require.NoError(t, err)
	credits := 0
	for _, inv := range invoices {
		if inv.Type == billing.InvoiceTypeRefund {
			credits++
		}
	}
	assert.Equal(t, 1, credits)
}

func TestBillingSaga_InvalidSignatureMutatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	tenantID, subID, p := f.seedPendingPayment(t, "pi_123")

	payload, _ := f.webhook(t, "pi_123", "completed")
	forged := payment.NewHMACProvider("other-secret", 0).Sign(payload, time.Now())

	_, err := f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, forged, payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)

	stored, err := f.paymentRepo.FindByID(ctx, tenantID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentStatusPending, stored.Status)

	sub, err := f.subRepo.FindByID(ctx, tenantID, subID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubscriptionStatusTrial, sub.Status)

	invoices, err := f.invoiceRepo.FindBySubscription(ctx, tenantID, subID)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestBillingSaga_UnknownIntentAndProvider(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	f.seedPendingPayment(t, "pi_123")

	payload, signature := f.webhook(t, "pi_missing", "completed")
	_, err := f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, signature, payload)
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)

	_, err = f.payments.ProcessPaymentWebhook(ctx, "paypal", signature, payload)
	assert.ErrorIs(t, err, billing.ErrProviderNotFound)
}

func TestBillingSaga_FailedPaymentLeavesSubscriptionInTrial(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	tenantID, subID, p := f.seedPendingPayment(t, "pi_123")

	payload, signature := f.webhook(t, "pi_123", "failed")
	outcome, err := f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, signature, payload)
	require.NoError(t, err)
	assert.Equal(t, string(billing.PaymentStatusFailed), outcome.Status)

	stored, err := f.paymentRepo.FindByID(ctx, tenantID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentStatusFailed, stored.Status)

	sub, err := f.subRepo.FindByID(ctx, tenantID, subID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubscriptionStatusTrial, sub.Status)
}

func TestBillingSaga_PendingWebhookIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	tenantID, _, p := f.seedPendingPayment(t, "pi_123")

	payload, signature := f.webhook(t, "pi_123", "processing")
	outcome, err := f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, signature, payload)
	require.NoError(t, err)
	assert.False(t, outcome.Handled)

	stored, err := f.paymentRepo.FindByID(ctx, tenantID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentStatusPending, stored.Status)
}

func TestBillingSaga_RefundIssuesCreditInvoice(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	tenantID, subID, p := f.seedPendingPayment(t, "pi_123")

	_, err := f.payments.RefundPayment(ctx, RefundPaymentInput{TenantID: tenantID, PaymentID: p.ID})
	assert.ErrorIs(t, err, billing.ErrRefundNotAllowed)

	payload, signature := f.webhook(t, "pi_123", "completed")
	_, err = f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, signature, payload)
	require.NoError(t, err)

	partial := decimal.NewFromInt(40)
	refunded, err := f.payments.RefundPayment(ctx, RefundPaymentInput{TenantID: tenantID, PaymentID: p.ID, Amount: &partial})
	require.NoError(t, err)
	assert.Equal(t, string(billing.PaymentStatusRefunded), refunded.Status)

	invoices, err := f.invoiceRepo.FindBySubscription(ctx, tenantID, subID)
	require.NoError(t, err)
	require.Len(t, invoices, 2)

	var credit *billing.Invoice
	for i := range invoices {
		if invoices[i].Type == billing.InvoiceTypeRefund {
			credit = &invoices[i]
		}
	}
	require.NotNil(t, credit)
	assert.True(t, decimal.NewFromInt(-40).Equal(credit.Subtotal))
	assert.True(t, decimal.NewFromInt(-48).Equal(credit.Total))
	require.NotNil(t, credit.PaymentID)
	assert.Equal(t, p.ID, *credit.PaymentID)
}

func TestBillingSaga_OneActiveSubscriptionPerTenant(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	tenantID, _, _ := f.seedPendingPayment(t, "pi_123")

	payload, signature := f.webhook(t, "pi_123", "completed")
	_, err := f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, signature, payload)
	require.NoError(t, err)

	_, err = f.subscriptions.CreateSubscription(ctx, CreateSubscriptionInput{
		TenantID: tenantID,
		Plan:     "yearly",
		Amount:   decimal.NewFromInt(1000),
		Currency: "USD",
	})
	assert.ErrorIs(t, err, billing.ErrActiveSubscriptionExists)
}

func TestBillingSaga_InvoiceLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	tenantID, subID, _ := f.seedPendingPayment(t, "pi_123")

	payload, signature := f.webhook(t, "pi_123", "completed")
	_, err := f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, signature, payload)
	require.NoError(t, err)

	invoices, err := f.invoiceRepo.FindBySubscription(ctx, tenantID, subID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	invoiceID := invoices[0].ID

	_, err = f.invoiceSvc.InvoiceDocumentURL(ctx, tenantID, invoiceID, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	archived, err := f.invoiceSvc.ArchiveInvoiceDocument(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	require.NotEmpty(t, archived.DocumentKey)
	assert.True(t, strings.HasPrefix(archived.DocumentKey, "tenants/"+tenantID.String()+"/invoices/"))
	doc, ok := f.documents.Get(archived.DocumentKey)
	require.True(t, ok)
	assert.Contains(t, string(doc.Data), archived.InvoiceNumber)

	link, err := f.invoiceSvc.InvoiceDocumentURL(ctx, tenantID, invoiceID, 0)
	require.NoError(t, err)
	assert.Contains(t, link.URL, archived.DocumentKey)
	assert.True(t, link.ExpiresAt.After(time.Now()))

	sent, err := f.invoiceSvc.SendInvoice(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, string(billing.InvoiceStatusSent), sent.Status)
	email, ok := f.invoices.SentTo(invoices[0].ProviderInvoiceID)
	require.True(t, ok)
	assert.Equal(t, "billing@acme.io", email)

	paid, err := f.invoiceSvc.MarkInvoicePaid(ctx, tenantID, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, string(billing.InvoiceStatusPaid), paid.Status)

	_, err = f.invoiceSvc.CancelInvoice(ctx, tenantID, invoiceID)
	assert.ErrorIs(t, err, billing.ErrInvoicePaid)
}

func TestBillingSaga_ExpiryLapsesTenant(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	tenantID, subID, _ := f.seedPendingPayment(t, "pi_123")

	payload, signature := f.webhook(t, "pi_123", "completed")
	_, err := f.payments.ProcessPaymentWebhook(ctx, payment.ProviderHMAC, signature, payload)
	require.NoError(t, err)

	f.expiry.now = func() time.Time { return time.Now().UTC().AddDate(0, 2, 0) }
	result, err := f.expiry.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, 1, result.Lapsed)

	sub, err := f.subRepo.FindByID(ctx, tenantID, subID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubscriptionStatusExpired, sub.Status)

	tenant, err := f.tenantRepo.FindByID(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, identity.TenantStatusInactive, tenant.Status)

	again, err := f.expiry.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Expired)
	assert.Zero(t, again.Lapsed)
}

func TestBillingSaga_TrialExpiry(t *testing.T) {
	ctx := context.Background()
	f := newSagaFixture(t)
	tenant, err := f.tenants.CreateTenant(ctx, CreateTenantInput{Name: "Globex", Subdomain: "globex", Email: "ops@globex.io"})
	require.NoError(t, err)

	result, err := f.expiry.ExpireTrials(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Expired)

	f.expiry.now = func() time.Time { return time.Now().UTC().Add(identity.TrialPeriod + time.Hour) }
	result, err = f.expiry.ExpireTrials(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)

	stored, err := f.tenantRepo.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.TenantStatusExpired, stored.Status)
}
