package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/saas/backend/internal/application/billing"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/scheduler"
	"github.com/saas/backend/internal/interfaces/http/dto"
	"github.com/saas/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// MockTenantUseCases is a mock implementation of TenantUseCases
type MockTenantUseCases struct {
	mock.Mock
}

func (m *MockTenantUseCases) CreateTenant(ctx context.Context, input billingapp.CreateTenantInput) (*billingapp.TenantDTO, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.TenantDTO), args.Error(1)
}

func (m *MockTenantUseCases) GetTenant(ctx context.Context, id uuid.UUID) (*billingapp.TenantDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.TenantDTO), args.Error(1)
}

func (m *MockTenantUseCases) ListTenants(ctx context.Context, filter billingapp.ListFilter) (shared.Paginated[billingapp.TenantDTO], error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(shared.Paginated[billingapp.TenantDTO]), args.Error(1)
}

// MockSubscriptionUseCases is a mock implementation of SubscriptionUseCases
type MockSubscriptionUseCases struct {
	mock.Mock
}

func (m *MockSubscriptionUseCases) subscription(args mock.Arguments) (*billingapp.SubscriptionDTO, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.SubscriptionDTO), args.Error(1)
}

func (m *MockSubscriptionUseCases) CreateSubscription(ctx context.Context, input billingapp.CreateSubscriptionInput) (*billingapp.SubscriptionDTO, error) {
	return m.subscription(m.Called(ctx, input))
}

func (m *MockSubscriptionUseCases) ActivateSubscription(ctx context.Context, input billingapp.ActivateSubscriptionInput) (*billingapp.SubscriptionDTO, error) {
	return m.subscription(m.Called(ctx, input))
}

func (m *MockSubscriptionUseCases) CancelSubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) (*billingapp.SubscriptionDTO, error) {
	return m.subscription(m.Called(ctx, tenantID, subscriptionID))
}

func (m *MockSubscriptionUseCases) SuspendSubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) (*billingapp.SubscriptionDTO, error) {
	return m.subscription(m.Called(ctx, tenantID, subscriptionID))
}

func (m *MockSubscriptionUseCases) GetSubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) (*billingapp.SubscriptionDTO, error) {
	return m.subscription(m.Called(ctx, tenantID, subscriptionID))
}

func (m *MockSubscriptionUseCases) ListSubscriptions(ctx context.Context, tenantID uuid.UUID, filter billingapp.ListFilter) (shared.Paginated[billingapp.SubscriptionDTO], error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(shared.Paginated[billingapp.SubscriptionDTO]), args.Error(1)
}

// MockPaymentUseCases is a mock implementation of PaymentUseCases
type MockPaymentUseCases struct {
	mock.Mock
}

func (m *MockPaymentUseCases) CreatePaymentIntent(ctx context.Context, input billingapp.CreatePaymentIntentInput) (*billingapp.PaymentIntentResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.PaymentIntentResult), args.Error(1)
}

func (m *MockPaymentUseCases) ProcessPaymentWebhook(ctx context.Context, providerName, signature string, payload []byte) (*billingapp.WebhookOutcome, error) {
	args := m.Called(ctx, providerName, signature, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.WebhookOutcome), args.Error(1)
}

func (m *MockPaymentUseCases) RefundPayment(ctx context.Context, input billingapp.RefundPaymentInput) (*billingapp.PaymentDTO, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.PaymentDTO), args.Error(1)
}

func (m *MockPaymentUseCases) GetPayment(ctx context.Context, tenantID, paymentID uuid.UUID) (*billingapp.PaymentDTO, error) {
	args := m.Called(ctx, tenantID, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.PaymentDTO), args.Error(1)
}

func (m *MockPaymentUseCases) ListPayments(ctx context.Context, tenantID uuid.UUID, filter billingapp.ListFilter) (shared.Paginated[billingapp.PaymentDTO], error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(shared.Paginated[billingapp.PaymentDTO]), args.Error(1)
}

// MockInvoiceUseCases is a mock implementation of InvoiceUseCases
type MockInvoiceUseCases struct {
	mock.Mock
}

func (m *MockInvoiceUseCases) invoice(args mock.Arguments) (*billingapp.InvoiceDTO, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.InvoiceDTO), args.Error(1)
}

func (m *MockInvoiceUseCases) IssueInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error) {
	return m.invoice(m.Called(ctx, tenantID, invoiceID))
}

func (m *MockInvoiceUseCases) SendInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error) {
	return m.invoice(m.Called(ctx, tenantID, invoiceID))
}

func (m *MockInvoiceUseCases) MarkInvoicePaid(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error) {
	return m.invoice(m.Called(ctx, tenantID, invoiceID))
}

func (m *MockInvoiceUseCases) CancelInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error) {
	return m.invoice(m.Called(ctx, tenantID, invoiceID))
}

func (m *MockInvoiceUseCases) ArchiveInvoiceDocument(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error) {
	return m.invoice(m.Called(ctx, tenantID, invoiceID))
}

func (m *MockInvoiceUseCases) InvoiceDocumentURL(ctx context.Context, tenantID, invoiceID uuid.UUID, expiresIn time.Duration) (*billingapp.DocumentURL, error) {
	args := m.Called(ctx, tenantID, invoiceID, expiresIn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.DocumentURL), args.Error(1)
}

func (m *MockInvoiceUseCases) GetInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billingapp.InvoiceDTO, error) {
	return m.invoice(m.Called(ctx, tenantID, invoiceID))
}

func (m *MockInvoiceUseCases) ListInvoices(ctx context.Context, tenantID uuid.UUID, filter billingapp.ListFilter) (shared.Paginated[billingapp.InvoiceDTO], error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(shared.Paginated[billingapp.InvoiceDTO]), args.Error(1)
}

// MockDeadLetterUseCases is a mock implementation of DeadLetterUseCases
type MockDeadLetterUseCases struct {
	mock.Mock
}

func (m *MockDeadLetterUseCases) ListDeadLetters(ctx context.Context, filter billingapp.ListFilter) (shared.Paginated[billingapp.DeadLetterDTO], error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(shared.Paginated[billingapp.DeadLetterDTO]), args.Error(1)
}

func (m *MockDeadLetterUseCases) RequeueDeadLetter(ctx context.Context, id uuid.UUID) (*billingapp.DeadLetterDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.DeadLetterDTO), args.Error(1)
}

func (m *MockDeadLetterUseCases) DiscardDeadLetter(ctx context.Context, id uuid.UUID) (*billingapp.DeadLetterDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.DeadLetterDTO), args.Error(1)
}

// MockExpiryRunner is a mock implementation of ExpiryRunner
type MockExpiryRunner struct {
	mock.Mock
}

func (m *MockExpiryRunner) RunOnce(ctx context.Context) (scheduler.RunResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(scheduler.RunResult), args.Error(1)
}

// tenantEngine mounts routes under /tenants/:tenant_id with TenantScope applied
func tenantEngine(register func(g *gin.RouterGroup)) *gin.Engine {
	r := gin.New()
	register(r.Group("/tenants/:tenant_id", middleware.TenantScope()))
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// decodeData re-decodes the response data into out
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}
