package payment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_test_secret"

// stripeAPI is a fake Stripe endpoint that records form-encoded requests
type stripeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

type recordedRequest struct {
	path           string
	form           url.Values
	idempotencyKey string
}

func (s *stripeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(raw))

	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{
		path:           r.URL.Path,
		form:           form,
		idempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	status, body := s.status, s.body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func newTestStripeProvider(t *testing.T, api *stripeAPI) *StripeProvider {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	return NewStripeProvider(StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		BaseURL:       server.URL,
	}, zap.NewNop())
}

func TestStripeProvider_CreatePaymentIntent(t *testing.T) {
	api := &stripeAPI{status: http.StatusOK, body: `{
		"id": "pi_123",
		"object": "payment_intent",
		"client_secret": "pi_123_secret_abc",
		"amount": 10000,
		"currency": "usd",
		"status": "requires_payment_method"
	}`}
	p := newTestStripeProvider(t, api)
	tenantID := uuid.New()

	result, err := p.CreatePaymentIntent(context.Background(), billing.IntentRequest{
		IdempotencyKey: "intent-1",
		TenantID:       tenantID,
		Amount:         decimal.NewFromInt(100),
		Currency:       billing.USD,
		Description:    "Monthly plan",
		Metadata:       map[string]string{"subscription_id": "sub_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", result.PaymentIntentID)
	assert.Equal(t, "pi_123_secret_abc", result.ClientSecret)

	require.Len(t, api.requests, 1)
	req := api.requests[0]
	assert.Equal(t, "/v1/payment_intents", req.path)
	assert.Equal(t, "10000", req.form.Get("amount"))
	assert.Equal(t, "usd", req.form.Get("currency"))
	assert.Equal(t, "true", req.form.Get("automatic_payment_methods[enabled]"))
	assert.Equal(t, tenantID.String(), req.form.Get("metadata[tenant_id]"))
	assert.Equal(t, "sub_1", req.form.Get("metadata[subscription_id]"))
	assert.Equal(t, "intent-1", req.idempotencyKey)
}

func TestStripeProvider_CreatePaymentIntent_Declined(t *testing.T) {
	api := &stripeAPI{status: http.StatusBadRequest, body: `{"error":{"type":"invalid_request_error","message":"Amount must be at least 50 cents"}}`}
	p := newTestStripeProvider(t, api)

	_, err := p.CreatePaymentIntent(context.Background(), billing.IntentRequest{
		TenantID: uuid.New(),
		Amount:   decimal.NewFromFloat(0.1),
		Currency: billing.USD,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stripe provider call failed")
}

func TestStripeProvider_Refund(t *testing.T) {
	api := &stripeAPI{status: http.StatusOK, body: `{"id":"re_1","object":"refund","amount":4000,"currency":"usd","status":"succeeded"}`}
	p := newTestStripeProvider(t, api)
	amount := decimal.NewFromInt(40)

	result, err := p.Refund(context.Background(), "ch_1", &amount)
	require.NoError(t, err)
	assert.Equal(t, "re_1", result.RefundID)
	assert.Equal(t, "succeeded", result.Status)
	assert.True(t, amount.Equal(result.Amount))

	_, err = p.Refund(context.Background(), "pi_123", nil)
	require.NoError(t, err)

	require.Len(t, api.requests, 2)
	assert.Equal(t, "/v1/refunds", api.requests[0].path)
	assert.Equal(t, "ch_1", api.requests[0].form.Get("charge"))
	assert.Equal(t, "4000", api.requests[0].form.Get("amount"))
	assert.Equal(t, "pi_123", api.requests[1].form.Get("payment_intent"))
	assert.Empty(t, api.requests[1].form.Get("amount"))
}

func signStripe(payload []byte, secret string, ts time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	}).Header
}

func stripeEvent(eventType string, intent string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": %q,
		"data": {"object": %s}
	}`, eventType, intent))
}

func TestStripeProvider_VerifyWebhook(t *testing.T) {
	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test_123", WebhookSecret: testWebhookSecret}, zap.NewNop())
	payload := stripeEvent(stripeEventSucceeded, `{"id":"pi_123","object":"payment_intent"}`)

	assert.True(t, p.VerifyWebhook(signStripe(payload, testWebhookSecret, time.Now()), payload))
	assert.False(t, p.VerifyWebhook(signStripe(payload, "whsec_other", time.Now()), payload))
	assert.False(t, p.VerifyWebhook(signStripe(payload, testWebhookSecret, time.Now().Add(-time.Hour)), payload))
	assert.False(t, p.VerifyWebhook("t=1,v1=abc", payload))
	assert.False(t, p.VerifyWebhook("", payload))

	unconfigured := NewStripeProvider(StripeConfig{SecretKey: "sk_test_123"}, zap.NewNop())
	assert.False(t, unconfigured.VerifyWebhook(signStripe(payload, "", time.Now()), payload))
}

func TestStripeProvider_ParseWebhook(t *testing.T) {
	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test_123"}, zap.NewNop())

	t.Run("succeeded", func(t *testing.T) {
		result, err := p.ParseWebhook(stripeEvent(stripeEventSucceeded, `{
			"id": "pi_123",
			"object": "payment_intent",
			"amount": 10000,
			"amount_received": 10000,
			"currency": "usd",
			"latest_charge": "ch_1",
			"metadata": {"tenant_id": "t1"}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", result.EventID)
		assert.Equal(t, "pi_123", result.PaymentIntentID)
		assert.Equal(t, "ch_1", result.TransactionID)
		assert.Equal(t, billing.WebhookStatusCompleted, result.Status)
		assert.True(t, decimal.NewFromInt(100).Equal(result.Amount))
		assert.Equal(t, billing.USD, result.Currency)
		assert.Equal(t, "t1", result.Metadata["tenant_id"])
	})

	t.Run("payment failed", func(t *testing.T) {
		result, err := p.ParseWebhook(stripeEvent(stripeEventFailed, `{
			"id": "pi_123",
			"object": "payment_intent",
			"amount": 10000,
			"currency": "usd",
			"last_payment_error": {"message": "Your card was declined."}
		}`))
		require.NoError(t, err)
		assert.Equal(t, billing.WebhookStatusFailed, result.Status)
		assert.Equal(t, "Your card was declined.", result.FailureReason)
		assert.Equal(t, "pi_123", result.TransactionID)
	})

	t.Run("processing", func(t *testing.T) {
		result, err := p.ParseWebhook(stripeEvent(stripeEventProcessing, `{"id":"pi_123","object":"payment_intent","currency":"usd","amount":100}`))
		require.NoError(t, err)
		assert.Equal(t, billing.WebhookStatusPending, result.Status)
	})

	t.Run("unrelated event", func(t *testing.T) {
		result, err := p.ParseWebhook(stripeEvent("customer.created", `{"id":"cus_1","object":"customer"}`))
		require.NoError(t, err)
		assert.Equal(t, billing.WebhookStatusPending, result.Status)
		assert.Empty(t, result.PaymentIntentID)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := p.ParseWebhook([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(10000), toMinorUnits(decimal.NewFromInt(100), billing.USD))
	assert.Equal(t, int64(1999), toMinorUnits(decimal.RequireFromString("19.99"), billing.EUR))
	assert.Equal(t, int64(1000), toMinorUnits(decimal.RequireFromString("9.995"), billing.USD))
	assert.True(t, decimal.RequireFromString("19.99").Equal(fromMinorUnits(1999, billing.USD)))
}
