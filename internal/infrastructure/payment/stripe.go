package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/saas/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

// ProviderStripe is the provider key of Stripe
const ProviderStripe = "stripe"

// Stripe webhook event types the billing saga reacts to
const (
	stripeEventSucceeded  = "payment_intent.succeeded"
	stripeEventFailed     = "payment_intent.payment_failed"
	stripeEventProcessing = "payment_intent.processing"
	stripeEventCanceled   = "payment_intent.canceled"
)

// StripeConfig holds Stripe credentials
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// Tolerance bounds the age of a signed webhook; zero uses Stripe's default
	Tolerance time.Duration
	// BaseURL overrides the API endpoint
	BaseURL string
}

// StripeProvider implements billing.PaymentProvider on Stripe PaymentIntents
type StripeProvider struct {
	api    *client.API
	config StripeConfig
	logger *zap.Logger
}

// NewStripeProvider creates a provider with its own API client, so the
// process-wide stripe.Key is never touched
func NewStripeProvider(cfg StripeConfig, logger *zap.Logger) *StripeProvider {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = webhook.DefaultTolerance
	}

	backendConfig := &stripe.BackendConfig{
		LeveledLogger:     logger.Named("stripe").Sugar(),
		MaxNetworkRetries: stripe.Int64(2),
	}
	if cfg.BaseURL != "" {
		backendConfig.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	return &StripeProvider{
		api: client.New(cfg.SecretKey, &stripe.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		}),
		config: cfg,
		logger: logger,
	}
}

// Name implements billing.PaymentProvider
func (p *StripeProvider) Name() string {
	return ProviderStripe
}

// CreatePaymentIntent opens a PaymentIntent with automatic payment methods
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req billing.IntentRequest) (*billing.IntentResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(req.Amount, req.Currency)),
		Currency: stripe.String(strings.ToLower(string(req.Currency))),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.AddMetadata("tenant_id", req.TenantID.String())
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		p.logger.Error("Failed to create Stripe payment intent",
			zap.String("tenant_id", req.TenantID.String()),
			zap.Error(err))
		return nil, billing.NewProviderError(ProviderStripe, err)
	}

	result := &billing.IntentResult{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		Metadata:        pi.Metadata,
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		result.RedirectURL = pi.NextAction.RedirectToURL.URL
	}
	return result, nil
}

// VerifyWebhook checks the Stripe-Signature header
func (p *StripeProvider) VerifyWebhook(signature string, payload []byte) bool {
	if p.config.WebhookSecret == "" {
		return false
	}
	err := webhook.ValidatePayloadWithTolerance(payload, signature, p.config.WebhookSecret, p.config.Tolerance)
	if err != nil {
		p.logger.Warn("Stripe webhook signature rejected", zap.Error(err))
		return false
	}
	return true
}

// ParseWebhook normalizes a payment_intent.* event. Other event types parse
// to a pending result, which callers treat as nothing to do.
func (p *StripeProvider) ParseWebhook(payload []byte) (*billing.WebhookResult, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("stripe: failed to parse event: %w", err)
	}
	if event.Data == nil || !strings.HasPrefix(string(event.Type), "payment_intent.") {
		return &billing.WebhookResult{EventID: event.ID, Status: billing.WebhookStatusPending}, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("stripe: failed to parse payment intent: %w", err)
	}

	result := &billing.WebhookResult{
		EventID:         event.ID,
		TransactionID:   pi.ID,
		PaymentIntentID: pi.ID,
		Status:          billing.WebhookStatusPending,
		Metadata:        map[string]any{"stripe_event_type": string(event.Type)},
	}
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		result.TransactionID = pi.LatestCharge.ID
	}
	for k, v := range pi.Metadata {
		result.Metadata[k] = v
	}
	if pi.Currency != "" {
		currency, err := billing.ParseCurrency(string(pi.Currency))
		if err != nil {
			return nil, fmt.Errorf("stripe: %w", err)
		}
		result.Currency = currency
		result.Amount = fromMinorUnits(pi.Amount, currency)
	}

	switch event.Type {
	case stripeEventSucceeded:
		result.Status = billing.WebhookStatusCompleted
		if pi.AmountReceived > 0 {
			result.Amount = fromMinorUnits(pi.AmountReceived, result.Currency)
		}
	case stripeEventFailed:
		result.Status = billing.WebhookStatusFailed
		result.FailureReason = "payment failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			result.FailureReason = pi.LastPaymentError.Msg
		}
	case stripeEventCanceled:
		result.Status = billing.WebhookStatusFailed
		result.FailureReason = "canceled: " + string(pi.CancellationReason)
	case stripeEventProcessing:
		result.Status = billing.WebhookStatusPending
	}
	return result, nil
}

// Refund refunds a charge or, for pi_ ids, a payment intent
func (p *StripeProvider) Refund(ctx context.Context, transactionID string, amount *decimal.Decimal) (*billing.RefundResult, error) {
	params := &stripe.RefundParams{}
	params.Context = ctx
	if strings.HasPrefix(transactionID, "pi_") {
		params.PaymentIntent = stripe.String(transactionID)
	} else {
		params.Charge = stripe.String(transactionID)
	}
	if amount != nil {
		params.Amount = stripe.Int64(toMinorUnits(*amount, billing.DefaultCurrency))
	}

	r, err := p.api.Refunds.New(params)
	if err != nil {
		p.logger.Error("Failed to refund Stripe transaction",
			zap.String("transaction_id", transactionID),
			zap.Error(err))
		return nil, billing.NewProviderError(ProviderStripe, err)
	}

	currency, err := billing.ParseCurrency(string(r.Currency))
	if err != nil {
		currency = billing.DefaultCurrency
	}
	return &billing.RefundResult{
		RefundID: r.ID,
		Status:   string(r.Status),
		Amount:   fromMinorUnits(r.Amount, currency),
	}, nil
}

var _ billing.PaymentProvider = (*StripeProvider)(nil)
