package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/identity"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Webhook results recorded in metrics
const (
	webhookAccepted  = "accepted"
	webhookRejected  = "rejected"
	webhookDuplicate = "duplicate"
	webhookIgnored   = "ignored"
	webhookError     = "error"
)

// PaymentService handles payment intents, provider webhooks and refunds
type PaymentService struct {
	paymentRepo billing.PaymentRepository
	subRepo     billing.SubscriptionRepository
	tenantRepo  identity.TenantRepository
	providers   billing.PaymentProviderRegistry
	publisher   shared.Publisher
	metrics     *telemetry.BillingMetrics
	logger      *zap.Logger
	now         Clock
}

// PaymentServiceConfig contains configuration for PaymentService
type PaymentServiceConfig struct {
	PaymentRepo      billing.PaymentRepository
	SubscriptionRepo billing.SubscriptionRepository
	TenantRepo       identity.TenantRepository
	Providers        billing.PaymentProviderRegistry
	Publisher        shared.Publisher
	Metrics          *telemetry.BillingMetrics
	Logger           *zap.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(cfg PaymentServiceConfig) *PaymentService {
	return &PaymentService{
		paymentRepo: cfg.PaymentRepo,
		subRepo:     cfg.SubscriptionRepo,
		tenantRepo:  cfg.TenantRepo,
		providers:   cfg.Providers,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         utcNow,
	}
}

// CreatePaymentIntentInput contains input for opening a payment
type CreatePaymentIntentInput struct {
	TenantID       uuid.UUID
	SubscriptionID *uuid.UUID
	Provider       string // empty selects the default provider
	Amount         decimal.Decimal
	Currency       string
	Method         string
	Description    string
	ReturnURL      string
	CancelURL      string
	Metadata       map[string]string
}

// PaymentIntentResult is returned to the client so it can confirm the payment
type PaymentIntentResult struct {
	PaymentID       uuid.UUID `json:"payment_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Provider        string    `json:"provider"`
	ClientSecret    string    `json:"client_secret,omitempty"`
	RedirectURL     string    `json:"redirect_url,omitempty"`
}

// CreatePaymentIntent opens a payment intent at the provider and records a pending payment
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntentResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.create_payment_intent", telemetry.AttrTenantID.String(input.TenantID.String()))
	defer span.End()

	if !input.Amount.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Amount must be positive")
	}
	if input.Currency == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Currency is required")
	}
	currency, err := billing.ParseCurrency(input.Currency)
	if err != nil {
		return nil, err
	}
	method := billing.PaymentMethod(input.Method)
	if method == "" {
		method = billing.PaymentMethodCard
	}

	if _, err := s.tenantRepo.FindByID(ctx, input.TenantID); err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if input.SubscriptionID != nil {
		if _, err := s.subRepo.FindByID(ctx, input.TenantID, *input.SubscriptionID); err != nil {
			return nil, fmt.Errorf("failed to load subscription: %w", err)
		}
	}

	provider, err := s.provider(input.Provider)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(telemetry.AttrProvider.String(provider.Name()))

	intent, err := provider.CreatePaymentIntent(ctx, billing.IntentRequest{
		IdempotencyKey: uuid.NewString(),
		TenantID:       input.TenantID,
		Amount:         input.Amount,
		Currency:       currency,
		Method:         method,
		Description:    input.Description,
		ReturnURL:      input.ReturnURL,
		CancelURL:      input.CancelURL,
		Metadata:       input.Metadata,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	metadata := make(map[string]any, len(input.Metadata))
	for k, v := range input.Metadata {
		metadata[k] = v
	}
	payment, events, err := billing.NewPayment(billing.NewPaymentParams{
		TenantID:        input.TenantID,
		SubscriptionID:  input.SubscriptionID,
		Provider:        provider.Name(),
		PaymentIntentID: intent.PaymentIntentID,
		Method:          method,
		Amount:          input.Amount,
		Currency:        currency,
		Metadata:        metadata,
	}, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}
	notify(ctx, s.publisher, s.logger, events)

	if input.SubscriptionID != nil {
		s.attachIntent(ctx, input.TenantID, *input.SubscriptionID, intent.PaymentIntentID)
	}

	logger.Enrich(ctx, s.logger).Info("payment intent created",
		zap.String("payment_id", payment.ID.String()),
		zap.String("payment_intent_id", payment.PaymentIntentID),
		zap.String("provider", payment.Provider),
		zap.String("amount", payment.Amount.String()),
		zap.String("currency", payment.Currency.String()),
	)

	return &PaymentIntentResult{
		PaymentID:       payment.ID,
		PaymentIntentID: intent.PaymentIntentID,
		Provider:        provider.Name(),
		ClientSecret:    intent.ClientSecret,
		RedirectURL:     intent.RedirectURL,
	}, nil
}

// attachIntent records the intent on the subscription it pays for. The
// payment already carries the subscription, so a failure here is only logged.
func (s *PaymentService) attachIntent(ctx context.Context, tenantID, subscriptionID uuid.UUID, paymentIntentID string) {
	err := retryOnConflict(ctx, MaxConflictRetries, func(ctx context.Context) error {
		sub, err := s.subRepo.FindByID(ctx, tenantID, subscriptionID)
		if err != nil {
			return err
		}
		next := sub.AttachPaymentIntent(paymentIntentID, s.now())
		return s.subRepo.Update(ctx, &next)
	})
	if err != nil {
		logger.Enrich(ctx, s.logger).Warn("failed to attach payment intent to subscription",
			zap.String("subscription_id", subscriptionID.String()),
			zap.Error(err),
		)
	}
}

// WebhookOutcome is the result of processing one provider webhook
type WebhookOutcome struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Status    string    `json:"status"`
	// Handled is false when the notification carried a non-terminal status
	Handled bool `json:"handled"`
	// Duplicate is true when the payment had already reached the reported status
	Duplicate bool `json:"duplicate"`
}

// ProcessPaymentWebhook verifies and applies a provider notification.
// Nothing is read or written before the signature is verified.
func (s *PaymentService) ProcessPaymentWebhook(ctx context.Context, providerName, signature string, payload []byte) (*WebhookOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.process_payment_webhook", telemetry.AttrProvider.String(providerName))
	defer span.End()
	log := logger.Enrich(ctx, s.logger).With(zap.String("provider", providerName))

	provider, err := s.providers.Get(providerName)
	if err != nil {
		s.metrics.WebhookReceived(ctx, providerName, webhookRejected)
		return nil, err
	}
	if !provider.VerifyWebhook(signature, payload) {
		s.metrics.WebhookReceived(ctx, providerName, webhookRejected)
		log.Warn("webhook signature rejected")
		return nil, billing.ErrInvalidSignature
	}

	notification, err := provider.ParseWebhook(payload)
	if err != nil {
		s.metrics.WebhookReceived(ctx, providerName, webhookRejected)
		return nil, shared.WrapDomainError(shared.CodeInvalidInput, "Malformed webhook payload", err)
	}
	log = log.With(
		zap.String("payment_intent_id", notification.PaymentIntentID),
		zap.String("webhook_status", string(notification.Status)),
	)

	payment, err := s.paymentRepo.FindByPaymentIntentID(ctx, notification.PaymentIntentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.metrics.WebhookReceived(ctx, providerName, webhookRejected)
			log.Warn("webhook for unknown payment intent")
			return nil, billing.ErrPaymentNotFound
		}
		s.metrics.WebhookReceived(ctx, providerName, webhookError)
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	span.SetAttributes(telemetry.AttrTenantID.String(payment.TenantID.String()))

	if notification.Status != billing.WebhookStatusCompleted && notification.Status != billing.WebhookStatusFailed {
		s.metrics.WebhookReceived(ctx, providerName, webhookIgnored)
		log.Debug("non-terminal webhook ignored")
		return &WebhookOutcome{PaymentID: payment.ID, Status: string(payment.Status)}, nil
	}

	if !notification.Amount.IsZero() && !notification.Amount.Equal(payment.Amount) {
		log.Warn("webhook amount differs from payment amount",
			zap.String("payment_amount", payment.Amount.String()),
			zap.String("webhook_amount", notification.Amount.String()),
		)
	}

	now := s.now()
	outcome := &WebhookOutcome{PaymentID: payment.ID, Handled: true}
	err = retryOnConflict(ctx, MaxConflictRetries, func(ctx context.Context) error {
		current, err := s.paymentRepo.FindByID(ctx, payment.TenantID, payment.ID)
		if err != nil {
			return err
		}

		var next billing.Payment
		var events []shared.DomainEvent
		if notification.Status == billing.WebhookStatusCompleted {
			next, events, err = current.Complete(notification.TransactionID, notification.Metadata, now)
		} else {
			next, events, err = current.Fail(notification.FailureReason, now)
		}
		if err != nil {
			return err
		}

		outcome.Status = string(next.Status)
		if len(events) == 0 {
			outcome.Duplicate = true
			// The first delivery may have stored the payment and then failed
			// to publish. Completion drives the saga, so it is announced
			// again; the activation handler is a no-op for a payment it
			// already applied.
			if current.IsCompleted() {
				return publishEvents(ctx, s.publisher, s.logger,
					[]shared.DomainEvent{billing.NewPaymentCompletedEvent(current, now)})
			}
			return nil
		}
		if err := s.paymentRepo.Update(ctx, &next); err != nil {
			return err
		}
		outcome.Duplicate = false
		return publishEvents(ctx, s.publisher, s.logger, events)
	})
	if err != nil {
		s.metrics.WebhookReceived(ctx, providerName, webhookError)
		telemetry.RecordError(span, err)
		return nil, err
	}

	if outcome.Duplicate {
		s.metrics.WebhookReceived(ctx, providerName, webhookDuplicate)
		log.Info("duplicate webhook, payment unchanged", zap.String("payment_id", payment.ID.String()))
	} else {
		s.metrics.WebhookReceived(ctx, providerName, webhookAccepted)
		log.Info("payment updated from webhook",
			zap.String("payment_id", payment.ID.String()),
			zap.String("status", outcome.Status),
		)
	}
	return outcome, nil
}

// RefundPaymentInput contains input for refunding a payment
type RefundPaymentInput struct {
	TenantID  uuid.UUID
	PaymentID uuid.UUID
	// Amount defaults to the full payment amount
	Amount *decimal.Decimal
}

// RefundPayment refunds a completed payment at its provider. Asking again
// for a refunded payment sends nothing to the provider and publishes
// PaymentRefunded again.
func (s *PaymentService) RefundPayment(ctx context.Context, input RefundPaymentInput) (*PaymentDTO, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.refund_payment", telemetry.AttrTenantID.String(input.TenantID.String()))
	defer span.End()

	payment, err := s.paymentRepo.FindByID(ctx, input.TenantID, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == billing.PaymentStatusRefunded {
		return s.announceRefund(ctx, payment)
	}
	if !payment.IsCompleted() {
		return nil, billing.ErrRefundNotAllowed
	}
	amount := payment.Amount
	if input.Amount != nil {
		amount = billing.RoundMoney(*input.Amount)
	}
	if !amount.IsPositive() || amount.GreaterThan(payment.Amount) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Refund amount must be positive and not exceed the payment amount")
	}

	provider, err := s.providers.Get(payment.Provider)
	if err != nil {
		return nil, err
	}
	refund, err := provider.Refund(ctx, payment.ProviderTransactionID, &amount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to refund at provider: %w", err)
	}

	now := s.now()
	var result *billing.Payment
	var events []shared.DomainEvent
	err = retryOnConflict(ctx, MaxConflictRetries, func(ctx context.Context) error {
		current, err := s.paymentRepo.FindByID(ctx, input.TenantID, input.PaymentID)
		if err != nil {
			return err
		}
		var next billing.Payment
		next, events, err = current.Refund(refund.RefundID, amount, now)
		if err != nil {
			return err
		}
		if err := s.paymentRepo.Update(ctx, &next); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		// The provider already moved the money; the record must be fixed by hand.
		logger.Enrich(ctx, s.logger).Error("refund issued but payment not updated",
			zap.String("payment_id", input.PaymentID.String()),
			zap.String("refund_id", refund.RefundID),
			zap.Error(err),
		)
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.Enrich(ctx, s.logger).Info("payment refunded",
		zap.String("payment_id", result.ID.String()),
		zap.String("refund_id", result.RefundID),
		zap.String("amount", amount.String()),
	)
	if err := publishEvents(ctx, s.publisher, s.logger, events); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("refund recorded but not published, retry the refund: %w", err)
	}
	dto := ToPaymentDTO(result)
	return &dto, nil
}

// announceRefund answers a refund request for a payment that is already
// refunded. Nothing is sent to the provider; PaymentRefunded is published
// again in case the request that refunded it failed to publish. The refund
// invoice handler bills each payment's refund once.
func (s *PaymentService) announceRefund(ctx context.Context, payment *billing.Payment) (*PaymentDTO, error) {
	if err := publishEvents(ctx, s.publisher, s.logger, []shared.DomainEvent{billing.NewPaymentRefundedEvent(payment, s.now())}); err != nil {
		return nil, err
	}
	logger.Enrich(ctx, s.logger).Info("payment already refunded, refund announced again",
		zap.String("payment_id", payment.ID.String()),
		zap.String("refund_id", payment.RefundID),
	)
	dto := ToPaymentDTO(payment)
	return &dto, nil
}

// GetPayment returns a payment of the tenant
func (s *PaymentService) GetPayment(ctx context.Context, tenantID, paymentID uuid.UUID) (*PaymentDTO, error) {
	payment, err := s.paymentRepo.FindByID(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	dto := ToPaymentDTO(payment)
	return &dto, nil
}

// ListPayments returns a page of the tenant's payments
func (s *PaymentService) ListPayments(ctx context.Context, tenantID uuid.UUID, filter ListFilter) (shared.Paginated[PaymentDTO], error) {
	f := filter.ToSharedFilter()
	payments, total, err := s.paymentRepo.FindAll(ctx, tenantID, f)
	if err != nil {
		return shared.Paginated[PaymentDTO]{}, fmt.Errorf("failed to list payments: %w", err)
	}
	items := make([]PaymentDTO, len(payments))
	for i := range payments {
		items[i] = ToPaymentDTO(&payments[i])
	}
	return shared.NewPaginated(items, total, f.Page, f.Limit()), nil
}

func (s *PaymentService) provider(name string) (billing.PaymentProvider, error) {
	if name == "" {
		return s.providers.Default(), nil
	}
	return s.providers.Get(name)
}
