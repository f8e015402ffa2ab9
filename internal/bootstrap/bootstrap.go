// Package bootstrap builds the object graph shared by the API server and the
// worker: connections, repositories, the event pipeline and the use cases.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	billingapp "github.com/saas/backend/internal/application/billing"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/cache"
	"github.com/saas/backend/internal/infrastructure/config"
	"github.com/saas/backend/internal/infrastructure/event"
	"github.com/saas/backend/internal/infrastructure/invoicing"
	"github.com/saas/backend/internal/infrastructure/payment"
	"github.com/saas/backend/internal/infrastructure/persistence"
	"github.com/saas/backend/internal/infrastructure/queue"
	"github.com/saas/backend/internal/infrastructure/storage"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Publisher strategies selectable with events.publisher
const (
	PublisherInProcess = "inprocess"
	PublisherQueue     = "queue"
)

// App holds every long-lived component of a billing process
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *persistence.Database
	Redis   *redis.Client
	Broker  queue.Broker
	Metrics *telemetry.BillingMetrics

	Serializer  *event.EventSerializer
	Dispatcher  *event.Dispatcher
	Publisher   shared.Publisher
	DeadLetters shared.DeadLetterRepository

	Tenants           *billingapp.TenantService
	Subscriptions     *billingapp.SubscriptionService
	Payments          *billingapp.PaymentService
	Invoices          *billingapp.InvoiceService
	DeadLetterService *billingapp.DeadLetterService
	Expiry            *billingapp.ExpiryService

	closers []func() error
}

// New connects to the configured backends and wires the use cases. On error
// everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, metrics *telemetry.BillingMetrics) (app *App, err error) {
	app = &App{Config: cfg, Logger: log, Metrics: metrics}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	db, err := persistence.NewDatabase(cfg.Database, log, persistence.Options{
		LogLevel: cfg.Log.Level,
		Tracing:  cfg.Telemetry.DBTraceEnabled,
		Migrate:  cfg.Database.Driver == "sqlite",
	})
	if err != nil {
		return nil, err
	}
	app.DB = db
	app.closers = append(app.closers, db.Close)
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if needsRedis(cfg) {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.Redis = client
		app.closers = append(app.closers, client.Close)
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	broker, err := queue.NewBroker(cfg.Queue, app.Redis, log)
	if err != nil {
		return nil, err
	}
	app.Broker = broker
	app.closers = append(app.closers, broker.Close)

	idempotency, err := cache.NewIdempotencyStore(cfg.Idempotency, app.Redis, log)
	if err != nil {
		return nil, err
	}

	documents, err := storage.NewDocumentStore(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	providers, err := payment.NewRegistryFromConfig(cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("Payment providers registered", zap.Strings("providers", providers.Names()))

	numbers, err := invoicing.NewSnowflakeNumberGenerator(cfg.Billing.InvoicePrefix, cfg.Billing.NodeID)
	if err != nil {
		return nil, err
	}
	invoiceProvider := invoicing.NewProvider(cfg.Invoicing, log)

	tenantRepo := persistence.NewGormTenantRepository(db.DB)
	subRepo := persistence.NewGormSubscriptionRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	app.DeadLetters = persistence.NewGormDeadLetterRepository(db.DB)

	app.Serializer = event.NewEventSerializer()
	event.RegisterBillingEvents(app.Serializer)
	app.Dispatcher = event.NewDispatcher(event.NewHandlerRegistry(), log)

	switch cfg.Events.Publisher {
	case PublisherInProcess:
		app.Publisher = event.NewInProcessPublisher(app.Dispatcher, log, metrics)
	case PublisherQueue:
		app.Publisher = event.NewQueuePublisher(broker, app.Serializer, cfg.Events.QueueName, log, metrics)
	default:
		return nil, fmt.Errorf("unknown events.publisher %q", cfg.Events.Publisher)
	}
	log.Info("Event publisher selected", zap.String("publisher", cfg.Events.Publisher))

	policy := billingapp.InvoicePolicy{TaxRate: cfg.Billing.TaxRate, DueDays: cfg.Billing.InvoiceDueDays}

	// Saga handlers. Each one is wrapped so a redelivered event does not run
	// a handler that already succeeded for it.
	sagaHandlers := []shared.EventHandler{
		billingapp.NewPaymentCompletedHandler(subRepo, tenantRepo, app.Publisher, metrics, log),
		billingapp.NewSubscriptionInvoiceHandler(billingapp.SubscriptionInvoiceHandlerConfig{
			InvoiceRepo: invoiceRepo,
			Provider:    invoiceProvider,
			Numbers:     numbers,
			Policy:      policy,
			Publisher:   app.Publisher,
			Metrics:     metrics,
			Logger:      log,
		}),
		billingapp.NewPaymentRefundedHandler(invoiceRepo, invoiceProvider, numbers, policy, app.Publisher, metrics, log),
	}
	idempotencyCfg := shared.IdempotencyConfig{Enabled: true, TTL: cfg.Idempotency.TTL}
	for _, h := range event.WrapHandlersWithIdempotency(sagaHandlers, idempotency, log,
		event.WithIdempotencyConfig(idempotencyCfg),
		event.WithIdempotencyMetrics(metrics),
	) {
		app.Dispatcher.Subscribe(h)
	}

	app.Tenants = billingapp.NewTenantService(tenantRepo, app.Publisher, log)
	app.Subscriptions = billingapp.NewSubscriptionService(billingapp.SubscriptionServiceConfig{
		SubscriptionRepo: subRepo,
		TenantRepo:       tenantRepo,
		Publisher:        app.Publisher,
		DefaultCurrency:  billing.Currency(cfg.Billing.DefaultCurrency),
		Metrics:          metrics,
		Logger:           log,
	})
	app.Payments = billingapp.NewPaymentService(billingapp.PaymentServiceConfig{
		PaymentRepo:      paymentRepo,
		SubscriptionRepo: subRepo,
		TenantRepo:       tenantRepo,
		Providers:        providers,
		Publisher:        app.Publisher,
		Metrics:          metrics,
		Logger:           log,
	})
	app.Invoices = billingapp.NewInvoiceService(billingapp.InvoiceServiceConfig{
		InvoiceRepo:   invoiceRepo,
		TenantRepo:    tenantRepo,
		Provider:      invoiceProvider,
		DocumentStore: documents,
		Numbers:       numbers,
		Policy:        policy,
		Publisher:     app.Publisher,
		Metrics:       metrics,
		Logger:        log,
	})
	app.DeadLetterService = billingapp.NewDeadLetterService(app.DeadLetters, event.NewJobRequeuer(broker, log), log)
	app.Expiry = billingapp.NewExpiryService(subRepo, tenantRepo, app.Publisher, cfg.Scheduler.BatchSize, metrics, log)

	return app, nil
}

// NewConsumer builds a queue consumer dispatching into the saga handlers
func (a *App) NewConsumer() *event.Consumer {
	return event.NewConsumer(a.Broker, a.Serializer, a.Dispatcher, a.DeadLetters, event.ConsumerConfig{
		Queue:          a.Config.Events.QueueName,
		Concurrency:    a.Config.Queue.Concurrency,
		ReserveTimeout: a.Config.Queue.ReserveTimeout,
		Retry: shared.RetryPolicy{
			MaxAttempts: a.Config.Events.MaxAttempts,
			BaseBackoff: a.Config.Events.BaseBackoff,
			MaxBackoff:  a.Config.Events.MaxBackoff,
		},
	}, a.Logger, a.Metrics)
}

// RecoverQueue returns jobs a crashed worker left reserved to the pending
// list. Only the redis broker keeps such jobs; other brokers redeliver on
// their own.
func (a *App) RecoverQueue(ctx context.Context) error {
	rb, ok := a.Broker.(*queue.RedisBroker)
	if !ok {
		return nil
	}
	n, err := rb.Recover(ctx, a.Config.Events.QueueName)
	if err != nil {
		return fmt.Errorf("failed to recover reserved jobs: %w", err)
	}
	if n > 0 {
		a.Logger.Warn("Recovered reserved jobs", zap.Int("count", n), zap.String("queue", a.Config.Events.QueueName))
	}
	return nil
}

// Close releases connections in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Queue.Driver == "redis" ||
		cfg.Idempotency.Backend == cache.BackendRedis ||
		cfg.HTTP.RateLimit > 0
}
