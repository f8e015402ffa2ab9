package event

import (
	"context"
	"time"

	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// IdempotentHandler wraps an EventHandler so a redelivered event skips the
// handlers that already succeeded for it.
//
// The key is written only after the wrapped handler returns nil. A failed
// handler, or a worker killed in the middle of one, leaves no key behind,
// so the redelivered job runs the handler again. Two deliveries racing
// through the same handler are absorbed by the domain no-ops and unique
// keys of the handlers themselves.
type IdempotentHandler struct {
	handler shared.EventHandler
	name    string
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics *telemetry.BillingMetrics
}

// IdempotentHandlerOption is a functional option for IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig sets the idempotency configuration
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithIdempotencyMetrics records duplicates on the billing metrics
func WithIdempotencyMetrics(metrics *telemetry.BillingMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.metrics = metrics
	}
}

// NewIdempotentHandler creates a new idempotent handler wrapper
func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		name:    handlerName(handler),
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Name returns the wrapped handler's name
func (h *IdempotentHandler) Name() string {
	return h.name
}

// EventTypes returns the event types this handler is interested in
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Key returns the idempotency key for an event
func (h *IdempotentHandler) Key(event shared.DomainEvent) string {
	return h.name + ":" + event.EventID().String()
}

// Handle runs the wrapped handler unless it already succeeded for the event
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	log := logger.Enrich(ctx, h.logger).With(zap.String("handler", h.name))
	key := h.Key(event)

	done, err := h.store.IsProcessed(ctx, key)
	if err != nil {
		log.Warn("failed to check idempotency, processing anyway", zap.Error(err))
	} else if done {
		h.metrics.EventHandled(ctx, event.EventType(), telemetry.OutcomeDuplicate, 0)
		log.Debug("duplicate event detected, skipping")
		return nil
	}

	started := time.Now()
	if err := h.handler.Handle(ctx, event); err != nil {
		return err
	}

	if _, err := h.store.MarkProcessed(ctx, key, h.config.TTL); err != nil {
		log.Warn("failed to record processed event", zap.Error(err))
	}
	log.Debug("event processed", zap.Duration("took", time.Since(started)))
	return nil
}

// Unwrap returns the underlying handler
func (h *IdempotentHandler) Unwrap() shared.EventHandler {
	return h.handler
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)

// WrapHandlersWithIdempotency wraps multiple handlers with idempotency checking
func WrapHandlersWithIdempotency(
	handlers []shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) []shared.EventHandler {
	wrapped := make([]shared.EventHandler, len(handlers))
	for i, h := range handlers {
		wrapped[i] = NewIdempotentHandler(h, store, logger, opts...)
	}
	return wrapped
}
