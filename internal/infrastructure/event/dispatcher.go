package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Dispatcher runs every handler registered for an event, synchronously and
// in registration order. A failing or panicking handler does not stop the
// ones after it.
type Dispatcher struct {
	registry *HandlerRegistry
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher over the registry
func NewDispatcher(registry *HandlerRegistry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// Subscribe registers a handler for the given types, or for its own
// EventTypes() when none are given
func (d *Dispatcher) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	d.registry.Register(handler, eventTypes...)
	d.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (d *Dispatcher) Unsubscribe(handler shared.EventHandler) {
	d.registry.Unregister(handler)
}

// Dispatch returns the joined errors of the handlers that failed
func (d *Dispatcher) Dispatch(ctx context.Context, event shared.DomainEvent) error {
	var errs []error
	for _, handler := range d.registry.Handlers(event.EventType()) {
		if err := d.invoke(ctx, handler, event); err != nil {
			logger.Enrich(ctx, d.logger).Error("event handler failed",
				zap.String("handler", handlerName(handler)),
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) invoke(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", handlerName(handler), r)
		}
	}()
	return handler.Handle(ctx, event)
}

// handlerName identifies a handler in logs and idempotency keys
func handlerName(handler shared.EventHandler) string {
	if named, ok := handler.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", handler)
}

var _ shared.EventSubscriber = (*Dispatcher)(nil)
