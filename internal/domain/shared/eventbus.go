package shared

import "context"

// EventHandler reacts to domain events. Saga steps are handlers.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the events the handler wants; empty means all of them
	EventTypes() []string
}

// Publisher delivers events emitted by a committed transition. In-process
// publishers run the handlers before returning; queue publishers only
// enqueue, and a worker runs the handlers later with retries.
type Publisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber registers handlers. Explicit eventTypes override the
// handler's own EventTypes.
type EventSubscriber interface {
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
}
