package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact emitted by a state transition. Every billing event
// belongs to exactly one tenant.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	TenantID() uuid.UUID
}

// BaseDomainEvent is the header embedded by every concrete event. The
// payload fields of the concrete event are serialized next to it.
type BaseDomainEvent struct {
	ID         uuid.UUID `json:"event_id"`
	Type       string    `json:"event_type"`
	OccurredOn time.Time `json:"occurred_on"`
	Aggregate  uuid.UUID `json:"aggregate_id"`
	Kind       string    `json:"aggregate_type"`
	Tenant     uuid.UUID `json:"tenant_id"`

	// Schema is bumped when a payload changes shape, so consumers can
	// tell old jobs still sitting in the queue apart from new ones
	Schema int `json:"schema_version"`
}

func (e *BaseDomainEvent) EventID() uuid.UUID     { return e.ID }
func (e *BaseDomainEvent) EventType() string      { return e.Type }
func (e *BaseDomainEvent) OccurredAt() time.Time  { return e.OccurredOn }
func (e *BaseDomainEvent) AggregateID() uuid.UUID { return e.Aggregate }
func (e *BaseDomainEvent) AggregateType() string  { return e.Kind }
func (e *BaseDomainEvent) TenantID() uuid.UUID    { return e.Tenant }

// NewBaseDomainEvent stamps a new event header with a fresh ID
func NewBaseDomainEvent(eventType, aggregateType string, aggregateID, tenantID uuid.UUID, occurredOn time.Time) BaseDomainEvent {
	return BaseDomainEvent{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredOn: occurredOn,
		Aggregate:  aggregateID,
		Kind:       aggregateType,
		Tenant:     tenantID,
		Schema:     1,
	}
}
