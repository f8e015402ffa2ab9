package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Default retry configuration
const (
	DefaultMaxAttempts = 5
	DefaultBaseBackoff = time.Second
	DefaultMaxBackoff  = 5 * time.Minute
)

// RetryPolicy bounds redelivery of a failed job
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// Exhausted reports whether a job that has failed `attempts` times must be dead-lettered
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// Backoff returns the delay before the next attempt.
// Exponential: base, 2*base, 4*base, ... capped at MaxBackoff.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift > 20 {
		shift = 20
	}
	d := p.BaseBackoff * time.Duration(1<<uint(shift))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// DeadLetterStatus represents the status of a dead-lettered job
type DeadLetterStatus string

const (
	DeadLetterStatusDead      DeadLetterStatus = "DEAD"
	DeadLetterStatusRequeued  DeadLetterStatus = "REQUEUED"
	DeadLetterStatusDiscarded DeadLetterStatus = "DISCARDED"
)

// DeadLetter records a queue job that exhausted its retries
type DeadLetter struct {
	ID         uuid.UUID
	JobID      string
	Queue      string
	EventID    uuid.UUID
	EventType  string
	TenantID   uuid.UUID
	Payload    []byte
	Attempts   int
	LastError  string
	Status     DeadLetterStatus
	CreatedAt  time.Time
	RequeuedAt *time.Time
	UpdatedAt  time.Time
}

// MarkRequeued marks the dead letter as handed back to its queue
func (d *DeadLetter) MarkRequeued(now time.Time) error {
	if d.Status != DeadLetterStatusDead {
		return NewDomainError(CodeInvalidState, "Only dead entries can be requeued")
	}
	d.Status = DeadLetterStatusRequeued
	d.RequeuedAt = &now
	d.UpdatedAt = now
	return nil
}

// MarkDiscarded marks the dead letter as acknowledged by an operator
func (d *DeadLetter) MarkDiscarded(now time.Time) error {
	if d.Status != DeadLetterStatusDead {
		return NewDomainError(CodeInvalidState, "Only dead entries can be discarded")
	}
	d.Status = DeadLetterStatusDiscarded
	d.UpdatedAt = now
	return nil
}

// DeadLetterRepository persists dead-lettered jobs
type DeadLetterRepository interface {
	Save(ctx context.Context, letter *DeadLetter) error
	FindByID(ctx context.Context, id uuid.UUID) (*DeadLetter, error)
	FindDead(ctx context.Context, filter Filter) ([]*DeadLetter, int64, error)
	Update(ctx context.Context, letter *DeadLetter) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
