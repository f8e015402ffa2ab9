// Package queue provides the durable job queue that carries domain events
// from publishers to event consumers.
//
// Delivery is at-least-once. A reserved job must be settled exactly once with
// Ack, Retry or DeadLetter; jobs of a crashed worker are redelivered.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultQueue is the queue domain events travel on
const DefaultQueue = "events"

// ErrClosed is returned by a broker after Close
var ErrClosed = errors.New("queue: broker closed")

// Job is the envelope stored on the queue
type Job struct {
	ID            string            `json:"id"`
	Queue         string            `json:"queue"`
	EventID       uuid.UUID         `json:"event_id"`
	OccurredOn    time.Time         `json:"occurred_on"`
	EventType     string            `json:"event_type"`
	AggregateID   uuid.UUID         `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	TenantID      uuid.UUID         `json:"tenant_id"`
	Payload       json.RawMessage   `json:"payload"`
	Attempts      int               `json:"attempts"`
	LastError     string            `json:"last_error,omitempty"`
	EnqueuedAt    time.Time         `json:"enqueued_at"`
	Trace         map[string]string `json:"trace,omitempty"`
}

// Marshal encodes the job as stored on the broker
func (j *Job) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

// UnmarshalJob decodes a stored job
func UnmarshalJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Delivery is a reserved job. The broker-specific handle travels with it so
// the job can be settled.
type Delivery struct {
	Job *Job

	raw    string // redis: the exact list member
	tag    any    // amqp: the amqp091.Delivery
	memory uint64 // memory: reservation id
}

// Broker moves jobs between producers and consumers
type Broker interface {
	// Enqueue appends the job to job.Queue
	Enqueue(ctx context.Context, job *Job) error

	// Reserve waits up to timeout for the next job. It returns (nil, nil) when
	// nothing arrived in time.
	Reserve(ctx context.Context, queue string, timeout time.Duration) (*Delivery, error)

	// Ack removes a successfully handled job
	Ack(ctx context.Context, d *Delivery) error

	// Retry makes the job visible again after delay. The caller has already
	// bumped d.Job.Attempts and set d.Job.LastError.
	Retry(ctx context.Context, d *Delivery, delay time.Duration) error

	// DeadLetter moves the job to the queue's dead list
	DeadLetter(ctx context.Context, d *Delivery) error

	// Ping checks the broker connection
	Ping(ctx context.Context) error

	// Close releases the connection
	Close() error
}

// DeadQueue names the dead list of a queue
func DeadQueue(queue string) string {
	return queue + ".dead"
}

// RetryQueue names the delayed-redelivery queue of a queue
func RetryQueue(queue string) string {
	return queue + ".retry"
}
