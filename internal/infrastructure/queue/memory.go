package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker for tests and single-binary
// development setups. Jobs do not survive a restart.
type MemoryBroker struct {
	mu       sync.Mutex
	queues   map[string]*memoryQueue
	nextID   uint64
	inflight map[uint64]*Job
	timers   map[*time.Timer]struct{}
	closed   bool
}

type memoryQueue struct {
	pending []*Job
	dead    []*Job
	signal  chan struct{} // closed and replaced whenever a job arrives
}

// NewMemoryBroker creates an empty broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:   make(map[string]*memoryQueue),
		inflight: make(map[uint64]*Job),
		timers:   make(map[*time.Timer]struct{}),
	}
}

func (b *MemoryBroker) queue(name string) *memoryQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memoryQueue{signal: make(chan struct{})}
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) push(job *Job) {
	q := b.queue(job.Queue)
	q.pending = append(q.pending, job)
	close(q.signal)
	q.signal = make(chan struct{})
}

// Enqueue stores a copy of the job
func (b *MemoryBroker) Enqueue(_ context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	clone := *job
	b.push(&clone)
	return nil
}

// Reserve waits for a job until timeout or ctx cancellation
func (b *MemoryBroker) Reserve(ctx context.Context, queue string, timeout time.Duration) (*Delivery, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		q := b.queue(queue)
		if len(q.pending) > 0 {
			job := q.pending[0]
			q.pending = q.pending[1:]
			b.nextID++
			id := b.nextID
			b.inflight[id] = job
			b.mu.Unlock()
			clone := *job
			return &Delivery{Job: &clone, memory: id}, nil
		}
		signal := q.signal
		b.mu.Unlock()

		select {
		case <-signal:
		case <-deadline.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (b *MemoryBroker) settle(d *Delivery) error {
	if _, ok := b.inflight[d.memory]; !ok {
		return fmt.Errorf("queue: job %s is not reserved", d.Job.ID)
	}
	delete(b.inflight, d.memory)
	return nil
}

// Ack forgets the reservation
func (b *MemoryBroker) Ack(_ context.Context, d *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settle(d)
}

// Retry re-enqueues the job once delay has passed
func (b *MemoryBroker) Retry(_ context.Context, d *Delivery, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.settle(d); err != nil {
		return err
	}

	job := *d.Job
	if delay <= 0 {
		b.push(&job)
		return nil
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.timers, timer)
		if !b.closed {
			b.push(&job)
		}
	})
	b.timers[timer] = struct{}{}
	return nil
}

// DeadLetter moves the job to the dead list
func (b *MemoryBroker) DeadLetter(_ context.Context, d *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.settle(d); err != nil {
		return err
	}
	job := *d.Job
	q := b.queue(job.Queue)
	q.dead = append(q.dead, &job)
	return nil
}

// Dead returns copies of the dead-lettered jobs of a queue
func (b *MemoryBroker) Dead(queue string) []Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	jobs := make([]Job, len(q.dead))
	for i, j := range q.dead {
		jobs[i] = *j
	}
	return jobs
}

// Pending returns the number of jobs waiting on a queue
func (b *MemoryBroker) Pending(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue(queue).pending)
}

// Ping fails once the broker is closed
func (b *MemoryBroker) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops pending retries and wakes blocked consumers
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for t := range b.timers {
		t.Stop()
	}
	for _, q := range b.queues {
		close(q.signal)
		q.signal = make(chan struct{})
	}
	return nil
}

var _ Broker = (*MemoryBroker)(nil)
