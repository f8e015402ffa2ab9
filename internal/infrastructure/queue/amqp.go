package queue

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// amqpChannel is the part of *amqp.Channel the broker uses
type amqpChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPBroker implements Broker on RabbitMQ.
//
// Each queue Q is backed by three durable queues: Q itself, Q.retry whose
// messages carry a per-message TTL and dead-letter back into Q, and Q.dead.
type AMQPBroker struct {
	conn     *amqp.Connection
	ch       amqpChannel
	prefetch int
	logger   *zap.Logger

	mu        sync.Mutex
	declared  map[string]bool
	consumers map[string]<-chan amqp.Delivery
}

// NewAMQPBroker dials RabbitMQ and opens a channel
func NewAMQPBroker(rawURL string, prefetch int, logger *zap.Logger) (*AMQPBroker, error) {
	cleanURL, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	b := newAMQPBroker(ch, prefetch, logger)
	b.conn = conn
	return b, nil
}

func newAMQPBroker(ch amqpChannel, prefetch int, logger *zap.Logger) *AMQPBroker {
	if prefetch < 1 {
		prefetch = 1
	}
	return &AMQPBroker{
		ch:        ch,
		prefetch:  prefetch,
		logger:    logger,
		declared:  make(map[string]bool),
		consumers: make(map[string]<-chan amqp.Delivery),
	}
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("invalid AMQP url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// declare creates the queue trio on first use. Caller holds b.mu.
func (b *AMQPBroker) declare(queue string) error {
	if b.declared[queue] {
		return nil
	}
	if _, err := b.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s: %w", queue, err)
	}
	if _, err := b.ch.QueueDeclare(RetryQueue(queue), true, false, false, false, retryQueueArgs(queue)); err != nil {
		return fmt.Errorf("failed to declare %s: %w", RetryQueue(queue), err)
	}
	if _, err := b.ch.QueueDeclare(DeadQueue(queue), true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s: %w", DeadQueue(queue), err)
	}
	b.declared[queue] = true
	return nil
}

// retryQueueArgs routes expired retry messages back into the work queue
func retryQueueArgs(queue string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
}

func (b *AMQPBroker) ensure(queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.declare(queue)
}

func (b *AMQPBroker) publish(ctx context.Context, routingKey string, job *Job, expiration string) error {
	body, err := job.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	return b.ch.PublishWithContext(ctx, "", routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Type:         job.EventType,
		Timestamp:    job.EnqueuedAt,
		Expiration:   expiration,
		Body:         body,
	})
}

// Enqueue publishes the job as a persistent message
func (b *AMQPBroker) Enqueue(ctx context.Context, job *Job) error {
	if err := b.ensure(job.Queue); err != nil {
		return err
	}
	if err := b.publish(ctx, job.Queue, job, ""); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

func (b *AMQPBroker) deliveries(queue string) (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msgs, ok := b.consumers[queue]; ok {
		return msgs, nil
	}
	if err := b.declare(queue); err != nil {
		return nil, err
	}
	if err := b.ch.Qos(b.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}
	msgs, err := b.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", queue, err)
	}
	b.consumers[queue] = msgs
	return msgs, nil
}

// Reserve waits for the next message on the queue
func (b *AMQPBroker) Reserve(ctx context.Context, queue string, timeout time.Duration) (*Delivery, error) {
	msgs, err := b.deliveries(queue)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-msgs:
		if !ok {
			return nil, ErrClosed
		}
		job, err := UnmarshalJob(msg.Body)
		if err != nil {
			b.logger.Error("dropping undecodable message to dead queue", zap.String("queue", queue), zap.Error(err))
			if perr := b.ch.PublishWithContext(ctx, "", DeadQueue(queue), false, false, amqp.Publishing{
				ContentType:  msg.ContentType,
				DeliveryMode: amqp.Persistent,
				Body:         msg.Body,
			}); perr != nil {
				_ = msg.Nack(false, true)
				return nil, fmt.Errorf("failed to dead-letter undecodable message: %w", perr)
			}
			return nil, msg.Ack(false)
		}
		if job.Queue == "" {
			job.Queue = queue
		}
		return &Delivery{Job: job, tag: msg}, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func amqpDelivery(d *Delivery) (amqp.Delivery, error) {
	msg, ok := d.tag.(amqp.Delivery)
	if !ok {
		return amqp.Delivery{}, fmt.Errorf("queue: job %s was not reserved from rabbitmq", d.Job.ID)
	}
	return msg, nil
}

// Ack acknowledges the message
func (b *AMQPBroker) Ack(_ context.Context, d *Delivery) error {
	msg, err := amqpDelivery(d)
	if err != nil {
		return err
	}
	return msg.Ack(false)
}

// Retry republishes the updated job on the retry queue with the delay as TTL,
// then acknowledges the original message
func (b *AMQPBroker) Retry(ctx context.Context, d *Delivery, delay time.Duration) error {
	msg, err := amqpDelivery(d)
	if err != nil {
		return err
	}

	routingKey, expiration := RetryQueue(d.Job.Queue), strconv.FormatInt(delay.Milliseconds(), 10)
	if delay <= 0 {
		routingKey, expiration = d.Job.Queue, ""
	}
	if err := b.publish(ctx, routingKey, d.Job, expiration); err != nil {
		return fmt.Errorf("failed to schedule retry of job %s: %w", d.Job.ID, err)
	}
	return msg.Ack(false)
}

// DeadLetter republishes the job on the dead queue and acknowledges the original
func (b *AMQPBroker) DeadLetter(ctx context.Context, d *Delivery) error {
	msg, err := amqpDelivery(d)
	if err != nil {
		return err
	}
	if err := b.publish(ctx, DeadQueue(d.Job.Queue), d.Job, ""); err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", d.Job.ID, err)
	}
	return msg.Ack(false)
}

// Ping reports a closed connection
func (b *AMQPBroker) Ping(context.Context) error {
	if b.conn != nil && b.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close closes the channel and the connection
func (b *AMQPBroker) Close() error {
	err := b.ch.Close()
	if b.conn != nil {
		err = errors.Join(err, b.conn.Close())
	}
	return err
}

var _ Broker = (*AMQPBroker)(nil)
