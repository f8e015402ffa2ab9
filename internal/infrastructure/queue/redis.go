package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// promoteScript moves due jobs from the delayed set back onto the pending list
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, job in ipairs(due) do
	redis.call('ZREM', KEYS[1], job)
	redis.call('LPUSH', KEYS[2], job)
end
return #due
`)

const promoteBatch = 100

// RedisBroker implements Broker on Redis lists.
//
// Per queue it keeps a pending list, a processing list (reliable queue via
// BLMOVE), a delayed sorted set scored by due time in unix millis, and a dead
// list.
type RedisBroker struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
	now       func() time.Time
}

// NewRedisBroker creates a broker on an existing client
func NewRedisBroker(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisBroker {
	if keyPrefix == "" {
		keyPrefix = "queue:"
	}
	return &RedisBroker{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
		now:       time.Now,
	}
}

func (b *RedisBroker) pendingKey(queue string) string    { return b.keyPrefix + queue }
func (b *RedisBroker) processingKey(queue string) string { return b.keyPrefix + queue + ":processing" }
func (b *RedisBroker) delayedKey(queue string) string    { return b.keyPrefix + queue + ":delayed" }
func (b *RedisBroker) deadKey(queue string) string       { return b.keyPrefix + DeadQueue(queue) }

// Enqueue pushes the job onto its pending list
func (b *RedisBroker) Enqueue(ctx context.Context, job *Job) error {
	data, err := job.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := b.client.LPush(ctx, b.pendingKey(job.Queue), data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Reserve promotes due delayed jobs, then blocks on the pending list
func (b *RedisBroker) Reserve(ctx context.Context, queue string, timeout time.Duration) (*Delivery, error) {
	if err := b.promote(ctx, queue); err != nil {
		return nil, err
	}

	raw, err := b.client.BLMove(ctx, b.pendingKey(queue), b.processingKey(queue), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve from %s: %w", queue, err)
	}

	job, err := UnmarshalJob([]byte(raw))
	if err != nil {
		// Unreadable entries would block the processing list forever
		b.logger.Error("dropping undecodable job to dead list", zap.String("queue", queue), zap.Error(err))
		pipe := b.client.TxPipeline()
		pipe.LRem(ctx, b.processingKey(queue), 1, raw)
		pipe.LPush(ctx, b.deadKey(queue), raw)
		if _, perr := pipe.Exec(ctx); perr != nil {
			return nil, fmt.Errorf("failed to dead-letter undecodable job: %w", perr)
		}
		return nil, nil
	}
	if job.Queue == "" {
		job.Queue = queue
	}
	return &Delivery{Job: job, raw: raw}, nil
}

func (b *RedisBroker) promote(ctx context.Context, queue string) error {
	now := strconv.FormatInt(b.now().UnixMilli(), 10)
	err := promoteScript.Run(ctx, b.client,
		[]string{b.delayedKey(queue), b.pendingKey(queue)}, now, promoteBatch).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to promote delayed jobs: %w", err)
	}
	return nil
}

// Ack drops the job from the processing list
func (b *RedisBroker) Ack(ctx context.Context, d *Delivery) error {
	if err := b.client.LRem(ctx, b.processingKey(d.Job.Queue), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", d.Job.ID, err)
	}
	return nil
}

// Retry parks the updated job in the delayed set
func (b *RedisBroker) Retry(ctx context.Context, d *Delivery, delay time.Duration) error {
	data, err := d.Job.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	due := float64(b.now().Add(delay).UnixMilli())

	pipe := b.client.TxPipeline()
	pipe.LRem(ctx, b.processingKey(d.Job.Queue), 1, d.raw)
	pipe.ZAdd(ctx, b.delayedKey(d.Job.Queue), redis.Z{Score: due, Member: string(data)})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to schedule retry of job %s: %w", d.Job.ID, err)
	}
	return nil
}

// DeadLetter moves the job to the dead list
func (b *RedisBroker) DeadLetter(ctx context.Context, d *Delivery) error {
	data, err := d.Job.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.LRem(ctx, b.processingKey(d.Job.Queue), 1, d.raw)
	pipe.LPush(ctx, b.deadKey(d.Job.Queue), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", d.Job.ID, err)
	}
	return nil
}

// Recover moves jobs left on the processing list by a crashed worker back to
// pending. Call it before starting consumers, while no worker holds jobs.
func (b *RedisBroker) Recover(ctx context.Context, queue string) (int, error) {
	moved := 0
	for {
		err := b.client.LMove(ctx, b.processingKey(queue), b.pendingKey(queue), "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover %s: %w", queue, err)
		}
		moved++
	}
	if moved > 0 {
		b.logger.Warn("recovered in-flight jobs", zap.String("queue", queue), zap.Int("count", moved))
	}
	return moved, nil
}

// Len reports the number of pending, delayed and dead jobs of a queue
func (b *RedisBroker) Len(ctx context.Context, queue string) (pending, delayed, dead int64, err error) {
	pipe := b.client.Pipeline()
	p := pipe.LLen(ctx, b.pendingKey(queue))
	z := pipe.ZCard(ctx, b.delayedKey(queue))
	d := pipe.LLen(ctx, b.deadKey(queue))
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, err
	}
	return p.Val(), z.Val(), d.Val(), nil
}

// Ping checks the redis connection
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close is a no-op: the client is shared and closed by its owner
func (b *RedisBroker) Close() error {
	return nil
}

var _ Broker = (*RedisBroker)(nil)
