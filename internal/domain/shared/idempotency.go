package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers which (handler, event) pairs already
// succeeded, so a redelivered event does not repeat a saga step.
type IdempotencyStore interface {
	// MarkProcessed records key for ttl. It reports false when the key was
	// already recorded.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	Close() error
}

// IdempotencyConfig controls the idempotent handler wrapper
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
}

// DefaultIdempotencyConfig keeps claims for a day, longer than any retry
// schedule of the consumer.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{Enabled: true, TTL: 24 * time.Hour}
}
