package queue

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/saas/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewBroker builds the broker selected by queue.driver. The redis client is
// only used by the redis driver and may be nil otherwise.
func NewBroker(cfg config.QueueConfig, client *redis.Client, logger *zap.Logger) (Broker, error) {
	switch cfg.Driver {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("queue driver redis requires a redis client")
		}
		return NewRedisBroker(client, "", logger), nil
	case "amqp":
		return NewAMQPBroker(cfg.AMQPURL, cfg.PrefetchCount, logger)
	case "memory":
		logger.Warn("using in-memory queue: jobs are lost on restart and not shared between processes")
		return NewMemoryBroker(), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
