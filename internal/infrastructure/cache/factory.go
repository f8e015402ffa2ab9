package cache

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Idempotency backends
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// NewIdempotencyStore builds the store selected by idempotency.backend.
// The redis backend requires a client.
func NewIdempotencyStore(cfg config.IdempotencyConfig, client *redis.Client, logger *zap.Logger) (shared.IdempotencyStore, error) {
	switch cfg.Backend {
	case BackendRedis, "":
		if client == nil {
			return nil, fmt.Errorf("idempotency backend %q requires a Redis client", BackendRedis)
		}
		logger.Info("using Redis idempotency store")
		return NewRedisIdempotencyStore(client, ""), nil
	case BackendMemory:
		logger.Warn("using in-memory idempotency store; duplicates are only detected within this process")
		return NewInMemoryIdempotencyStore(), nil
	default:
		return nil, fmt.Errorf("unknown idempotency backend: %s", cfg.Backend)
	}
}
