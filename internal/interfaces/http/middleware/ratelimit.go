package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// RateLimiter is a fixed-window counter shared by all API instances through Redis
type RateLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per key and window
func NewRateLimiter(client redis.UniversalClient, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
		now:    time.Now,
	}
}

// Allow counts one request for key and reports whether it fits the window,
// along with the requests left.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	bucket := rl.now().UnixNano() / int64(rl.window)
	redisKey := rl.prefix + key + ":" + strconv.FormatInt(bucket, 10)

	var incr *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, rl.window)
		return nil
	})
	if err != nil {
		return true, rl.limit, fmt.Errorf("rate limit counter: %w", err)
	}

	count := int(incr.Val())
	remaining := rl.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.limit, remaining, nil
}

// RateLimit limits requests per client IP. A nil limiter or a zero limit
// disables it; Redis failures let the request through.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	if limiter == nil || limiter.limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		allowed, remaining, err := limiter.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.L(ctx).Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(limiter.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many requests",
				logger.RequestID(ctx),
			))
			return
		}
		c.Next()
	}
}
