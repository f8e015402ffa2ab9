package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// TenantParam is the route parameter carrying the tenant id
const TenantParam = "tenant_id"

// TenantIDKey is the gin context key for the resolved tenant id
const TenantIDKey = "tenant_id"

// TenantScope resolves the :tenant_id route parameter. Malformed ids are
// rejected with 400 before any handler runs. The id is added to the
// request context so log lines and spans carry it.
func TenantScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param(TenantParam)
		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeInvalidInput,
				"Invalid tenant ID format",
				logger.RequestID(c.Request.Context()),
			))
			return
		}

		c.Set(TenantIDKey, id)
		ctx := logger.WithTenantID(c.Request.Context(), id.String())
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(zap.String("tenant_id", id.String())))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetTenantUUID returns the tenant resolved by TenantScope
func GetTenantUUID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(TenantIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetTenantID returns the resolved tenant id as a string, or ""
func GetTenantID(c *gin.Context) string {
	if id, ok := GetTenantUUID(c); ok {
		return id.String()
	}
	return ""
}
