// Package router assembles the gin engine of the billing API.
package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/interfaces/http/dto"
	"github.com/saas/backend/internal/interfaces/http/handler"
	"github.com/saas/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// APIVersion is the path segment every versioned route is mounted under
const APIVersion = "v1"

// Handlers holds every HTTP handler of the billing API
type Handlers struct {
	Tenants       *handler.TenantHandler
	Subscriptions *handler.SubscriptionHandler
	Payments      *handler.PaymentHandler
	Webhooks      *handler.WebhookHandler
	Invoices      *handler.InvoiceHandler
	Admin         *handler.AdminHandler
	Health        *handler.HealthHandler
}

// Options configures the engine's middleware chain
type Options struct {
	ServiceName    string
	Logger         *zap.Logger
	Meter          metric.Meter
	MaxBodySize    int64
	TrustedProxies []string
	// SignupLimiter throttles tenant sign-up per client IP; nil disables it
	SignupLimiter *middleware.RateLimiter
}

// NewEngine builds the gin engine with the middleware chain and all routes.
//
//	/health/live, /health/ready
//	/webhooks/:provider
//	/api/v1/tenants/...
//	/api/v1/admin/...
func NewEngine(opts Options, h Handlers) (*gin.Engine, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	engine.Use(
		middleware.Tracing(opts.ServiceName),
		logger.GinMiddleware(opts.Logger),
		logger.Recovery(opts.Logger),
		middleware.SpanEnricher(),
		middleware.HTTPMetrics(opts.Meter),
	)
	if opts.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(opts.MaxBodySize))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeNotFound, "Route not found", logger.RequestID(c.Request.Context())))
	})

	health := engine.Group("/health")
	health.GET("/live", h.Health.Live)
	health.GET("/ready", h.Health.Ready)

	engine.POST("/webhooks/:provider", h.Webhooks.Receive)

	api := engine.Group("/api/" + APIVersion)
	registerTenantRoutes(api, h, opts.SignupLimiter)
	registerAdminRoutes(api, h)

	return engine, nil
}

func registerTenantRoutes(api *gin.RouterGroup, h Handlers, signupLimiter *middleware.RateLimiter) {
	tenants := api.Group("/tenants")
	tenants.POST("", middleware.RateLimit(signupLimiter), h.Tenants.Create)
	tenants.GET("", h.Tenants.List)

	scoped := tenants.Group("/:"+middleware.TenantParam, middleware.TenantScope())
	scoped.GET("", h.Tenants.Get)

	subs := scoped.Group("/subscriptions")
	subs.POST("", h.Subscriptions.Create)
	subs.GET("", h.Subscriptions.List)
	subs.GET("/:subscription_id", h.Subscriptions.Get)
	subs.POST("/:subscription_id/activate", h.Subscriptions.Activate)
	subs.POST("/:subscription_id/cancel", h.Subscriptions.Cancel)
	subs.POST("/:subscription_id/suspend", h.Subscriptions.Suspend)

	payments := scoped.Group("/payments")
	payments.POST("", h.Payments.CreateIntent)
	payments.GET("", h.Payments.List)
	payments.GET("/:payment_id", h.Payments.Get)
	payments.POST("/:payment_id/refund", h.Payments.Refund)

	invoices := scoped.Group("/invoices")
	invoices.GET("", h.Invoices.List)
	invoices.GET("/:invoice_id", h.Invoices.Get)
	invoices.GET("/:invoice_id/document", h.Invoices.DocumentURL)
	invoices.POST("/:invoice_id/issue", h.Invoices.Issue)
	invoices.POST("/:invoice_id/send", h.Invoices.Send)
	invoices.POST("/:invoice_id/pay", h.Invoices.MarkPaid)
	invoices.POST("/:invoice_id/cancel", h.Invoices.Cancel)
	invoices.POST("/:invoice_id/archive", h.Invoices.Archive)
}

func registerAdminRoutes(api *gin.RouterGroup, h Handlers) {
	admin := api.Group("/admin")
	admin.GET("/dead-letters", h.Admin.ListDeadLetters)
	admin.POST("/dead-letters/:id/requeue", h.Admin.RequeueDeadLetter)
	admin.POST("/dead-letters/:id/discard", h.Admin.DiscardDeadLetter)
	admin.POST("/expiry/run", h.Admin.RunExpiry)
}
