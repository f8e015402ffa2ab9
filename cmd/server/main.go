package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saas/backend/internal/bootstrap"
	"github.com/saas/backend/internal/infrastructure/config"
	"github.com/saas/backend/internal/infrastructure/event"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/scheduler"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"github.com/saas/backend/internal/interfaces/http/handler"
	"github.com/saas/backend/internal/interfaces/http/middleware"
	"github.com/saas/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting billing API",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	tp, err := telemetry.New(ctx, telemetryConfig(cfg), log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	log = tp.TeeLogger(log)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeURL,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() { _ = profiler.Stop() }()
	if profiler.IsEnabled() {
		tp.EnableSpanProfiles()
	}

	metrics, err := telemetry.NewBillingMetrics(tp.Meter("billing"))
	if err != nil {
		log.Fatal("Failed to create billing metrics", zap.Error(err))
	}

	app, err := bootstrap.New(ctx, cfg, log, metrics)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("Error closing connections", zap.Error(err))
		}
	}()

	// The embedded worker consumes the queue inside the API process, which
	// is how single-node deployments run with the queue publisher.
	var consumer *event.Consumer
	if cfg.Events.Publisher == bootstrap.PublisherQueue && cfg.Events.EmbeddedWorker {
		if err := app.RecoverQueue(ctx); err != nil {
			log.Fatal("Failed to recover queue", zap.Error(err))
		}
		consumer = app.NewConsumer()
		if err := consumer.Start(ctx); err != nil {
			log.Fatal("Failed to start event consumer", zap.Error(err))
		}
	}

	expiry := scheduler.NewExpiryScheduler(cfg.Scheduler, app.Expiry, log)
	if cfg.Scheduler.Enabled {
		if err := expiry.Start(); err != nil {
			log.Fatal("Failed to start expiry scheduler", zap.Error(err))
		}
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var signupLimiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 && app.Redis != nil {
		signupLimiter = middleware.NewRateLimiter(app.Redis, cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow)
	}

	checks := map[string]handler.CheckFunc{
		"database": app.DB.Ping,
		"queue":    app.Broker.Ping,
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() }
	}

	engine, err := router.NewEngine(router.Options{
		ServiceName:    cfg.Telemetry.ServiceName,
		Logger:         log,
		Meter:          tp.Meter("http"),
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		SignupLimiter:  signupLimiter,
	}, router.Handlers{
		Tenants:       handler.NewTenantHandler(app.Tenants),
		Subscriptions: handler.NewSubscriptionHandler(app.Subscriptions),
		Payments:      handler.NewPaymentHandler(app.Payments),
		Webhooks:      handler.NewWebhookHandler(app.Payments),
		Invoices:      handler.NewInvoiceHandler(app.Invoices),
		Admin:         handler.NewAdminHandler(app.DeadLetterService, expiry),
		Health:        handler.NewHealthHandler(version, checks),
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Let a running sweep finish before the database goes away
	select {
	case <-expiry.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("Expiry sweep still running at shutdown")
	}

	if consumer != nil {
		if err := consumer.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping event consumer", zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}

func telemetryConfig(cfg *config.Config) telemetry.Config {
	return telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}
}
