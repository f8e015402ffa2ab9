// Command worker consumes billing events from the queue and runs the saga
// handlers. Failed deliveries are retried with backoff and end up in the
// dead-letter table once attempts are exhausted.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/saas/backend/internal/bootstrap"
	"github.com/saas/backend/internal/infrastructure/config"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

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
		Service: cfg.App.Name + "-worker",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if cfg.Events.Publisher != bootstrap.PublisherQueue {
		log.Fatal("Worker requires events.publisher=queue", zap.String("publisher", cfg.Events.Publisher))
	}

	log.Info("Starting billing worker",
		zap.String("env", cfg.App.Env),
		zap.String("queue", cfg.Events.QueueName),
		zap.String("driver", cfg.Queue.Driver),
		zap.Int("concurrency", cfg.Queue.Concurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.New(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName + "-worker",
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	log = tp.TeeLogger(log)

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

	if err := app.RecoverQueue(ctx); err != nil {
		log.Fatal("Failed to recover queue", zap.Error(err))
	}

	consumer := app.NewConsumer()
	if err := consumer.Start(ctx); err != nil {
		log.Fatal("Failed to start event consumer", zap.Error(err))
	}

	<-ctx.Done()
	log.Info("Shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Error("Worker forced to shutdown", zap.Error(err))
	}

	log.Info("Worker exited gracefully")
}
