package storage

import (
	"context"

	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewDocumentStore returns an S3 store when storage is enabled, otherwise an
// in-memory one. The bucket is created on startup if missing.
func NewDocumentStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (billing.DocumentStore, error) {
	if !cfg.Enabled {
		logger.Info("Object storage disabled, invoice documents kept in memory")
		return NewMemoryDocumentStore(""), nil
	}

	store, err := NewS3DocumentStore(ctx, &cfg,
		WithLogger(logger),
		WithPresignExpiration(cfg.PresignExpiration),
	)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	logger.Info("Object storage ready", zap.String("bucket", store.Bucket()))
	return store, nil
}
