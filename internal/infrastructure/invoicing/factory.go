package invoicing

import (
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewProvider returns the HTTP provider when invoicing is enabled and the
// no-op provider otherwise
func NewProvider(cfg config.InvoicingConfig, logger *zap.Logger) billing.InvoiceProvider {
	if !cfg.Enabled {
		logger.Info("invoicing disabled, invoices stay local")
		return NewNoopProvider()
	}
	return NewHTTPProvider(cfg, logger)
}
