package payment

import (
	"fmt"
	"sort"

	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Registry resolves payment providers by name
type Registry struct {
	providers   map[string]billing.PaymentProvider
	defaultName string
}

// NewRegistry creates a registry. defaultName must name one of providers.
func NewRegistry(defaultName string, providers ...billing.PaymentProvider) (*Registry, error) {
	r := &Registry{
		providers:   make(map[string]billing.PaymentProvider, len(providers)),
		defaultName: defaultName,
	}
	for _, p := range providers {
		if _, dup := r.providers[p.Name()]; dup {
			return nil, fmt.Errorf("payment: provider %q registered twice", p.Name())
		}
		r.providers[p.Name()] = p
	}
	if _, ok := r.providers[defaultName]; !ok {
		return nil, fmt.Errorf("payment: default provider %q is not configured", defaultName)
	}
	return r, nil
}

// Get returns the named provider or billing.ErrProviderNotFound
func (r *Registry) Get(name string) (billing.PaymentProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, billing.ErrProviderNotFound
	}
	return p, nil
}

// Default returns the provider used when a request names none
func (r *Registry) Default() billing.PaymentProvider {
	return r.providers[r.defaultName]
}

// Names returns the registered provider names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig registers Stripe when enabled and the HMAC gateway
// when a webhook secret is set.
func NewRegistryFromConfig(cfg *config.Config, logger *zap.Logger) (*Registry, error) {
	var providers []billing.PaymentProvider
	if cfg.Stripe.Enabled {
		providers = append(providers, NewStripeProvider(StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Tolerance:     cfg.Webhook.Tolerance,
		}, logger))
	}
	if cfg.Webhook.HMACSecret != "" {
		providers = append(providers, NewHMACProvider(cfg.Webhook.HMACSecret, cfg.Webhook.Tolerance))
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("payment: no provider configured, enable stripe or set webhook.hmac_secret")
	}
	return NewRegistry(cfg.Billing.DefaultProvider, providers...)
}

var _ billing.PaymentProviderRegistry = (*Registry)(nil)
