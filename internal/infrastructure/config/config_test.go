package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearSaasEnv unsets every SAAS_ variable for the duration of the test.
func clearSaasEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "SAAS_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearSaasEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "saas-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "saas", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)

		assert.Equal(t, "inprocess", cfg.Events.Publisher)
		assert.Equal(t, "events", cfg.Events.QueueName)
		assert.Equal(t, 5, cfg.Events.MaxAttempts)
		assert.Equal(t, time.Second, cfg.Events.BaseBackoff)
		assert.Equal(t, "redis", cfg.Queue.Driver)
		assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)

		assert.True(t, cfg.Billing.TaxRate.IsZero())
		assert.Equal(t, "USD", cfg.Billing.DefaultCurrency)
		assert.Equal(t, "INV", cfg.Billing.InvoicePrefix)
		assert.Equal(t, 14, cfg.Billing.InvoiceDueDays)
		assert.Equal(t, "hmac", cfg.Billing.DefaultProvider)

		assert.Equal(t, "@hourly", cfg.Scheduler.SubscriptionExpirySpec)
		assert.Equal(t, "@hourly", cfg.Scheduler.TrialExpirySpec)
		assert.Equal(t, 100, cfg.Scheduler.BatchSize)
		assert.Equal(t, "saas-backend", cfg.Telemetry.ServiceName)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
	})

	t.Run("environment variables override defaults", func(t *testing.T) {
		clearSaasEnv(t)
		t.Setenv("SAAS_APP_PORT", "9090")
		t.Setenv("SAAS_EVENTS_PUBLISHER", "queue")
		t.Setenv("SAAS_QUEUE_DRIVER", "amqp")
		t.Setenv("SAAS_EVENTS_BASE_BACKOFF", "250ms")
		t.Setenv("SAAS_BILLING_TAX_RATE", "0.2")
		t.Setenv("SAAS_BILLING_DEFAULT_CURRENCY", "EUR")
		t.Setenv("SAAS_STRIPE_ENABLED", "true")
		t.Setenv("SAAS_STRIPE_SECRET_KEY", "sk_test_x")
		t.Setenv("SAAS_STRIPE_WEBHOOK_SECRET", "whsec_x")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9090", cfg.App.Port)
		assert.Equal(t, "queue", cfg.Events.Publisher)
		assert.Equal(t, "amqp", cfg.Queue.Driver)
		assert.Equal(t, 250*time.Millisecond, cfg.Events.BaseBackoff)
		assert.True(t, cfg.Billing.TaxRate.Equal(decimal.RequireFromString("0.2")))
		assert.Equal(t, "EUR", cfg.Billing.DefaultCurrency)
		assert.Equal(t, "stripe", cfg.Billing.DefaultProvider)
	})

	t.Run("rejects malformed tax rate", func(t *testing.T) {
		clearSaasEnv(t)
		t.Setenv("SAAS_BILLING_TAX_RATE", "twenty")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "billing.tax_rate")
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown publisher", func(c *Config) { c.Events.Publisher = "kafka" }, "events.publisher"},
		{"unknown queue driver", func(c *Config) { c.Queue.Driver = "sqs" }, "queue.driver"},
		{
			"memory queue without embedded worker",
			func(c *Config) { c.Events.Publisher = "queue"; c.Queue.Driver = "memory" },
			"embedded_worker",
		},
		{
			"memory queue with embedded worker",
			func(c *Config) {
				c.Events.Publisher = "queue"
				c.Queue.Driver = "memory"
				c.Events.EmbeddedWorker = true
			},
			"",
		},
		{"tax rate of one", func(c *Config) { c.Billing.TaxRate = decimal.NewFromInt(1) }, "billing.tax_rate"},
		{"negative tax rate", func(c *Config) { c.Billing.TaxRate = decimal.NewFromFloat(-0.1) }, "billing.tax_rate"},
		{"snowflake node out of range", func(c *Config) { c.Billing.NodeID = 2048 }, "billing.node_id"},
		{"stripe without keys", func(c *Config) { c.Stripe.Enabled = true }, "stripe.secret_key"},
		{"invoicing without url", func(c *Config) { c.Invoicing.Enabled = true }, "invoicing.base_url"},
		{"storage without bucket", func(c *Config) { c.Storage.Enabled = true }, "storage.bucket"},
		{"idle conns above open conns", func(c *Config) { c.Database.MaxIdleConns = 100 }, "max_idle_conns"},
		{"sampling ratio above one", func(c *Config) { c.Telemetry.SamplingRatio = 1.5 }, "sampling_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ProductionValidation(t *testing.T) {
	t.Run("requires database password", func(t *testing.T) {
		clearSaasEnv(t)
		t.Setenv("SAAS_APP_ENV", "production")
		t.Setenv("SAAS_DATABASE_SSLMODE", "require")
		t.Setenv("SAAS_WEBHOOK_HMAC_SECRET", "s3cret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password")
	})

	t.Run("requires webhook secret", func(t *testing.T) {
		clearSaasEnv(t)
		t.Setenv("SAAS_APP_ENV", "production")
		t.Setenv("SAAS_DATABASE_PASSWORD", "pw")
		t.Setenv("SAAS_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "webhook secret")
	})

	t.Run("accepts a complete production config", func(t *testing.T) {
		clearSaasEnv(t)
		t.Setenv("SAAS_APP_ENV", "production")
		t.Setenv("SAAS_DATABASE_PASSWORD", "pw")
		t.Setenv("SAAS_DATABASE_SSLMODE", "require")
		t.Setenv("SAAS_WEBHOOK_HMAC_SECRET", "s3cret")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("escapes credentials", func(t *testing.T) {
		d := DatabaseConfig{
			Driver:   "postgres",
			Host:     "db",
			Port:     5432,
			User:     "billing",
			Password: "p@ss/word",
			DBName:   "saas",
			SSLMode:  "disable",
		}
		assert.Equal(t, "postgres://billing:p%40ss%2Fword@db:5432/saas?sslmode=disable", d.DSN())
	})

	t.Run("sqlite uses the database name as path", func(t *testing.T) {
		d := DatabaseConfig{Driver: "sqlite", DBName: "file::memory:?cache=shared"}
		assert.Equal(t, "file::memory:?cache=shared", d.DSN())
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: 6380}.Addr())
}
