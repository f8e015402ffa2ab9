//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/migration"
	"github.com/saas/backend/migrations"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupPostgres starts a throwaway PostgreSQL container and applies the
// embedded migrations, so the schema under test is the one shipped.
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("saas_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// The migrator closes its connection when done, so it gets its own.
	migrateDB, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := migrateDB.DB()
	require.NoError(t, err)
	m, err := migration.NewEmbedded(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	_ = m.Close()

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	conn, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return db
}

func TestPostgres_OneActiveSubscriptionPerTenant(t *testing.T) {
	ctx := context.Background()
	db := setupPostgres(t)

	tenant := newTestTenant(t, "pgacme")
	require.NoError(t, NewGormTenantRepository(db).Create(ctx, tenant))

	repo := NewGormSubscriptionRepository(db)
	activate := func() error {
		sub, _, err := billing.NewSubscription(tenant.ID, billing.PlanMonthly, decimal.NewFromInt(49), billing.USD, testNow)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, sub))

		charge := &billing.Charge{PaymentID: uuid.New(), Amount: decimal.NewFromInt(49), Currency: billing.USD}
		active, _, err := sub.Activate(billing.PlanMonthly.PeriodEnd(testNow), charge, testNow)
		require.NoError(t, err)
		return repo.Update(ctx, &active)
	}

	require.NoError(t, activate())
	err := activate()
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	ok, err := repo.HasActive(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgres_InvoiceSourceEventIsUnique(t *testing.T) {
	ctx := context.Background()
	db := setupPostgres(t)

	tenant := newTestTenant(t, "pginv")
	require.NoError(t, NewGormTenantRepository(db).Create(ctx, tenant))
	sub, _, err := billing.NewSubscription(tenant.ID, billing.PlanYearly, decimal.NewFromInt(490), billing.USD, testNow)
	require.NoError(t, err)
	require.NoError(t, NewGormSubscriptionRepository(db).Create(ctx, sub))

	repo := NewGormInvoiceRepository(db)
	eventID := uuid.New()

	first := newTestInvoice(t, tenant.ID, sub.ID, "INV-PG-1", testNow, &eventID)
	require.NoError(t, repo.Create(ctx, first))

	dup := newTestInvoice(t, tenant.ID, sub.ID, "INV-PG-2", testNow.AddDate(1, 0, 0), &eventID)
	assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrAlreadyExists)

	got, err := repo.FindByNumber(ctx, tenant.ID, "INV-PG-1")
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(first.Total))
}
