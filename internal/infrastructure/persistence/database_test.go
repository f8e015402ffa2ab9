package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockPostgres(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB, DriverName: "postgres"}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestNewDatabase_SQLite(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:       "sqlite",
		DBName:       filepath.Join(t.TempDir(), "billing.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}

	db, err := NewDatabase(cfg, zap.NewNop(), Options{LogLevel: "silent", Migrate: true})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))
	assert.True(t, db.DB.Migrator().HasTable("subscriptions"))
	assert.True(t, db.DB.Migrator().HasTable("dead_letter_jobs"))
}

func TestDatabase_TransactionRollsBack(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:       "sqlite",
		DBName:       filepath.Join(t.TempDir(), "tx.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	db, err := NewDatabase(cfg, zap.NewNop(), Options{LogLevel: "silent", Migrate: true})
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	tenant := newTestTenant(t, "rollback")
	boom := errors.New("boom")

	err = db.Transaction(ctx, func(tx *gorm.DB) error {
		require.NoError(t, NewGormTenantRepository(tx).Create(ctx, tenant))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := NewGormTenantRepository(db.DB).Exists(ctx, tenant.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCasUpdate_Postgres(t *testing.T) {
	ctx := context.Background()

	t.Run("stale version reports a conflict", func(t *testing.T) {
		db, mock := newMockPostgres(t)
		tenant := newTestTenant(t, "stale")

		mock.ExpectExec(`UPDATE "tenants" SET .* WHERE .*id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := NewGormTenantRepository(db).Update(ctx, tenant)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 1, tenant.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("matching version bumps the aggregate", func(t *testing.T) {
		db, mock := newMockPostgres(t)
		tenant := newTestTenant(t, "fresh")

		mock.ExpectExec(`UPDATE "tenants" SET .*"version"=\$\d+.* WHERE .*version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewGormTenantRepository(db).Update(ctx, tenant))
		assert.Equal(t, 2, tenant.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver errors pass through", func(t *testing.T) {
		db, mock := newMockPostgres(t)
		tenant := newTestTenant(t, "broken")

		mock.ExpectExec(`UPDATE "tenants"`).WillReturnError(errors.New("connection reset"))

		err := NewGormTenantRepository(db).Update(ctx, tenant)
		require.Error(t, err)
		assert.NotErrorIs(t, err, shared.ErrConcurrencyConflict)
	})
}
