package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// translateError maps driver errors onto domain errors. The connection is
// opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey on every supported driver.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.WrapDomainError(shared.CodeAlreadyExists, "Resource already exists", err)
	default:
		return err
	}
}

// casUpdate writes every column of model if the row still carries
// expectedVersion. The model must already hold expectedVersion+1.
func casUpdate(ctx context.Context, db *gorm.DB, model any, id uuid.UUID, expectedVersion int) error {
	result := db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", id, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// softDelete removes the tenant's row, reporting ErrNotFound when nothing matched.
func softDelete(ctx context.Context, db *gorm.DB, model any, tenantID, id uuid.UUID) error {
	result := db.WithContext(ctx).Scopes(tenantScope(tenantID)).Delete(model, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// tenantScope restricts a query to one tenant's rows.
func tenantScope(tenantID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// statusScope narrows a listing to the filter's status, if any.
func statusScope(filter shared.Filter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if filter.Status == "" {
			return db
		}
		return db.Where("status = ?", filter.Status)
	}
}
