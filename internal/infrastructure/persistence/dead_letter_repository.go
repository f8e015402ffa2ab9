package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormDeadLetterRepository implements shared.DeadLetterRepository using GORM
type GormDeadLetterRepository struct {
	db *gorm.DB
}

// NewGormDeadLetterRepository creates a new GormDeadLetterRepository
func NewGormDeadLetterRepository(db *gorm.DB) *GormDeadLetterRepository {
	return &GormDeadLetterRepository{db: db}
}

// Save inserts a dead letter
func (r *GormDeadLetterRepository) Save(ctx context.Context, letter *shared.DeadLetter) error {
	return translateError(r.db.WithContext(ctx).Create(models.DeadLetterModelFromDomain(letter)).Error)
}

// FindByID finds a dead letter by ID
func (r *GormDeadLetterRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.DeadLetter, error) {
	var model models.DeadLetterModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindDead lists entries still waiting for an operator
func (r *GormDeadLetterRepository) FindDead(ctx context.Context, filter shared.Filter) ([]*shared.DeadLetter, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.DeadLetterModel{}).
		Where("status = ?", shared.DeadLetterStatusDead)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.DeadLetterModel
	if err := query.Scopes(pageScope(filter, deadLetterSortColumns)).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	letters := make([]*shared.DeadLetter, len(rows))
	for i := range rows {
		letters[i] = rows[i].ToDomain()
	}
	return letters, total, nil
}

// Update records an operator decision on a dead entry. Only rows still DEAD
// are touched, so two operators cannot both requeue the same job.
func (r *GormDeadLetterRepository) Update(ctx context.Context, letter *shared.DeadLetter) error {
	result := r.db.WithContext(ctx).Model(&models.DeadLetterModel{}).
		Where("id = ? AND status = ?", letter.ID, shared.DeadLetterStatusDead).
		Updates(map[string]any{
			"status":      letter.Status,
			"requeued_at": letter.RequeuedAt,
			"updated_at":  letter.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// DeleteOlderThan purges resolved entries last touched before the cutoff
func (r *GormDeadLetterRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status <> ? AND updated_at < ?", shared.DeadLetterStatusDead, before.UTC()).
		Delete(&models.DeadLetterModel{})
	return result.RowsAffected, result.Error
}

// Ensure interface compliance
var _ shared.DeadLetterRepository = (*GormDeadLetterRepository)(nil)
