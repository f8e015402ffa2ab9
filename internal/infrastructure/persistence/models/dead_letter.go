package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"gorm.io/datatypes"
)

// DeadLetterModel stores a queue job that exhausted its retries.
type DeadLetterModel struct {
	ID         uuid.UUID               `gorm:"type:uuid;primaryKey"`
	JobID      string                  `gorm:"type:varchar(64);not null;index"`
	Queue      string                  `gorm:"type:varchar(100);not null"`
	EventID    uuid.UUID               `gorm:"type:uuid;index"`
	EventType  string                  `gorm:"type:varchar(100);not null;index"`
	TenantID   uuid.UUID               `gorm:"type:uuid;index"`
	Payload    datatypes.JSON          `gorm:"type:jsonb;not null"`
	Attempts   int                     `gorm:"not null"`
	LastError  string                  `gorm:"type:text"`
	Status     shared.DeadLetterStatus `gorm:"type:varchar(20);not null;index"`
	CreatedAt  time.Time               `gorm:"not null;index"`
	RequeuedAt *time.Time
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DeadLetterModel) TableName() string {
	return "dead_letter_jobs"
}

// ToDomain converts the persistence model to a domain DeadLetter.
func (m *DeadLetterModel) ToDomain() *shared.DeadLetter {
	return &shared.DeadLetter{
		ID:         m.ID,
		JobID:      m.JobID,
		Queue:      m.Queue,
		EventID:    m.EventID,
		EventType:  m.EventType,
		TenantID:   m.TenantID,
		Payload:    []byte(m.Payload),
		Attempts:   m.Attempts,
		LastError:  m.LastError,
		Status:     m.Status,
		CreatedAt:  m.CreatedAt,
		RequeuedAt: m.RequeuedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// DeadLetterModelFromDomain creates a persistence model from a domain DeadLetter.
func DeadLetterModelFromDomain(d *shared.DeadLetter) *DeadLetterModel {
	return &DeadLetterModel{
		ID:         d.ID,
		JobID:      d.JobID,
		Queue:      d.Queue,
		EventID:    d.EventID,
		EventType:  d.EventType,
		TenantID:   d.TenantID,
		Payload:    datatypes.JSON(d.Payload),
		Attempts:   d.Attempts,
		LastError:  d.LastError,
		Status:     d.Status,
		CreatedAt:  d.CreatedAt.UTC(),
		RequeuedAt: utcPtr(d.RequeuedAt),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}

// All lists every model, in dependency order, for AutoMigrate in tests and
// the sqlite development profile.
func All() []any {
	return []any{
		&TenantModel{},
		&SubscriptionModel{},
		&PaymentModel{},
		&InvoiceModel{},
		&DeadLetterModel{},
	}
}
