package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/shared"
	"github.com/saas/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// JobRequeuer hands a dead-lettered job back to its queue
type JobRequeuer interface {
	Requeue(ctx context.Context, letter *shared.DeadLetter) error
}

// DeadLetterService lets operators inspect and replay jobs that exhausted their retries
type DeadLetterService struct {
	repo     shared.DeadLetterRepository
	requeuer JobRequeuer
	logger   *zap.Logger
	now      Clock
}

// NewDeadLetterService creates a new DeadLetterService
func NewDeadLetterService(repo shared.DeadLetterRepository, requeuer JobRequeuer, logger *zap.Logger) *DeadLetterService {
	return &DeadLetterService{
		repo:     repo,
		requeuer: requeuer,
		logger:   logger,
		now:      utcNow,
	}
}

// ListDeadLetters returns a page of jobs still waiting for an operator
func (s *DeadLetterService) ListDeadLetters(ctx context.Context, filter ListFilter) (shared.Paginated[DeadLetterDTO], error) {
	f := filter.ToSharedFilter()
	letters, total, err := s.repo.FindDead(ctx, f)
	if err != nil {
		return shared.Paginated[DeadLetterDTO]{}, fmt.Errorf("failed to list dead letters: %w", err)
	}
	items := make([]DeadLetterDTO, len(letters))
	for i, letter := range letters {
		items[i] = ToDeadLetterDTO(letter)
	}
	return shared.NewPaginated(items, total, f.Page, f.Limit()), nil
}

// RequeueDeadLetter puts the job back on its queue with a fresh attempt count
func (s *DeadLetterService) RequeueDeadLetter(ctx context.Context, id uuid.UUID) (*DeadLetterDTO, error) {
	letter, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if letter.Status != shared.DeadLetterStatusDead {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Only dead entries can be requeued")
	}

	if err := s.requeuer.Requeue(ctx, letter); err != nil {
		return nil, fmt.Errorf("failed to requeue job: %w", err)
	}
	if err := letter.MarkRequeued(s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, letter); err != nil {
		return nil, fmt.Errorf("failed to update dead letter: %w", err)
	}

	logger.Enrich(ctx, s.logger).Info("dead letter requeued",
		zap.String("dead_letter_id", letter.ID.String()),
		zap.String("event_type", letter.EventType),
		zap.String("event_id", letter.EventID.String()),
	)
	dto := ToDeadLetterDTO(letter)
	return &dto, nil
}

// DiscardDeadLetter marks the job as acknowledged without replaying it
func (s *DeadLetterService) DiscardDeadLetter(ctx context.Context, id uuid.UUID) (*DeadLetterDTO, error) {
	letter, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := letter.MarkDiscarded(s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, letter); err != nil {
		return nil, fmt.Errorf("failed to update dead letter: %w", err)
	}
	dto := ToDeadLetterDTO(letter)
	return &dto, nil
}
