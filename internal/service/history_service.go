package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
)

const defaultHistoryLimit = 100

type HistoryService interface {
	Append(ctx context.Context, tx *sql.Tx, entry *models.PostingHistory) error
	GetByQueueID(ctx context.Context, queueID string) (*models.PostingHistory, error)
	ListByMedia(ctx context.Context, mediaID string, limit int) ([]*models.PostingHistory, error)
	ListByActor(ctx context.Context, actor string, limit int) ([]*models.PostingHistory, error)
	ListBetween(ctx context.Context, from, to time.Time, limit int) ([]*models.PostingHistory, error)
	Stats(ctx context.Context, from, to time.Time) (*models.HistoryStats, error)
}

type historyService struct {
	hr    repository.PostingHistoryRepository
	clock Clock
}

func NewHistoryService(hr repository.PostingHistoryRepository, clock Clock) HistoryService {
	return &historyService{
		hr:    hr,
		clock: clock,
	}
}

// Append writes entry once. A second entry for the same queue id is a
// ConflictError.
func (s *historyService) Append(ctx context.Context, tx *sql.Tx, entry *models.PostingHistory) error {
	if entry.QueueID == "" || entry.MediaID == "" {
		return models.NewValidationError("history", "queue_id and media_id are required")
	}
	if entry.ID == "" {
		entry.ID = newID()
	}
	now := s.clock.Now()
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = now
	}
	entry.CreatedAt = now
	entry.Success = entry.Outcome == models.HistoryOutcomePosted
	return s.hr.Create(ctx, tx, entry)
}

func (s *historyService) GetByQueueID(ctx context.Context, queueID string) (*models.PostingHistory, error) {
	h, err := s.hr.GetByQueueID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, models.NewNotFoundError("history", queueID)
	}
	return h, nil
}

func (s *historyService) ListByMedia(ctx context.Context, mediaID string, limit int) ([]*models.PostingHistory, error) {
	return s.hr.ListByMedia(ctx, mediaID, clampLimit(limit))
}

func (s *historyService) ListByActor(ctx context.Context, actor string, limit int) ([]*models.PostingHistory, error) {
	return s.hr.ListByActor(ctx, actor, clampLimit(limit))
}

func (s *historyService) ListBetween(ctx context.Context, from, to time.Time, limit int) ([]*models.PostingHistory, error) {
	if !to.After(from) {
		return nil, models.NewValidationError("to", "must be after from")
	}
	return s.hr.ListBetween(ctx, from, to, clampLimit(limit))
}

func (s *historyService) Stats(ctx context.Context, from, to time.Time) (*models.HistoryStats, error) {
	if !to.After(from) {
		return nil, models.NewValidationError("to", "must be after from")
	}
	counts, err := s.hr.CountByOutcome(ctx, from, to)
	if err != nil {
		return nil, err
	}

	stats := &models.HistoryStats{From: from, To: to, ByOutcome: counts}
	for _, n := range counts {
		stats.Total += n
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(counts[models.HistoryOutcomePosted]) / float64(stats.Total)
	}
	return stats, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultHistoryLimit
	}
	return limit
}
