package service

import (
	"context"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
)

type SelectorService interface {
	SelectNext(ctx context.Context, category string) (*models.MediaItem, error)
	CountEligible(ctx context.Context, category string) (int, error)
}

type selectorService struct {
	mr    repository.MediaRepository
	clock Clock
}

func NewSelectorService(mr repository.MediaRepository, clock Clock) SelectorService {
	return &selectorService{
		mr:    mr,
		clock: clock,
	}
}

// SelectNext returns the highest priority eligible item, or nil when none is
// eligible. An empty category matches every item.
func (s *selectorService) SelectNext(ctx context.Context, category string) (*models.MediaItem, error) {
	items, err := s.mr.ListEligible(ctx, s.clock.Now(), category, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (s *selectorService) CountEligible(ctx context.Context, category string) (int, error) {
	return s.mr.CountEligible(ctx, s.clock.Now(), category)
}
