package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
)

// LockSpec describes a lock to create. Permanent locks ignore TTL.
type LockSpec struct {
	TTL       time.Duration
	Permanent bool
	Reason    string
	Actor     string
}

type LockService interface {
	CreateLock(ctx context.Context, tx *sql.Tx, mediaID string, spec LockSpec) (*models.Lock, error)
	IsLocked(ctx context.Context, mediaID string) (bool, error)
	ListLocks(ctx context.Context, mediaID string) ([]*models.Lock, error)
	PurgeExpired(ctx context.Context, grace time.Duration) (int64, error)
}

type lockService struct {
	lr    repository.LockRepository
	clock Clock
}

func NewLockService(lr repository.LockRepository, clock Clock) LockService {
	return &lockService{
		lr:    lr,
		clock: clock,
	}
}

func (s *lockService) CreateLock(ctx context.Context, tx *sql.Tx, mediaID string, spec LockSpec) (*models.Lock, error) {
	if mediaID == "" {
		return nil, models.NewValidationError("media_id", "is required")
	}
	if !spec.Permanent && spec.TTL <= 0 {
		return nil, models.NewValidationError("ttl", "must be positive for a non-permanent lock")
	}
	if spec.Reason == "" {
		spec.Reason = models.LockReasonManual
	}
	if spec.Actor == "" {
		spec.Actor = SystemActor
	}

	now := s.clock.Now()
	lock := &models.Lock{
		ID:        newID(),
		MediaID:   mediaID,
		Reason:    spec.Reason,
		CreatedBy: spec.Actor,
		CreatedAt: now,
	}
	if !spec.Permanent {
		until := now.Add(spec.TTL)
		lock.LockedUntil = &until
	}

	if err := s.lr.Create(ctx, tx, lock); err != nil {
		return nil, err
	}
	return lock, nil
}

func (s *lockService) IsLocked(ctx context.Context, mediaID string) (bool, error) {
	return s.lr.IsLocked(ctx, mediaID, s.clock.Now())
}

func (s *lockService) ListLocks(ctx context.Context, mediaID string) ([]*models.Lock, error) {
	return s.lr.ListByMedia(ctx, mediaID)
}

// PurgeExpired deletes TTL locks that ended more than grace ago. Selection
// never depends on it having run.
func (s *lockService) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	return s.lr.DeleteExpired(ctx, s.clock.Now().Add(-grace))
}
