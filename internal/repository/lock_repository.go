package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
)

type LockRepository interface {
	Create(ctx context.Context, tx *sql.Tx, l *models.Lock) error
	IsLocked(ctx context.Context, mediaID string, now time.Time) (bool, error)
	ListByMedia(ctx context.Context, mediaID string) ([]*models.Lock, error)
	DeleteExpired(ctx context.Context, expiredBefore time.Time) (int64, error)
}

type lockRepository struct {
	db *sql.DB
}

func NewLockRepository(db *sql.DB) LockRepository {
	return &lockRepository{db: db}
}

func (r *lockRepository) Create(ctx context.Context, tx *sql.Tx, l *models.Lock) error {
	query := `
		INSERT INTO media_locks (id, media_id, locked_until, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := conn(r.db, tx).ExecContext(ctx, query,
		l.ID, l.MediaID, nullTime(l.LockedUntil), l.Reason, l.CreatedBy, utc(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert lock: %w", err)
	}
	return nil
}

func (r *lockRepository) IsLocked(ctx context.Context, mediaID string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM media_locks
			WHERE media_id = $1 AND (locked_until IS NULL OR locked_until > $2)
		)
	`
	var locked bool
	if err := r.db.QueryRowContext(ctx, query, mediaID, utc(now)).Scan(&locked); err != nil {
		return false, fmt.Errorf("check lock for media %s: %w", mediaID, err)
	}
	return locked, nil
}

func (r *lockRepository) ListByMedia(ctx context.Context, mediaID string) ([]*models.Lock, error) {
	query := `
		SELECT id, media_id, locked_until, reason, created_by, created_at
		FROM media_locks WHERE media_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	defer rows.Close()

	var locks []*models.Lock
	for rows.Next() {
		var l models.Lock
		var until sql.NullTime
		if err := rows.Scan(&l.ID, &l.MediaID, &until, &l.Reason, &l.CreatedBy, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		l.LockedUntil = timePtr(until)
		locks = append(locks, &l)
	}
	return locks, rows.Err()
}

// DeleteExpired removes TTL locks that ended before expiredBefore.
// Permanent locks are never touched.
func (r *lockRepository) DeleteExpired(ctx context.Context, expiredBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM media_locks WHERE locked_until IS NOT NULL AND locked_until <= $1`, utc(expiredBefore))
	if err != nil {
		return 0, fmt.Errorf("delete expired locks: %w", err)
	}
	return res.RowsAffected()
}
