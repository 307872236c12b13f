package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
)

type QueueRepository interface {
	Create(ctx context.Context, tx *sql.Tx, e *models.QueueEntry) error
	GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.QueueEntry, error)
	GetOpenByMedia(ctx context.Context, tx *sql.Tx, mediaID string) (*models.QueueEntry, error)
	Claim(ctx context.Context, tx *sql.Tx, id, actor string, now time.Time) (bool, error)
	ClaimForOperator(ctx context.Context, tx *sql.Tx, id, actor string, now time.Time) (bool, error)
	Transition(ctx context.Context, tx *sql.Tx, id string, from, to models.QueueStatus, lastError *string, now time.Time) (bool, error)
	ScheduleRetry(ctx context.Context, tx *sql.Tx, id string, retryCount int, nextRetryAt time.Time, lastError string, now time.Time) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error)
	ListUnannounced(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error)
	ListByStatus(ctx context.Context, status models.QueueStatus, limit, offset int) ([]*models.QueueEntry, error)
	ListStaleProcessing(ctx context.Context, claimedBefore time.Time, limit int) ([]*models.QueueEntry, error)
	CountScheduledBetween(ctx context.Context, from, to time.Time) (int, error)
	CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error)
	MarkAnnounced(ctx context.Context, id string, now time.Time) (bool, error)
	SetNotifyHandle(ctx context.Context, id, handle string) error
}

type queueRepository struct {
	db *sql.DB
}

func NewQueueRepository(db *sql.DB) QueueRepository {
	return &queueRepository{db: db}
}

const queueColumns = `id, media_id, scheduled_for, status, retry_count, max_retries, next_retry_at, last_error,
	claimed_by, claimed_at, notify_handle, announced_at, created_at, updated_at`

func scanQueueEntry(s rowScanner) (*models.QueueEntry, error) {
	var e models.QueueEntry
	var (
		nextRetryAt, claimedAt, announcedAt sql.NullTime
		lastError, claimedBy, notifyHandle  sql.NullString
		status                              string
	)
	err := s.Scan(&e.ID, &e.MediaID, &e.ScheduledFor, &status, &e.RetryCount, &e.MaxRetries,
		&nextRetryAt, &lastError, &claimedBy, &claimedAt, &notifyHandle, &announcedAt,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = models.QueueStatus(status)
	e.NextRetryAt = timePtr(nextRetryAt)
	e.LastError = stringPtr(lastError)
	e.ClaimedBy = stringPtr(claimedBy)
	e.ClaimedAt = timePtr(claimedAt)
	e.NotifyHandle = stringPtr(notifyHandle)
	e.AnnouncedAt = timePtr(announcedAt)
	return &e, nil
}

func scanQueueEntries(rows *sql.Rows) ([]*models.QueueEntry, error) {
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *queueRepository) Create(ctx context.Context, tx *sql.Tx, e *models.QueueEntry) error {
	query := `
		INSERT INTO posting_queue (id, media_id, scheduled_for, status, retry_count, max_retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := conn(r.db, tx).ExecContext(ctx, query,
		e.ID, e.MediaID, utc(e.ScheduledFor), string(e.Status), e.RetryCount, e.MaxRetries, utc(e.CreatedAt), utc(e.UpdatedAt))
	if err != nil {
		if IsUniqueViolation(err) {
			return models.NewConflictError("media", e.MediaID, "already has an open queue entry")
		}
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (r *queueRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM posting_queue WHERE id = $1`
	e, err := scanQueueEntry(conn(r.db, tx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get queue entry %s: %w", id, err)
	}
	return e, nil
}

func (r *queueRepository) GetOpenByMedia(ctx context.Context, tx *sql.Tx, mediaID string) (*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM posting_queue
		WHERE media_id = $1 AND status IN ('pending', 'processing', 'retry_scheduled')`
	e, err := scanQueueEntry(conn(r.db, tx).QueryRowContext(ctx, query, mediaID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get open entry for media %s: %w", mediaID, err)
	}
	return e, nil
}

// Claim moves a claimable entry to processing in one conditional write.
// It reports false, without changing anything, when another caller got
// there first or the entry is not yet due for retry.
func (r *queueRepository) Claim(ctx context.Context, tx *sql.Tx, id, actor string, now time.Time) (bool, error) {
	query := `
		UPDATE posting_queue
		SET status = 'processing',
			claimed_by = $2,
			claimed_at = $3,
			updated_at = $3
		WHERE id = $1
		  AND (status = 'pending' OR (status = 'retry_scheduled' AND next_retry_at <= $3))
	`
	return r.execCAS(ctx, tx, query, id, actor, utc(now))
}

// ClaimForOperator is Claim without the retry wait: a person may act on a
// retry_scheduled entry before its next attempt is due.
func (r *queueRepository) ClaimForOperator(ctx context.Context, tx *sql.Tx, id, actor string, now time.Time) (bool, error) {
	query := `
		UPDATE posting_queue
		SET status = 'processing',
			claimed_by = $2,
			claimed_at = $3,
			updated_at = $3
		WHERE id = $1
		  AND status IN ('pending', 'retry_scheduled')
	`
	return r.execCAS(ctx, tx, query, id, actor, utc(now))
}

func (r *queueRepository) Transition(ctx context.Context, tx *sql.Tx, id string, from, to models.QueueStatus, lastError *string, now time.Time) (bool, error) {
	query := `
		UPDATE posting_queue
		SET status = $3,
			last_error = COALESCE($4, last_error),
			updated_at = $5
		WHERE id = $1 AND status = $2
	`
	return r.execCAS(ctx, tx, query, id, string(from), string(to), nullString(lastError), utc(now))
}

func (r *queueRepository) ScheduleRetry(ctx context.Context, tx *sql.Tx, id string, retryCount int, nextRetryAt time.Time, lastError string, now time.Time) (bool, error) {
	query := `
		UPDATE posting_queue
		SET status = 'retry_scheduled',
			retry_count = $2,
			next_retry_at = $3,
			last_error = $4,
			claimed_by = NULL,
			claimed_at = NULL,
			updated_at = $5
		WHERE id = $1 AND status = 'processing'
	`
	return r.execCAS(ctx, tx, query, id, retryCount, utc(nextRetryAt), lastError, utc(now))
}

func (r *queueRepository) execCAS(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	res, err := conn(r.db, tx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update queue entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *queueRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + ` FROM posting_queue
		WHERE (status = 'pending' AND scheduled_for <= $1)
		   OR (status = 'retry_scheduled' AND next_retry_at <= $1)
		ORDER BY COALESCE(next_retry_at, scheduled_for), id
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, utc(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list due entries: %w", err)
	}
	return scanQueueEntries(rows)
}

// ListUnannounced is ListDue restricted to entries nobody has been told
// about yet.
func (r *queueRepository) ListUnannounced(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + ` FROM posting_queue
		WHERE announced_at IS NULL
		  AND ((status = 'pending' AND scheduled_for <= $1)
		   OR (status = 'retry_scheduled' AND next_retry_at <= $1))
		ORDER BY COALESCE(next_retry_at, scheduled_for), id
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, utc(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list unannounced entries: %w", err)
	}
	return scanQueueEntries(rows)
}

func (r *queueRepository) ListByStatus(ctx context.Context, status models.QueueStatus, limit, offset int) ([]*models.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + ` FROM posting_queue
		WHERE (CAST($1 AS TEXT) = '' OR status = $1)
		ORDER BY scheduled_for DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	return scanQueueEntries(rows)
}

func (r *queueRepository) ListStaleProcessing(ctx context.Context, claimedBefore time.Time, limit int) ([]*models.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + ` FROM posting_queue
		WHERE status = 'processing' AND claimed_at < $1
		ORDER BY claimed_at
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, utc(claimedBefore), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale claims: %w", err)
	}
	return scanQueueEntries(rows)
}

func (r *queueRepository) CountScheduledBetween(ctx context.Context, from, to time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM posting_queue WHERE scheduled_for >= $1 AND scheduled_for < $2`
	var n int
	if err := r.db.QueryRowContext(ctx, query, utc(from), utc(to)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count scheduled entries: %w", err)
	}
	return n, nil
}

func (r *queueRepository) CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM posting_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count queue by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.QueueStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.QueueStatus(status)] = n
	}
	return counts, rows.Err()
}

// MarkAnnounced records the first due-notification for an entry. Only one
// caller sees true.
func (r *queueRepository) MarkAnnounced(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `UPDATE posting_queue SET announced_at = $2 WHERE id = $1 AND announced_at IS NULL`
	return r.execCAS(ctx, nil, query, id, utc(now))
}

func (r *queueRepository) SetNotifyHandle(ctx context.Context, id, handle string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE posting_queue SET notify_handle = $2 WHERE id = $1`, id, handle)
	if err != nil {
		return fmt.Errorf("set notify handle: %w", err)
	}
	return nil
}
