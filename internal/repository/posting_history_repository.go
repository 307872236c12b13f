package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
)

// PostingHistoryRepository is append-only: there is no update or delete.
type PostingHistoryRepository interface {
	Create(ctx context.Context, tx *sql.Tx, ph *models.PostingHistory) error
	GetByQueueID(ctx context.Context, queueID string) (*models.PostingHistory, error)
	ListByMedia(ctx context.Context, mediaID string, limit int) ([]*models.PostingHistory, error)
	ListByActor(ctx context.Context, actor string, limit int) ([]*models.PostingHistory, error)
	ListBetween(ctx context.Context, from, to time.Time, limit int) ([]*models.PostingHistory, error)
	CountByOutcome(ctx context.Context, from, to time.Time) (map[models.HistoryOutcome]int, error)
}

type postingHistoryRepository struct {
	db *sql.DB
}

func NewPostingHistoryRepository(db *sql.DB) PostingHistoryRepository {
	return &postingHistoryRepository{db: db}
}

const historyColumns = `id, queue_id, media_id, media_snapshot, outcome, success, actor, external_id, permalink,
	error_message, retry_count, scheduled_for, claimed_at, completed_at, created_at`

func scanHistory(s rowScanner) (*models.PostingHistory, error) {
	var ph models.PostingHistory
	var (
		snapshot                            []byte
		outcome                             string
		externalID, permalink, errorMessage sql.NullString
		claimedAt                           sql.NullTime
	)
	err := s.Scan(&ph.ID, &ph.QueueID, &ph.MediaID, &snapshot, &outcome, &ph.Success, &ph.Actor,
		&externalID, &permalink, &errorMessage, &ph.RetryCount, &ph.ScheduledFor, &claimedAt,
		&ph.CompletedAt, &ph.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &ph.Media); err != nil {
		return nil, fmt.Errorf("decode media snapshot: %w", err)
	}
	ph.Outcome = models.HistoryOutcome(outcome)
	ph.ExternalID = stringPtr(externalID)
	ph.Permalink = stringPtr(permalink)
	ph.ErrorMessage = stringPtr(errorMessage)
	ph.ClaimedAt = timePtr(claimedAt)
	return &ph, nil
}

func (r *postingHistoryRepository) list(ctx context.Context, query string, args ...any) ([]*models.PostingHistory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posting history: %w", err)
	}
	defer rows.Close()

	var phs []*models.PostingHistory
	for rows.Next() {
		ph, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan posting history: %w", err)
		}
		phs = append(phs, ph)
	}
	return phs, rows.Err()
}

func (r *postingHistoryRepository) Create(ctx context.Context, tx *sql.Tx, ph *models.PostingHistory) error {
	snapshot, err := json.Marshal(ph.Media)
	if err != nil {
		return fmt.Errorf("encode media snapshot: %w", err)
	}

	query := `
		INSERT INTO posting_history (id, queue_id, media_id, media_snapshot, outcome, success, actor, external_id,
			permalink, error_message, retry_count, scheduled_for, claimed_at, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = conn(r.db, tx).ExecContext(ctx, query,
		ph.ID, ph.QueueID, ph.MediaID, string(snapshot), string(ph.Outcome), ph.Success, ph.Actor,
		nullString(ph.ExternalID), nullString(ph.Permalink), nullString(ph.ErrorMessage), ph.RetryCount,
		utc(ph.ScheduledFor), nullTime(ph.ClaimedAt), utc(ph.CompletedAt), utc(ph.CreatedAt))
	if err != nil {
		if IsUniqueViolation(err) {
			return models.NewConflictError("queue entry", ph.QueueID, "already has a history entry")
		}
		return fmt.Errorf("insert posting history: %w", err)
	}
	return nil
}

func (r *postingHistoryRepository) GetByQueueID(ctx context.Context, queueID string) (*models.PostingHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM posting_history WHERE queue_id = $1`
	ph, err := scanHistory(r.db.QueryRowContext(ctx, query, queueID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get history for queue entry %s: %w", queueID, err)
	}
	return ph, nil
}

func (r *postingHistoryRepository) ListByMedia(ctx context.Context, mediaID string, limit int) ([]*models.PostingHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM posting_history
		WHERE media_id = $1 ORDER BY completed_at DESC, id LIMIT $2`
	return r.list(ctx, query, mediaID, limit)
}

func (r *postingHistoryRepository) ListByActor(ctx context.Context, actor string, limit int) ([]*models.PostingHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM posting_history
		WHERE actor = $1 ORDER BY completed_at DESC, id LIMIT $2`
	return r.list(ctx, query, actor, limit)
}

func (r *postingHistoryRepository) ListBetween(ctx context.Context, from, to time.Time, limit int) ([]*models.PostingHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM posting_history
		WHERE completed_at >= $1 AND completed_at < $2 ORDER BY completed_at DESC, id LIMIT $3`
	return r.list(ctx, query, utc(from), utc(to), limit)
}

func (r *postingHistoryRepository) CountByOutcome(ctx context.Context, from, to time.Time) (map[models.HistoryOutcome]int, error) {
	query := `
		SELECT outcome, COUNT(*) FROM posting_history
		WHERE completed_at >= $1 AND completed_at < $2
		GROUP BY outcome
	`
	rows, err := r.db.QueryContext(ctx, query, utc(from), utc(to))
	if err != nil {
		return nil, fmt.Errorf("count history by outcome: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.HistoryOutcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[models.HistoryOutcome(outcome)] = n
	}
	return counts, rows.Err()
}
