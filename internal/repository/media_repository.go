package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
)

type MediaRepository interface {
	Create(ctx context.Context, tx *sql.Tx, m *models.MediaItem) error
	GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.MediaItem, error)
	GetBySourceURI(ctx context.Context, sourceURI string) (*models.MediaItem, error)
	List(ctx context.Context, category string, activeOnly bool, limit, offset int) ([]*models.MediaItem, error)
	ListEligible(ctx context.Context, now time.Time, category string, limit int) ([]*models.MediaItem, error)
	CountEligible(ctx context.Context, now time.Time, category string) (int, error)
	RecordPosted(ctx context.Context, tx *sql.Tx, id string, postedAt time.Time) error
	SetActive(ctx context.Context, id string, active bool, now time.Time) error
}

type mediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) MediaRepository {
	return &mediaRepository{db: db}
}

const mediaColumns = `id, file_name, source_uri, mime_type, category, caption, is_active, times_posted, last_posted_at, created_at, updated_at`

// eligibleClause is the selection predicate: active, not locked at $1,
// no open queue entry, and in category $2 unless $2 is empty.
const eligibleClause = `
	WHERE media_items.is_active = TRUE
	  AND (CAST($2 AS TEXT) = '' OR media_items.category = $2)
	  AND NOT EXISTS (
		SELECT 1 FROM media_locks l
		WHERE l.media_id = media_items.id
		  AND (l.locked_until IS NULL OR l.locked_until > $1)
	  )
	  AND NOT EXISTS (
		SELECT 1 FROM posting_queue q
		WHERE q.media_id = media_items.id
		  AND q.status IN ('pending', 'processing', 'retry_scheduled')
	  )`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedia(s rowScanner) (*models.MediaItem, error) {
	var m models.MediaItem
	var lastPosted sql.NullTime
	err := s.Scan(&m.ID, &m.FileName, &m.SourceURI, &m.MimeType, &m.Category, &m.Caption,
		&m.IsActive, &m.TimesPosted, &lastPosted, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.LastPostedAt = timePtr(lastPosted)
	return &m, nil
}

func (r *mediaRepository) Create(ctx context.Context, tx *sql.Tx, m *models.MediaItem) error {
	query := `
		INSERT INTO media_items (id, file_name, source_uri, mime_type, category, caption, is_active, times_posted, last_posted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := conn(r.db, tx).ExecContext(ctx, query,
		m.ID, m.FileName, m.SourceURI, m.MimeType, m.Category, m.Caption,
		m.IsActive, m.TimesPosted, nullTime(m.LastPostedAt), utc(m.CreatedAt), utc(m.UpdatedAt))
	if err != nil {
		if IsUniqueViolation(err) {
			return models.NewConflictError("media", m.SourceURI, "source already registered")
		}
		return fmt.Errorf("insert media item: %w", err)
	}
	return nil
}

func (r *mediaRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_items WHERE id = $1`
	m, err := scanMedia(conn(r.db, tx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get media item %s: %w", id, err)
	}
	return m, nil
}

func (r *mediaRepository) GetBySourceURI(ctx context.Context, sourceURI string) (*models.MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_items WHERE source_uri = $1`
	m, err := scanMedia(r.db.QueryRowContext(ctx, query, sourceURI))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get media item by source: %w", err)
	}
	return m, nil
}

func (r *mediaRepository) List(ctx context.Context, category string, activeOnly bool, limit, offset int) ([]*models.MediaItem, error) {
	query := `
		SELECT ` + mediaColumns + ` FROM media_items
		WHERE (CAST($1 AS TEXT) = '' OR category = $1)
		  AND ($2 = FALSE OR is_active = TRUE)
		ORDER BY created_at, id
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, query, category, activeOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list media items: %w", err)
	}
	defer rows.Close()

	var items []*models.MediaItem
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// ListEligible returns eligible items in selection priority: never posted
// first, then fewest posts, ties in random order.
func (r *mediaRepository) ListEligible(ctx context.Context, now time.Time, category string, limit int) ([]*models.MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_items` + eligibleClause + `
		ORDER BY (media_items.last_posted_at IS NULL) DESC, media_items.times_posted ASC, random()
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, utc(now), category, limit)
	if err != nil {
		return nil, fmt.Errorf("list eligible media: %w", err)
	}
	defer rows.Close()

	var items []*models.MediaItem
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *mediaRepository) CountEligible(ctx context.Context, now time.Time, category string) (int, error) {
	query := `SELECT COUNT(*) FROM media_items` + eligibleClause
	var n int
	if err := r.db.QueryRowContext(ctx, query, utc(now), category).Scan(&n); err != nil {
		return 0, fmt.Errorf("count eligible media: %w", err)
	}
	return n, nil
}

func (r *mediaRepository) RecordPosted(ctx context.Context, tx *sql.Tx, id string, postedAt time.Time) error {
	query := `
		UPDATE media_items
		SET times_posted = times_posted + 1,
			last_posted_at = $1,
			updated_at = $1
		WHERE id = $2
	`
	res, err := conn(r.db, tx).ExecContext(ctx, query, utc(postedAt), id)
	if err != nil {
		return fmt.Errorf("record post for media %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NewNotFoundError("media", id)
	}
	return nil
}

func (r *mediaRepository) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	query := `UPDATE media_items SET is_active = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, active, utc(now), id)
	if err != nil {
		return fmt.Errorf("set media %s active: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NewNotFoundError("media", id)
	}
	return nil
}
