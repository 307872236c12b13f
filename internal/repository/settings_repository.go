package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maheshrc27/postqueue/internal/models"
)

type SettingsRepository interface {
	Create(ctx context.Context, s *models.Settings) error
	GetByChatID(ctx context.Context, chatID int64) (*models.Settings, bool, error)
	UpdateSettings(ctx context.Context, s *models.Settings) error
}

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Create(ctx context.Context, s *models.Settings) error {
	query := `
		INSERT INTO posting_settings (chat_id, is_paused, dry_run, auto_post_enabled, account_id, posts_per_day,
			window_start_hour, window_end_hour, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query, s.ChatID, s.IsPaused, s.DryRun, s.AutoPostEnabled, nullString(s.AccountID),
		s.PostsPerDay, s.WindowStartHour, s.WindowEndHour, s.Category, utc(s.CreatedAt), utc(s.UpdatedAt))
	if err != nil {
		if IsUniqueViolation(err) {
			return models.NewConflictError("settings", fmt.Sprint(s.ChatID), "already exist")
		}
		return fmt.Errorf("insert settings: %w", err)
	}
	return nil
}

func (r *settingsRepository) GetByChatID(ctx context.Context, chatID int64) (*models.Settings, bool, error) {
	query := `
		SELECT chat_id, is_paused, dry_run, auto_post_enabled, account_id, posts_per_day,
			window_start_hour, window_end_hour, category, created_at, updated_at
		FROM posting_settings WHERE chat_id = $1
	`
	var s models.Settings
	var accountID sql.NullString
	err := r.db.QueryRowContext(ctx, query, chatID).Scan(&s.ChatID, &s.IsPaused, &s.DryRun, &s.AutoPostEnabled,
		&accountID, &s.PostsPerDay, &s.WindowStartHour, &s.WindowEndHour, &s.Category, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get settings for chat %d: %w", chatID, err)
	}
	s.AccountID = stringPtr(accountID)
	return &s, true, nil
}

func (r *settingsRepository) UpdateSettings(ctx context.Context, s *models.Settings) error {
	query := `
		UPDATE posting_settings
		SET is_paused = $2,
			dry_run = $3,
			auto_post_enabled = $4,
			account_id = $5,
			posts_per_day = $6,
			window_start_hour = $7,
			window_end_hour = $8,
			category = $9,
			updated_at = $10
		WHERE chat_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, s.ChatID, s.IsPaused, s.DryRun, s.AutoPostEnabled, nullString(s.AccountID),
		s.PostsPerDay, s.WindowStartHour, s.WindowEndHour, s.Category, utc(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("update settings for chat %d: %w", s.ChatID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NewNotFoundError("settings", fmt.Sprint(s.ChatID))
	}
	return nil
}
