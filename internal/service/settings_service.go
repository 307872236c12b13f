package service

import (
	"context"
	"errors"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
)

// SettingsPatch changes only the fields that are set. An empty AccountID
// clears the destination.
type SettingsPatch struct {
	IsPaused        *bool
	DryRun          *bool
	AutoPostEnabled *bool
	AccountID       *string
	PostsPerDay     *int
	WindowStartHour *int
	WindowEndHour   *int
	Category        *string
}

type SettingsService interface {
	GetSettingsInfo(ctx context.Context, chatID int64) (*models.Settings, error)
	UpdateSettings(ctx context.Context, chatID int64, patch SettingsPatch) (*models.Settings, error)
	SetPaused(ctx context.Context, chatID int64, paused bool) (*models.Settings, error)
	SetDryRun(ctx context.Context, chatID int64, dryRun bool) (*models.Settings, error)
	SetAutoPost(ctx context.Context, chatID int64, enabled bool) (*models.Settings, error)
	SetAccount(ctx context.Context, chatID int64, accountID string) (*models.Settings, error)
}

type settingsService struct {
	sr    repository.SettingsRepository
	cfg   PipelineConfig
	clock Clock
}

func NewSettingsService(sr repository.SettingsRepository, cfg PipelineConfig, clock Clock) SettingsService {
	return &settingsService{
		sr:    sr,
		cfg:   cfg,
		clock: clock,
	}
}

// GetSettingsInfo returns the chat's settings, creating them from the
// pipeline defaults on first use.
func (s *settingsService) GetSettingsInfo(ctx context.Context, chatID int64) (*models.Settings, error) {
	settings, isExist, err := s.sr.GetByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if isExist {
		return settings, nil
	}

	now := s.clock.Now()
	settings = &models.Settings{
		ChatID:          chatID,
		DryRun:          s.cfg.DryRun,
		AutoPostEnabled: s.cfg.AutoPostEnabled,
		PostsPerDay:     s.cfg.PostsPerDay,
		WindowStartHour: s.cfg.WindowStartHour,
		WindowEndHour:   s.cfg.WindowEndHour,
		Category:        s.cfg.DefaultCategory,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.sr.Create(ctx, settings); err != nil {
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		// created concurrently
		settings, _, err = s.sr.GetByChatID(ctx, chatID)
		if err != nil {
			return nil, err
		}
	}
	return settings, nil
}

func (s *settingsService) UpdateSettings(ctx context.Context, chatID int64, patch SettingsPatch) (*models.Settings, error) {
	settings, err := s.GetSettingsInfo(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if patch.IsPaused != nil {
		settings.IsPaused = *patch.IsPaused
	}
	if patch.DryRun != nil {
		settings.DryRun = *patch.DryRun
	}
	if patch.AutoPostEnabled != nil {
		settings.AutoPostEnabled = *patch.AutoPostEnabled
	}
	if patch.AccountID != nil {
		settings.AccountID = strPtr(*patch.AccountID)
	}
	if patch.PostsPerDay != nil {
		settings.PostsPerDay = *patch.PostsPerDay
	}
	if patch.WindowStartHour != nil {
		settings.WindowStartHour = *patch.WindowStartHour
	}
	if patch.WindowEndHour != nil {
		settings.WindowEndHour = *patch.WindowEndHour
	}
	if patch.Category != nil {
		settings.Category = *patch.Category
	}

	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	settings.UpdatedAt = s.clock.Now()
	if err := s.sr.UpdateSettings(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *settingsService) SetPaused(ctx context.Context, chatID int64, paused bool) (*models.Settings, error) {
	return s.UpdateSettings(ctx, chatID, SettingsPatch{IsPaused: &paused})
}

func (s *settingsService) SetDryRun(ctx context.Context, chatID int64, dryRun bool) (*models.Settings, error) {
	return s.UpdateSettings(ctx, chatID, SettingsPatch{DryRun: &dryRun})
}

func (s *settingsService) SetAutoPost(ctx context.Context, chatID int64, enabled bool) (*models.Settings, error) {
	return s.UpdateSettings(ctx, chatID, SettingsPatch{AutoPostEnabled: &enabled})
}

func (s *settingsService) SetAccount(ctx context.Context, chatID int64, accountID string) (*models.Settings, error) {
	return s.UpdateSettings(ctx, chatID, SettingsPatch{AccountID: &accountID})
}

func validateSettings(s *models.Settings) error {
	if s.PostsPerDay < 1 || s.PostsPerDay > 48 {
		return models.NewValidationError("posts_per_day", "must be between 1 and 48")
	}
	if s.WindowStartHour < 0 || s.WindowStartHour > 23 {
		return models.NewValidationError("window_start_hour", "must be between 0 and 23")
	}
	if s.WindowEndHour <= s.WindowStartHour || s.WindowEndHour > 24 {
		return models.NewValidationError("window_end_hour", "must be after window_start_hour and at most 24")
	}
	return nil
}
