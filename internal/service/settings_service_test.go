package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postqueue/internal/models"
)

func TestSettingsService_DefaultsFromConfig(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.DefaultCategory = "cats"
	cfg.DryRun = true
	h := newHarnessWithConfig(t, cfg)

	settings, err := h.settings.GetSettingsInfo(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), settings.ChatID)
	assert.Equal(t, "cats", settings.Category)
	assert.True(t, settings.DryRun)
	assert.False(t, settings.IsPaused)
	assert.Equal(t, cfg.PostsPerDay, settings.PostsPerDay)
	assert.Nil(t, settings.AccountID)

	again, err := h.settings.GetSettingsInfo(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, settings.CreatedAt.Equal(again.CreatedAt))
}

func TestSettingsService_Patch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	chatID := h.cfg.ChatID

	posts := 5
	settings, err := h.settings.UpdateSettings(ctx, chatID, SettingsPatch{PostsPerDay: &posts})
	require.NoError(t, err)
	assert.Equal(t, 5, settings.PostsPerDay)
	assert.Equal(t, h.cfg.WindowStartHour, settings.WindowStartHour, "unset fields are kept")

	account, err := h.accounts.Register(ctx, "tok", 0)
	require.NoError(t, err)
	_, err = h.settings.SetPaused(ctx, chatID, true)
	require.NoError(t, err)
	settings, err = h.settings.SetAccount(ctx, chatID, account.ID)
	require.NoError(t, err)
	require.NotNil(t, settings.AccountID)
	assert.Equal(t, account.ID, *settings.AccountID)
	assert.True(t, settings.IsPaused)

	settings, err = h.settings.SetAccount(ctx, chatID, "")
	require.NoError(t, err)
	assert.Nil(t, settings.AccountID)

	stored, err := h.settings.GetSettingsInfo(ctx, chatID)
	require.NoError(t, err)
	assert.True(t, stored.IsPaused)
	assert.Equal(t, 5, stored.PostsPerDay)
}

func TestSettingsService_Validation(t *testing.T) {
	intPtr := func(v int) *int { return &v }
	tests := []struct {
		name  string
		patch SettingsPatch
	}{
		{"zero posts", SettingsPatch{PostsPerDay: intPtr(0)}},
		{"too many posts", SettingsPatch{PostsPerDay: intPtr(49)}},
		{"start out of range", SettingsPatch{WindowStartHour: intPtr(24)}},
		{"end before start", SettingsPatch{WindowStartHour: intPtr(10), WindowEndHour: intPtr(9)}},
		{"end past midnight", SettingsPatch{WindowEndHour: intPtr(25)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.settings.UpdateSettings(context.Background(), h.cfg.ChatID, tt.patch)
			var valErr *models.ValidationError
			assert.ErrorAs(t, err, &valErr)
		})
	}
}
