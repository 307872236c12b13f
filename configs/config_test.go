package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "data/test.db")
	t.Setenv("SECRET_KEY", "0123456789abcdef0123456789abcdef")
}

func TestLoadConfig_Defaults(t *testing.T) {
	validEnv(t)

	cfg := LoadConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/test.db", cfg.Database.Source())
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 30*24*time.Hour, cfg.Pipeline.RepostTTL)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.BackoffBase)
	assert.False(t, cfg.Pipeline.AutoPostEnabled)
	assert.False(t, cfg.Telegram.Enabled())
	assert.False(t, cfg.R2.Enabled())
}

func TestLoadConfig_Overrides(t *testing.T) {
	validEnv(t)
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("BACKOFF_BASE", "30s")
	t.Setenv("AUTO_POST_ENABLED", "true")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("MAX_JITTER", "not-a-duration")

	cfg := LoadConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.BackoffBase)
	assert.True(t, cfg.Pipeline.AutoPostEnabled)
	assert.Equal(t, int64(-100123), cfg.Telegram.ChatID)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.MaxJitter, "unparsable values fall back to the default")
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without uri", map[string]string{"DB_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"short secret", map[string]string{"SECRET_KEY": "short"}},
		{"window inverted", map[string]string{"WINDOW_START_HOUR": "20", "WINDOW_END_HOUR": "10"}},
		{"backoff max below base", map[string]string{"BACKOFF_BASE": "1h", "BACKOFF_MAX": "1m"}},
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}},
		{"too many retries", map[string]string{"MAX_RETRIES": "100"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Error(t, LoadConfig().Validate())
		})
	}
}
