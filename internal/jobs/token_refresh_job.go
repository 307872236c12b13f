package job

import (
	"context"
	"time"

	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/rs/zerolog"
)

// refreshWindow is how far ahead of expiry tokens are renewed.
const refreshWindow = 7 * 24 * time.Hour

type TokenRefreshJob struct {
	accounts service.AccountService
	log      zerolog.Logger
}

func NewTokenRefreshJob(accounts service.AccountService, log zerolog.Logger) *TokenRefreshJob {
	return &TokenRefreshJob{
		accounts: accounts,
		log:      log.With().Str("comp", "token_refresh").Logger(),
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := c.accounts.RefreshExpiring(ctx, refreshWindow)
	if err != nil {
		c.log.Error().Err(err).Int("refreshed", n).Msg("token refresh incomplete")
		return
	}
	if n > 0 {
		c.log.Info().Int("refreshed", n).Msg("tokens refreshed")
	}
}
