package job

import (
	"fmt"

	config "github.com/maheshrc27/postqueue/configs"
	"github.com/robfig/cron"
)

// NewCron registers the periodic jobs on their configured schedules. The
// caller starts and stops it.
func NewCron(cfg config.Pipeline, tick *TickJob, cleanup *CleanupJob, refresh *TokenRefreshJob) (*cron.Cron, error) {
	c := cron.New()
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"tick", cfg.TickSpec, tick.Run},
		{"cleanup", cfg.CleanupSpec, cleanup.Run},
		{"token refresh", cfg.TokenRefreshSpec, refresh.RefreshTokens},
	}
	for _, j := range jobs {
		if err := c.AddFunc(j.spec, j.fn); err != nil {
			return nil, fmt.Errorf("schedule %s job %q: %w", j.name, j.spec, err)
		}
	}
	return c, nil
}
