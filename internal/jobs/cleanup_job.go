package job

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/rs/zerolog"
)

var errClaimExpired = errors.New("claim expired")

// CleanupJob recovers entries whose worker died mid-attempt and purges
// locks that ended long ago.
type CleanupJob struct {
	queue service.QueueService
	locks service.LockService
	cfg   service.PipelineConfig
	log   zerolog.Logger
}

func NewCleanupJob(queue service.QueueService, locks service.LockService, cfg service.PipelineConfig, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		queue: queue,
		locks: locks,
		cfg:   cfg,
		log:   log.With().Str("comp", "cleanup").Logger(),
	}
}

func (c *CleanupJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := c.RecoverStale(ctx); err != nil {
		c.log.Error().Err(err).Msg("stale claim recovery failed")
	}

	purged, err := c.locks.PurgeExpired(ctx, c.cfg.LockGracePeriod)
	if err != nil {
		c.log.Error().Err(err).Msg("lock purge failed")
		return
	}
	if purged > 0 {
		c.log.Info().Int64("purged", purged).Msg("expired locks purged")
	}
}

// RecoverStale fails every entry stuck in processing longer than
// StaleClaimAfter. The failure is transient, so the retry policy decides
// whether the entry gets another attempt.
func (c *CleanupJob) RecoverStale(ctx context.Context) (int, error) {
	stale, err := c.queue.ListStale(ctx, c.cfg.StaleClaimAfter, c.cfg.DrainBatch)
	if err != nil {
		return 0, err
	}

	cause := models.NewTransientError(0, errClaimExpired.Error(), errClaimExpired)
	recovered := 0
	for _, entry := range stale {
		ro, err := c.queue.Fail(ctx, entry.ID, cause)
		if err != nil {
			if errors.Is(err, models.ErrConflict) {
				// finished while we looked
				continue
			}
			return recovered, err
		}
		recovered++
		c.log.Warn().Str("queue_id", entry.ID).Str("status", string(ro.Status)).Msg("stale claim recovered")
	}
	return recovered, nil
}
