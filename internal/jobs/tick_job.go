package job

import (
	"context"
	"sync"
	"time"

	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/rs/zerolog"
)

type TickJob struct {
	scheduler service.SchedulerService
	log       zerolog.Logger

	// ticks must not overlap when one runs longer than the interval
	running sync.Mutex
}

func NewTickJob(scheduler service.SchedulerService, log zerolog.Logger) *TickJob {
	return &TickJob{
		scheduler: scheduler,
		log:       log.With().Str("comp", "tick").Logger(),
	}
}

func (j *TickJob) Run() {
	if !j.running.TryLock() {
		j.log.Warn().Msg("previous tick still running, skipped")
		return
	}
	defer j.running.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := j.scheduler.Tick(ctx); err != nil {
		j.log.Error().Err(err).Msg("tick failed")
	}
}
