package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/postqueue/configs"
	"github.com/maheshrc27/postqueue/internal/api"
	"github.com/maheshrc27/postqueue/internal/database"
	job "github.com/maheshrc27/postqueue/internal/jobs"
	"github.com/maheshrc27/postqueue/internal/metrics"
	"github.com/maheshrc27/postqueue/internal/queue"
	"github.com/maheshrc27/postqueue/internal/repository"
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/maheshrc27/postqueue/internal/telegram"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

// application holds every wired component of one process.
type application struct {
	db       *sql.DB
	pipeline service.PipelineConfig
	registry *prometheus.Registry
	services api.Services

	redisOpt    asynq.RedisConnOpt
	asynqClient *asynq.Client
	inline      *queue.InlineDispatcher
	worker      *queue.Queue
	bot         *telegram.Bot

	tick    *job.TickJob
	cleanup *job.CleanupJob
	refresh *job.TokenRefreshJob
}

func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*application, error) {
	pipeline, err := service.NewPipelineConfig(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.Source())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}

	a := &application{db: db, pipeline: pipeline, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(a.registry)
	clock := service.SystemClock{}

	mediaRepo := repository.NewMediaRepository(db)
	lockRepo := repository.NewLockRepository(db)

	var host service.MediaHost
	if cfg.R2.Enabled() {
		r2, err := service.NewR2Service(ctx, cfg.R2)
		if err != nil {
			a.Close()
			return nil, err
		}
		host = r2
	} else {
		log.Info().Msg("r2 not configured, local media cannot be published")
	}
	instagram := service.NewInstagramService(cfg.Instagram, host, nil, log)

	var notifier service.Notifier = service.NopNotifier{}
	var tgClient *tele.Bot
	if cfg.Telegram.Enabled() {
		tgClient, err = telegram.NewClient(cfg.Telegram)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect telegram: %w", err)
		}
		notifier = telegram.NewNotifier(tgClient, cfg.Telegram.ChatID, pipeline.Location, log)
	} else {
		log.Info().Msg("telegram not configured, notifications disabled")
	}

	history := service.NewHistoryService(repository.NewPostingHistoryRepository(db), clock)
	queueService := service.NewQueueService(db, repository.NewQueueRepository(db), mediaRepo, lockRepo, history, pipeline, clock, collector, log)
	locks := service.NewLockService(lockRepo, clock)
	settings := service.NewSettingsService(repository.NewSettingsRepository(db), pipeline, clock)
	accounts := service.NewAccountService(repository.NewAccountRepository(db), instagram, cfg.SecretKey, clock, log)
	selector := service.NewSelectorService(mediaRepo, clock)
	posting := service.NewPostingService(db, queueService, mediaRepo, locks, settings, accounts, instagram, notifier, pipeline, clock, collector, log)

	var dispatcher service.Dispatcher
	if cfg.RedisURI != "" {
		opt, err := asynq.ParseRedisURI(cfg.RedisURI)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse redis uri: %w", err)
		}
		a.redisOpt = opt
		a.asynqClient = asynq.NewClient(opt)
		dispatcher = queue.NewAsynqDispatcher(a.asynqClient)
	} else {
		a.inline = queue.NewInlineDispatcher(ctx, posting, pipeline.DrainConcurrency, log)
		dispatcher = a.inline
	}
	a.worker = queue.NewQueue(posting, log)

	scheduler := service.NewSchedulerService(queueService, selector, settings, mediaRepo, dispatcher, notifier, pipeline, clock, log)

	if tgClient != nil {
		a.bot = telegram.NewBot(tgClient, cfg.Telegram.ChatID, posting, settings, queueService, log)
	}

	a.services = api.Services{
		Queue:     queueService,
		Posting:   posting,
		Media:     service.NewMediaService(mediaRepo, clock),
		Selector:  selector,
		Locks:     locks,
		History:   history,
		Settings:  settings,
		Scheduler: scheduler,
		Accounts:  accounts,
		Keys:      service.NewApiKeyService(repository.NewApiKeyRepository(db), clock),
	}

	a.tick = job.NewTickJob(scheduler, log)
	a.cleanup = job.NewCleanupJob(queueService, locks, pipeline, log)
	a.refresh = job.NewTokenRefreshJob(accounts, log)
	return a, nil
}

func (a *application) Close() {
	if a.asynqClient != nil {
		if err := a.asynqClient.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close asynq client")
		}
	}
	if err := a.db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
		return
	}
	log.Debug().Msg("database connection closed")
}
