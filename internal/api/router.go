// Package api is the operator HTTP surface over the posting pipeline.
package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/maheshrc27/postqueue/internal/api/handlers"
	"github.com/maheshrc27/postqueue/internal/api/middleware"
	"github.com/maheshrc27/postqueue/internal/metrics"
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Services struct {
	Queue     service.QueueService
	Posting   service.PostingService
	Media     service.MediaService
	Selector  service.SelectorService
	Locks     service.LockService
	History   service.HistoryService
	Settings  service.SettingsService
	Scheduler service.SchedulerService
	Accounts  service.AccountService
	Keys      service.ApiKeyService
}

type Options struct {
	SecretKey  string
	CookieName string
	ChatID     int64
	Gatherer   prometheus.Gatherer
}

// NewApp builds the fiber app with every route registered.
func NewApp(s Services, opts Options, log zerolog.Logger) *fiber.App {
	log = log.With().Str("comp", "http").Logger()

	app := fiber.New(fiber.Config{
		ReadTimeout:           time.Minute,
		WriteTimeout:          10 * time.Minute,
		BodyLimit:             1024 * 1024,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
			}
			log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Something went wrong"})
		},
	})

	app.Use(recover.New())
	app.Use(requestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(opts.Gatherer)))
	}

	auth := handlers.NewAuthHandler(opts.SecretKey, opts.CookieName, s.Keys)
	app.Post("/login", auth.Login)
	app.Post("/logout", auth.Logout)

	authMiddleware := middleware.NewAuthMiddleware(opts.SecretKey, opts.CookieName, s.Keys, log)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	api.Get("/me", auth.Me)

	queue := handlers.NewQueueHandler(s.Queue, s.Posting)
	api.Get("/queue", queue.ListEntries)
	api.Post("/queue", queue.Enqueue)
	api.Get("/queue/:id", queue.GetEntry)
	api.Post("/queue/:id/action", queue.Action)
	api.Post("/queue/:id/attempt", queue.Attempt)
	api.Post("/queue/:id/abort", queue.Abort)

	media := handlers.NewMediaHandler(s.Media, s.Selector, s.Locks)
	api.Get("/media", media.ListMedia)
	api.Post("/media", media.Register)
	api.Get("/media/next", media.Next)
	api.Get("/media/:id", media.GetMedia)
	api.Post("/media/:id/active", media.SetActive)
	api.Get("/media/:id/locks", media.ListLocks)

	history := handlers.NewHistoryHandler(s.History)
	api.Get("/history", history.ListHistory)
	api.Get("/history/stats", history.Stats)

	settings := handlers.NewSettingsHandler(s.Settings, opts.ChatID)
	api.Get("/settings", settings.GetSettingsInfo)
	api.Post("/settings", settings.UpdateSettings)

	schedule := handlers.NewScheduleHandler(s.Scheduler)
	api.Post("/schedule/slots", schedule.Slots)
	api.Post("/schedule/tick", schedule.Tick)

	accounts := handlers.NewAccountHandler(s.Accounts)
	api.Get("/accounts", accounts.ListAccounts)
	api.Post("/accounts", accounts.RegisterAccount)
	api.Post("/accounts/:id/active", accounts.SetActive)

	apiKeys := handlers.NewApiKeyHandler(s.Keys)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	return app
}

func requestLogger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("took", time.Since(start)).
			Msg("request")
		return err
	}
}
