package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	config "github.com/maheshrc27/postqueue/configs"
	"github.com/maheshrc27/postqueue/internal/api"
	"github.com/maheshrc27/postqueue/internal/database"
	job "github.com/maheshrc27/postqueue/internal/jobs"
	"github.com/maheshrc27/postqueue/internal/logger"
	"github.com/maheshrc27/postqueue/pkg/utils"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var (
	cfg *config.Config
	log zerolog.Logger

	tokenActor string
	tokenTTL   time.Duration
	slotsDay   string

	rootCmd = &cobra.Command{
		Use:          "postqueue",
		Short:        "Scheduled media posting with human and automated resolution",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envErr := godotenv.Load()

			cfg = config.LoadConfig()
			log = logger.New(os.Stdout, cfg.LogLevel, cfg.LogConsole)
			if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
				log.Warn().Err(envErr).Msg("failed to load .env")
			}
			return cfg.Validate()
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduler jobs, attempt worker and chat bot",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE:      runMigrate,
	}

	tickCmd = &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler cycle and print its report",
		RunE:  runTick,
	}

	slotsCmd = &cobra.Command{
		Use:   "slots",
		Short: "Print the slots the scheduler would generate for a day",
		RunE:  runSlots,
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Mint an operator JWT for the HTTP API",
		RunE:  runToken,
	}
)

func init() {
	tokenCmd.Flags().StringVar(&tokenActor, "actor", "", "operator name recorded in the ledger")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("actor")

	slotsCmd.Flags().StringVar(&slotsDay, "day", "", "day to plan as YYYY-MM-DD in the configured timezone (default: the active window)")

	rootCmd.AddCommand(serveCmd, migrateCmd, tickCmd, slotsCmd, tokenCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.RunMigrations(cfg.Database.Driver, cfg.Database.Source()); err != nil {
		return err
	}

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	app := api.NewApp(a.services, api.Options{
		SecretKey:  cfg.SecretKey,
		CookieName: cfg.CookieName,
		ChatID:     cfg.Telegram.ChatID,
		Gatherer:   a.registry,
	}, log)

	c, err := job.NewCron(cfg.Pipeline, a.tick, a.cleanup, a.refresh)
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("shutting down http server")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	g.Go(func() error {
		c.Start()
		log.Info().Msg("cron started")
		<-gCtx.Done()
		c.Stop()
		return nil
	})

	if a.redisOpt != nil {
		srv := asynq.NewServer(a.redisOpt, asynq.Config{
			Concurrency: cfg.Pipeline.DrainConcurrency,
			Logger:      asynqLogger{log: logger.Component(log, "asynq")},
		})
		mux := asynq.NewServeMux()
		a.worker.Register(mux)

		g.Go(func() error {
			if err := srv.Start(mux); err != nil {
				return fmt.Errorf("asynq server: %w", err)
			}
			<-gCtx.Done()
			srv.Shutdown()
			return nil
		})
	}

	if a.bot != nil {
		g.Go(func() error {
			a.bot.Start(gCtx)
			return nil
		})
	}

	err = g.Wait()
	if a.inline != nil {
		a.inline.Wait()
	}
	log.Info().Msg("shutdown complete")
	return err
}

func runMigrate(_ *cobra.Command, args []string) error {
	direction := "up"
	if len(args) == 1 {
		direction = args[0]
	}

	driver, source := cfg.Database.Driver, cfg.Database.Source()
	if direction == "down" {
		if err := database.RollbackMigrations(driver, source); err != nil {
			return err
		}
	} else if err := database.RunMigrations(driver, source); err != nil {
		return err
	}
	log.Info().Str("driver", driver).Str("direction", direction).Msg("migrations applied")
	return nil
}

func runTick(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.services.Scheduler.Tick(ctx)
	if a.inline != nil {
		a.inline.Wait()
	}
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runSlots(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	settings, err := a.services.Settings.GetSettingsInfo(ctx, cfg.Telegram.ChatID)
	if err != nil {
		return err
	}

	now := time.Now()
	if slotsDay != "" {
		day, err := time.ParseInLocation(time.DateOnly, slotsDay, a.pipeline.Location)
		if err != nil {
			return fmt.Errorf("invalid --day %q: %w", slotsDay, err)
		}
		now = day
	}
	start, end := a.services.Scheduler.Window(now, settings)
	slots, err := a.services.Scheduler.GenerateSlots(start, end, settings.PostsPerDay)
	if err != nil {
		return err
	}

	for _, slot := range slots {
		fmt.Println(slot.In(a.pipeline.Location).Format(time.RFC3339))
	}
	return nil
}

func runToken(_ *cobra.Command, _ []string) error {
	token, err := utils.GenerateToken(cfg.SecretKey, tokenActor, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
