// Package telegram is the operator surface: due notifications with action
// buttons and a few chat commands.
package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	config "github.com/maheshrc27/postqueue/configs"
	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

// NewClient connects to the Bot API with long polling.
func NewClient(cfg config.Telegram) (*tele.Bot, error) {
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
}

type Bot struct {
	api      *tele.Bot
	chatID   int64
	posting  service.PostingService
	settings service.SettingsService
	queue    service.QueueService
	log      zerolog.Logger

	actions  map[callbackAction]callbackFunc
	commands map[string]commandFunc

	ctx context.Context
	wg  sync.WaitGroup
}

func NewBot(api *tele.Bot, chatID int64, posting service.PostingService, settings service.SettingsService, queue service.QueueService, log zerolog.Logger) *Bot {
	b := &Bot{
		api:      api,
		chatID:   chatID,
		posting:  posting,
		settings: settings,
		queue:    queue,
		log:      log.With().Str("comp", "telegram").Logger(),
		ctx:      context.Background(),
	}
	b.actions = b.callbackActions()
	b.commands = b.chatCommands()
	return b
}

// Start polls for updates until ctx is done, then waits for background
// attempts started from buttons.
func (b *Bot) Start(ctx context.Context) {
	b.ctx = ctx
	b.api.Use(b.onlyConfiguredChat)

	b.api.Handle(tele.OnCallback, func(c tele.Context) error {
		text := b.handleCallback(ctx, c.Callback().Data, actorOf(c.Sender()))
		return c.Respond(&tele.CallbackResponse{Text: text})
	})
	for name := range b.commands {
		b.api.Handle("/"+name, func(c tele.Context) error {
			return c.Send(b.handleCommand(ctx, name, c.Args()))
		})
	}

	go func() {
		<-ctx.Done()
		b.api.Stop()
	}()
	b.log.Info().Int64("chat_id", b.chatID).Msg("polling started")
	b.api.Start()
	b.wg.Wait()
	b.log.Info().Msg("polling stopped")
}

func (b *Bot) onlyConfiguredChat(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if chat := c.Chat(); chat == nil || chat.ID != b.chatID {
			b.log.Warn().Msg("update from unknown chat ignored")
			return nil
		}
		return next(c)
	}
}

func actorOf(u *tele.User) string {
	if u == nil {
		return "telegram"
	}
	if u.Username != "" {
		return "tg:" + u.Username
	}
	return fmt.Sprintf("tg:%d", u.ID)
}

type commandFunc func(ctx context.Context, args []string) (string, error)

func (b *Bot) chatCommands() map[string]commandFunc {
	toggle := func(set func(ctx context.Context, chatID int64, on bool) (*models.Settings, error), on bool, done string) commandFunc {
		return func(ctx context.Context, _ []string) (string, error) {
			if _, err := set(ctx, b.chatID, on); err != nil {
				return "", err
			}
			return done, nil
		}
	}
	return map[string]commandFunc{
		"pause":  toggle(b.settings.SetPaused, true, "Paused"),
		"resume": toggle(b.settings.SetPaused, false, "Resumed"),
		"auto":   b.autoCommand,
		"status": b.statusCommand,
		"dryrun": b.dryRunCommand,
	}
}

func (b *Bot) handleCommand(ctx context.Context, name string, args []string) string {
	fn, ok := b.commands[name]
	if !ok {
		return "Unknown command"
	}
	text, err := fn(ctx, args)
	if err != nil {
		b.log.Error().Err(err).Str("command", name).Msg("command failed")
		return errorText(err)
	}
	return text
}

func parseSwitch(args []string) (bool, bool) {
	if len(args) != 1 {
		return false, false
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		return true, true
	case "off", "false", "0":
		return false, true
	}
	return false, false
}

func (b *Bot) autoCommand(ctx context.Context, args []string) (string, error) {
	on, ok := parseSwitch(args)
	if !ok {
		return "Usage: /auto on|off", nil
	}
	if _, err := b.settings.SetAutoPost(ctx, b.chatID, on); err != nil {
		return "", err
	}
	if on {
		return "Automated posting enabled", nil
	}
	return "Automated posting disabled", nil
}

func (b *Bot) dryRunCommand(ctx context.Context, args []string) (string, error) {
	on, ok := parseSwitch(args)
	if !ok {
		return "Usage: /dryrun on|off", nil
	}
	if _, err := b.settings.SetDryRun(ctx, b.chatID, on); err != nil {
		return "", err
	}
	if on {
		return "Dry-run enabled", nil
	}
	return "Dry-run disabled", nil
}

func (b *Bot) statusCommand(ctx context.Context, _ []string) (string, error) {
	settings, err := b.settings.GetSettingsInfo(ctx, b.chatID)
	if err != nil {
		return "", err
	}
	counts, err := b.queue.CountByStatus(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "paused: %t\nauto-post: %t\ndry-run: %t\nposts/day: %d (%02d:00-%02d:00)\n",
		settings.IsPaused, settings.AutoPostEnabled, settings.DryRun,
		settings.PostsPerDay, settings.WindowStartHour, settings.WindowEndHour)

	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(&sb, "%s: %d\n", status, counts[models.QueueStatus(status)])
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
