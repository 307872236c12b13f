package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

// Sender is the part of *tele.Bot the notifier needs.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier delivers pipeline events to one chat. The handle of a message is
// "<chat id>:<message id>"; later events for the same entry edit it.
type Notifier struct {
	api    Sender
	chatID int64
	loc    *time.Location
	log    zerolog.Logger
}

func NewNotifier(api Sender, chatID int64, loc *time.Location, log zerolog.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		api:    api,
		chatID: chatID,
		loc:    loc,
		log:    log.With().Str("comp", "telegram").Logger(),
	}
}

func (n *Notifier) Notify(ctx context.Context, event models.Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, markup := n.render(event)
	msg, err := n.api.Send(&tele.Chat{ID: n.chatID}, text, sendOptions(markup))
	if err != nil {
		return "", fmt.Errorf("send %s notification: %w", event.Kind, err)
	}
	return formatHandle(n.chatID, msg.ID), nil
}

func (n *Notifier) Update(ctx context.Context, handle string, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, msgID, err := parseHandle(handle)
	if err != nil {
		return err
	}
	text, markup := n.render(event)
	stored := &tele.StoredMessage{ChatID: chatID, MessageID: strconv.Itoa(msgID)}
	if _, err := n.api.Edit(stored, text, sendOptions(markup)); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("edit %s notification: %w", event.Kind, err)
	}
	return nil
}

func sendOptions(markup *tele.ReplyMarkup) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ReplyMarkup:           markup,
	}
}

var eventTitles = map[models.EventKind]string{
	models.EventDue:            "Ready to post",
	models.EventClaimed:        "Posting…",
	models.EventPosted:         "Posted",
	models.EventSkipped:        "Skipped",
	models.EventRejected:       "Rejected",
	models.EventRetryScheduled: "Retry scheduled",
	models.EventFailed:         "Failed",
	models.EventBlocked:        "Blocked",
}

func (n *Notifier) render(e models.Event) (string, *tele.ReplyMarkup) {
	title, ok := eventTitles[e.Kind]
	if !ok {
		title = string(e.Kind)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(title))
	name := e.Media.FileName
	if name == "" {
		name = e.Media.ID
	}
	fmt.Fprintf(&b, "%s", html.EscapeString(name))
	if e.Media.Category != "" {
		fmt.Fprintf(&b, " · %s", html.EscapeString(e.Media.Category))
	}
	fmt.Fprintf(&b, "\nqueue <code>%s</code> · %s · attempt %d/%d\n",
		html.EscapeString(e.QueueID), e.Status, e.RetryCount+1, e.MaxRetries+1)

	if e.Actor != "" {
		fmt.Fprintf(&b, "by %s\n", html.EscapeString(e.Actor))
	}
	if e.RetryAt != nil {
		fmt.Fprintf(&b, "next attempt %s\n", e.RetryAt.In(n.loc).Format("Jan 2 15:04 MST"))
	}
	if e.Error != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(truncate(e.Error, 300)))
	}
	if e.Permalink != "" {
		fmt.Fprintf(&b, "%s\n", html.EscapeString(e.Permalink))
	}
	return strings.TrimRight(b.String(), "\n"), keyboard(e)
}

// keyboard returns the buttons that still make sense for the event. Terminal
// events get none, which removes the keyboard on edit.
func keyboard(e models.Event) *tele.ReplyMarkup {
	var rows [][]tele.InlineButton
	switch e.Kind {
	case models.EventDue, models.EventRetryScheduled:
		rows = [][]tele.InlineButton{
			{button("✅ Posted", actionPosted, e.QueueID), button("⏭ Skip", actionSkip, e.QueueID)},
			{button("🚫 Reject", actionReject, e.QueueID), button("🤖 Auto-post", actionAuto, e.QueueID)},
		}
	case models.EventClaimed:
		rows = [][]tele.InlineButton{{button("✋ Abort", actionAbort, e.QueueID)}}
	default:
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func button(text string, action callbackAction, queueID string) tele.InlineButton {
	return tele.InlineButton{Text: text, Data: callbackData(action, queueID)}
}

func formatHandle(chatID int64, msgID int) string {
	return fmt.Sprintf("%d:%d", chatID, msgID)
}

func parseHandle(handle string) (int64, int, error) {
	chat, msg, ok := strings.Cut(handle, ":")
	if !ok {
		return 0, 0, models.NewValidationError("handle", fmt.Sprintf("malformed notification handle %q", handle))
	}
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return 0, 0, models.NewValidationError("handle", fmt.Sprintf("malformed chat id in %q", handle))
	}
	msgID, err := strconv.Atoi(msg)
	if err != nil {
		return 0, 0, models.NewValidationError("handle", fmt.Sprintf("malformed message id in %q", handle))
	}
	return chatID, msgID, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
