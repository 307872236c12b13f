package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/service"
)

const callbackPrefix = "q"

// callbackAction is the button verb carried in callback data.
type callbackAction string

const (
	actionPosted = callbackAction(service.ActionPosted)
	actionSkip   = callbackAction(service.ActionSkip)
	actionReject = callbackAction(service.ActionReject)

	actionAuto  callbackAction = "auto"
	actionAbort callbackAction = "abort"
)

func callbackData(action callbackAction, queueID string) string {
	return callbackPrefix + ":" + string(action) + ":" + queueID
}

func parseCallbackData(data string) (action callbackAction, queueID string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != callbackPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return callbackAction(parts[1]), parts[2], true
}

type callbackFunc func(ctx context.Context, queueID, actor string) (string, error)

func (b *Bot) callbackActions() map[callbackAction]callbackFunc {
	human := func(action service.HumanAction) callbackFunc {
		return func(ctx context.Context, queueID, actor string) (string, error) {
			out, err := b.posting.HandleHumanAction(ctx, queueID, actor, action)
			if err != nil {
				return "", err
			}
			return outcomeText(out), nil
		}
	}
	return map[callbackAction]callbackFunc{
		actionPosted: human(service.ActionPosted),
		actionSkip:   human(service.ActionSkip),
		actionReject: human(service.ActionReject),
		actionAuto:   b.startAttempt,
		actionAbort:  b.abortAttempt,
	}
}

func (b *Bot) abortAttempt(_ context.Context, queueID, _ string) (string, error) {
	if b.posting.Abort(queueID) {
		return "Abort requested", nil
	}
	return "Nothing to abort", nil
}

// handleCallback runs the button action and returns the text shown to the
// user who pressed it.
func (b *Bot) handleCallback(ctx context.Context, data, actor string) string {
	action, queueID, ok := parseCallbackData(data)
	if !ok {
		return "Unknown button"
	}
	fn, ok := b.actions[action]
	if !ok {
		b.log.Warn().Str("data", data).Msg("unknown callback action")
		return "Unknown action"
	}

	text, err := fn(ctx, queueID, actor)
	if err != nil {
		b.log.Error().Err(err).Str("queue_id", queueID).Str("action", string(action)).Str("actor", actor).Msg("callback failed")
		return errorText(err)
	}
	return text
}

// startAttempt runs an operator-requested automated post in the background;
// its progress arrives as notifications.
func (b *Bot) startAttempt(_ context.Context, queueID, actor string) (string, error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		out, err := b.posting.RequestAttempt(b.ctx, queueID, actor)
		if err != nil {
			b.log.Error().Err(err).Str("queue_id", queueID).Msg("requested attempt failed")
			return
		}
		b.log.Info().Str("queue_id", queueID).Str("outcome", string(out.Kind)).Msg("requested attempt finished")
	}()
	return "Posting started", nil
}

func outcomeText(out *service.Outcome) string {
	if out.Kind == service.OutcomeAlreadyHandled {
		if out.Actor != "" {
			return fmt.Sprintf("Already %s by %s", out.Status, out.Actor)
		}
		return fmt.Sprintf("Already %s", out.Status)
	}
	return fmt.Sprintf("Marked %s", out.Status)
}

func errorText(err error) string {
	var valErr *models.ValidationError
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "Entry not found"
	case errors.As(err, &valErr):
		return valErr.Message
	default:
		return "Something went wrong"
	}
}
