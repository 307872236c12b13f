package service

import (
	"context"

	"github.com/maheshrc27/postqueue/internal/models"
)

// Notifier delivers pipeline events to humans. Notify returns a handle that
// later events for the same queue entry pass to Update.
type Notifier interface {
	Notify(ctx context.Context, event models.Event) (string, error)
	Update(ctx context.Context, handle string, event models.Event) error
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, models.Event) (string, error) { return "", nil }

func (NopNotifier) Update(context.Context, string, models.Event) error { return nil }
