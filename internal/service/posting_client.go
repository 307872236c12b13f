package service

import (
	"context"

	"github.com/maheshrc27/postqueue/internal/models"
)

type PublishRequest struct {
	QueueID     string
	Media       *models.MediaItem
	Destination *models.Destination
	Caption     string
}

type PublishResult struct {
	ExternalID string
	Permalink  string
}

// PostingClient publishes one media item. ctx cancellation is honoured
// between sub-steps up to the publish call; once the platform has published,
// the result is returned even if ctx is done.
type PostingClient interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}
