package models

import "time"

type EventKind string

const (
	EventDue            EventKind = "due"
	EventClaimed        EventKind = "claimed"
	EventPosted         EventKind = "posted"
	EventSkipped        EventKind = "skipped"
	EventRejected       EventKind = "rejected"
	EventRetryScheduled EventKind = "retry_scheduled"
	EventFailed         EventKind = "failed"
	EventBlocked        EventKind = "blocked"
)

// Event is a structured pipeline notification. Rendering is left to the
// transport that delivers it.
type Event struct {
	Kind       EventKind     `json:"kind"`
	QueueID    string        `json:"queue_id"`
	Media      MediaSnapshot `json:"media"`
	Status     QueueStatus   `json:"status"`
	Actor      string        `json:"actor,omitempty"`
	RetryCount int           `json:"retry_count"`
	MaxRetries int           `json:"max_retries"`
	RetryAt    *time.Time    `json:"retry_at,omitempty"`
	Error      string        `json:"error,omitempty"`
	Permalink  string        `json:"permalink,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
