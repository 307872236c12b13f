package models

import "time"

type QueueStatus string

const (
	QueueStatusPending        QueueStatus = "pending"
	QueueStatusProcessing     QueueStatus = "processing"
	QueueStatusPosted         QueueStatus = "posted"
	QueueStatusSkipped        QueueStatus = "skipped"
	QueueStatusRejected       QueueStatus = "rejected"
	QueueStatusFailed         QueueStatus = "failed"
	QueueStatusRetryScheduled QueueStatus = "retry_scheduled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s QueueStatus) IsTerminal() bool {
	switch s {
	case QueueStatusPosted, QueueStatusSkipped, QueueStatusRejected, QueueStatusFailed:
		return true
	}
	return false
}

func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusPosted, QueueStatusSkipped,
		QueueStatusRejected, QueueStatusFailed, QueueStatusRetryScheduled:
		return true
	}
	return false
}

type QueueEntry struct {
	ID           string      `db:"id" json:"id"`
	MediaID      string      `db:"media_id" json:"media_id"`
	ScheduledFor time.Time   `db:"scheduled_for" json:"scheduled_for"`
	Status       QueueStatus `db:"status" json:"status"`
	RetryCount   int         `db:"retry_count" json:"retry_count"`
	MaxRetries   int         `db:"max_retries" json:"max_retries"`
	NextRetryAt  *time.Time  `db:"next_retry_at" json:"next_retry_at,omitempty"`
	LastError    *string     `db:"last_error" json:"last_error,omitempty"`
	ClaimedBy    *string     `db:"claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt    *time.Time  `db:"claimed_at" json:"claimed_at,omitempty"`
	NotifyHandle *string     `db:"notify_handle" json:"-"`
	AnnouncedAt  *time.Time  `db:"announced_at" json:"announced_at,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// Claimable reports whether an automated claim would succeed at now.
func (q *QueueEntry) Claimable(now time.Time) bool {
	switch q.Status {
	case QueueStatusPending:
		return true
	case QueueStatusRetryScheduled:
		return q.NextRetryAt != nil && !q.NextRetryAt.After(now)
	}
	return false
}
