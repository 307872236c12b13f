package models

import "time"

type HistoryOutcome string

const (
	HistoryOutcomePosted   HistoryOutcome = "posted"
	HistoryOutcomeFailed   HistoryOutcome = "failed"
	HistoryOutcomeSkipped  HistoryOutcome = "skipped"
	HistoryOutcomeRejected HistoryOutcome = "rejected"
)

// Status maps a ledger outcome to the terminal queue status it records.
func (o HistoryOutcome) Status() QueueStatus {
	switch o {
	case HistoryOutcomePosted:
		return QueueStatusPosted
	case HistoryOutcomeSkipped:
		return QueueStatusSkipped
	case HistoryOutcomeRejected:
		return QueueStatusRejected
	}
	return QueueStatusFailed
}

type PostingHistory struct {
	ID           string         `db:"id" json:"id"`
	QueueID      string         `db:"queue_id" json:"queue_id"`
	MediaID      string         `db:"media_id" json:"media_id"`
	Media        MediaSnapshot  `db:"media_snapshot" json:"media"`
	Outcome      HistoryOutcome `db:"outcome" json:"outcome"`
	Success      bool           `db:"success" json:"success"`
	Actor        string         `db:"actor" json:"actor"`
	ExternalID   *string        `db:"external_id" json:"external_id,omitempty"`
	Permalink    *string        `db:"permalink" json:"permalink,omitempty"`
	ErrorMessage *string        `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int            `db:"retry_count" json:"retry_count"`
	ScheduledFor time.Time      `db:"scheduled_for" json:"scheduled_for"`
	ClaimedAt    *time.Time     `db:"claimed_at" json:"claimed_at,omitempty"`
	CompletedAt  time.Time      `db:"completed_at" json:"completed_at"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

type HistoryStats struct {
	From        time.Time              `json:"from"`
	To          time.Time              `json:"to"`
	Total       int                    `json:"total"`
	ByOutcome   map[HistoryOutcome]int `json:"by_outcome"`
	SuccessRate float64                `json:"success_rate"`
}
