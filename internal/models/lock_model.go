package models

import "time"

const (
	LockReasonPosted   = "posted"
	LockReasonRejected = "rejected"
	LockReasonManual   = "manual"
)

// Lock keeps a media item out of selection. A nil LockedUntil never expires.
type Lock struct {
	ID          string     `db:"id" json:"id"`
	MediaID     string     `db:"media_id" json:"media_id"`
	LockedUntil *time.Time `db:"locked_until" json:"locked_until,omitempty"`
	Reason      string     `db:"reason" json:"reason"`
	CreatedBy   string     `db:"created_by" json:"created_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

func (l *Lock) Permanent() bool {
	return l.LockedUntil == nil
}

// ActiveAt reports whether the lock still blocks selection at now.
func (l *Lock) ActiveAt(now time.Time) bool {
	return l.LockedUntil == nil || l.LockedUntil.After(now)
}
