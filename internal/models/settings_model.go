package models

import "time"

// Settings holds the posting controls of one chat context.
type Settings struct {
	ChatID          int64     `db:"chat_id" json:"chat_id"`
	IsPaused        bool      `db:"is_paused" json:"is_paused"`
	DryRun          bool      `db:"dry_run" json:"dry_run"`
	AutoPostEnabled bool      `db:"auto_post_enabled" json:"auto_post_enabled"`
	AccountID       *string   `db:"account_id" json:"account_id,omitempty"`
	PostsPerDay     int       `db:"posts_per_day" json:"posts_per_day"`
	WindowStartHour int       `db:"window_start_hour" json:"window_start_hour"`
	WindowEndHour   int       `db:"window_end_hour" json:"window_end_hour"`
	Category        string    `db:"category" json:"category"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
