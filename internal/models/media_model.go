package models

import "time"

type MediaItem struct {
	ID           string     `db:"id" json:"id"`
	FileName     string     `db:"file_name" json:"file_name"`
	SourceURI    string     `db:"source_uri" json:"source_uri"`
	MimeType     string     `db:"mime_type" json:"mime_type"`
	Category     string     `db:"category" json:"category"`
	Caption      string     `db:"caption" json:"caption"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	TimesPosted  int        `db:"times_posted" json:"times_posted"`
	LastPostedAt *time.Time `db:"last_posted_at" json:"last_posted_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// NeverPosted reports whether the item has no recorded successful post.
func (m *MediaItem) NeverPosted() bool {
	return m.LastPostedAt == nil
}

// MediaSnapshot is the frozen view of a media item stored with each history entry.
type MediaSnapshot struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	SourceURI   string `json:"source_uri"`
	Category    string `json:"category"`
	TimesPosted int    `json:"times_posted"`
}

func (m *MediaItem) Snapshot() MediaSnapshot {
	return MediaSnapshot{
		ID:          m.ID,
		FileName:    m.FileName,
		SourceURI:   m.SourceURI,
		Category:    m.Category,
		TimesPosted: m.TimesPosted,
	}
}
