package transfer

import "time"

type EnqueueRequest struct {
	MediaID      string    `json:"media_id" validate:"required"`
	ScheduledFor time.Time `json:"scheduled_for" validate:"required"`
}

type ActionRequest struct {
	Action string `json:"action" validate:"required,oneof=posted skip reject"`
}

type RegisterMediaRequest struct {
	SourceURI string `json:"source_uri" validate:"required"`
	FileName  string `json:"file_name" validate:"omitempty,max=255"`
	Category  string `json:"category" validate:"omitempty,max=64"`
	Caption   string `json:"caption" validate:"omitempty,max=2200"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type SettingsRequest struct {
	IsPaused        *bool   `json:"is_paused"`
	DryRun          *bool   `json:"dry_run"`
	AutoPostEnabled *bool   `json:"auto_post_enabled"`
	AccountID       *string `json:"account_id"`
	PostsPerDay     *int    `json:"posts_per_day" validate:"omitempty,min=1,max=48"`
	WindowStartHour *int    `json:"window_start_hour" validate:"omitempty,min=0,max=23"`
	WindowEndHour   *int    `json:"window_end_hour" validate:"omitempty,min=1,max=24"`
	Category        *string `json:"category" validate:"omitempty,max=64"`
}

type SlotsRequest struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
	Count int       `json:"count" validate:"required,min=1,max=48"`
}

type RegisterAccountRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
	ExpiresIn   int64  `json:"expires_in" validate:"omitempty,min=0"`
}

type RemoveKeyRequest struct {
	KeyID string `json:"key_id" validate:"required"`
}
