package models

import (
	"time"
)

// Account is an Instagram professional account used as a posting destination.
// AccessToken is stored encrypted.
type Account struct {
	ID             string    `db:"id" json:"id"`
	IGUserID       string    `db:"ig_user_id" json:"ig_user_id"`
	Username       string    `db:"username" json:"username"`
	AccessToken    string    `db:"access_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Destination is a resolved account with a usable plaintext token.
type Destination struct {
	AccountID   string
	IGUserID    string
	Username    string
	AccessToken string
}
