package models

import (
	"time"
)

// PlatformConnection is a linked platform account. Tokens are stored encrypted.
type PlatformConnection struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Platform    Platform  `db:"platform" json:"platform"`
	AccountID   string    `db:"account_id" json:"account_id"`
	AccountName string    `db:"account_name" json:"account_name"`
	AccessToken string    `db:"access_token" json:"-"`
	TokenSecret string    `db:"token_secret" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PublishedPost records a post a platform accepted.
type PublishedPost struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	Platform       Platform  `db:"platform" json:"platform"`
	PlatformPostID string    `db:"platform_post_id" json:"platform_post_id"`
	JobID          string    `db:"job_id" json:"job_id,omitempty"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
