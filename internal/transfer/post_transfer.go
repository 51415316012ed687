package transfer

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maheshrc27/crosspost/internal/models"
)

// PostCreation is the submitted post intent. Flags arrive as "true"/"false"
// form values.
type PostCreation struct {
	Content        string `json:"content" form:"content"`
	PostToTwitter  string `json:"postToTwitter" form:"postToTwitter"`
	PostToLinkedIn string `json:"postToLinkedIn" form:"postToLinkedIn"`
	IsScheduled    string `json:"isScheduled" form:"isScheduled"`
	ScheduleDate   string `json:"scheduleDate" form:"scheduleDate"`
	ScheduleTime   string `json:"scheduleTime" form:"scheduleTime"`
	Title          string `json:"title" form:"title"`
	Tags           string `json:"tags" form:"tags"`
	PublishStatus  string `json:"publishStatus" form:"publishStatus"`
	ContentFormat  string `json:"contentFormat" form:"contentFormat"`
}

type DispatchResult struct {
	Message       string                     `json:"message"`
	Twitter       *models.PlatformPostResult `json:"twitter,omitempty"`
	LinkedIn      *models.PlatformPostResult `json:"linkedIn,omitempty"`
	JobID         string                     `json:"jobId,omitempty"`
	ScheduledTime *time.Time                 `json:"scheduledTime,omitempty"`
	Errors        map[models.Platform]string `json:"errors,omitempty"`
}

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
