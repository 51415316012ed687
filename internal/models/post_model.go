package models

import (
	"slices"
	"time"
)

type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformLinkedIn Platform = "linkedin"
)

const (
	PublishStatusDraft     = "draft"
	PublishStatusPublished = "published"
)

// Targets selects the platforms a post goes to.
type Targets struct {
	Twitter  bool
	LinkedIn bool
}

func (t Targets) Any() bool {
	return t.Twitter || t.LinkedIn
}

func (t Targets) Platforms() []Platform {
	var out []Platform
	if t.Twitter {
		out = append(out, PlatformTwitter)
	}
	if t.LinkedIn {
		out = append(out, PlatformLinkedIn)
	}
	return out
}

func (t Targets) Has(p Platform) bool {
	return slices.Contains(t.Platforms(), p)
}

// PostContent is the platform-neutral body of a post.
type PostContent struct {
	Text          string
	Title         string
	Tags          []string
	ContentFormat string
	PublishStatus string
}

func (c PostContent) IsDraft() bool {
	return c.PublishStatus == PublishStatusDraft
}

// PostJob is a deferred multi-platform post. Credentials are captured when
// the job is created and are not looked up again at delivery.
type PostJob struct {
	ID            string
	UserID        int64
	ScheduledTime time.Time
	Content       PostContent
	Targets       Targets
	MediaRefs     []string
	Credentials   Credentials
	// Delivered maps each platform already published to its post id.
	Delivered map[Platform]string
}

func (j *PostJob) IsDue(now time.Time) bool {
	return !now.Before(j.ScheduledTime)
}

// Pending lists enabled platforms that have not been delivered yet.
func (j *PostJob) Pending() []Platform {
	var out []Platform
	for _, p := range j.Targets.Platforms() {
		if _, done := j.Delivered[p]; !done {
			out = append(out, p)
		}
	}
	return out
}

func (j *PostJob) MarkDelivered(p Platform, postID string) {
	if j.Delivered == nil {
		j.Delivered = make(map[Platform]string)
	}
	j.Delivered[p] = postID
}

type TwitterCredentials struct {
	Token       string
	TokenSecret string
}

type LinkedInCredentials struct {
	AccessToken string
	ActorID     string
}

type Credentials struct {
	Twitter  *TwitterCredentials
	LinkedIn *LinkedInCredentials
}

func (c Credentials) Has(p Platform) bool {
	switch p {
	case PlatformTwitter:
		return c.Twitter != nil && c.Twitter.Token != "" && c.Twitter.TokenSecret != ""
	case PlatformLinkedIn:
		return c.LinkedIn != nil && c.LinkedIn.AccessToken != "" && c.LinkedIn.ActorID != ""
	}
	return false
}

// PlatformPostResult is what a platform returned for a created post.
type PlatformPostResult struct {
	Platform Platform `json:"platform"`
	ID       string   `json:"id"`
	Text     string   `json:"text,omitempty"`
}
