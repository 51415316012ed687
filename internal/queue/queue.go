// Package queue carries scheduled post jobs between the dispatch path and
// the delivery worker over a durable broker.
package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
)

const (
	TaskTypeDeliverPost = "post:deliver"

	// RetryCountHeader counts how many times a job was republished after a
	// failed delivery.
	RetryCountHeader = "x-retry-count"
)

// Message is the JSON body of a queued job.
type Message struct {
	JobID          string            `json:"jobId"`
	UserID         int64             `json:"userId"`
	ScheduledTime  int64             `json:"scheduledTime"`
	Content        string            `json:"content"`
	PostToTwitter  string            `json:"postToTwitter"`
	PostToLinkedIn string            `json:"postToLinkedIn"`
	Title          string            `json:"title"`
	Tags           string            `json:"tags"`
	PublishStatus  string            `json:"publishStatus"`
	ContentFormat  string            `json:"contentFormat"`
	MediaPath      string            `json:"mediaPath,omitempty"`
	MediaPaths     []string          `json:"mediaPaths,omitempty"`
	User           MessageUser       `json:"user"`
	Delivered      map[string]string `json:"delivered,omitempty"`
}

type MessageUser struct {
	Twitter  *TwitterUser  `json:"twitter"`
	LinkedIn *LinkedInUser `json:"linkedin"`
}

type TwitterUser struct {
	Token       string `json:"twittertoken"`
	TokenSecret string `json:"twittertokenSecret"`
}

type LinkedInUser struct {
	AccessToken string `json:"linkedinAccessToken"`
	ID          string `json:"linkedinId"`
}

func EncodeJob(job *models.PostJob) ([]byte, error) {
	tags := job.Content.Tags
	if tags == nil {
		tags = []string{}
	}
	rawTags, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}

	msg := Message{
		JobID:          job.ID,
		UserID:         job.UserID,
		ScheduledTime:  job.ScheduledTime.UnixMilli(),
		Content:        job.Content.Text,
		PostToTwitter:  strconv.FormatBool(job.Targets.Twitter),
		PostToLinkedIn: strconv.FormatBool(job.Targets.LinkedIn),
		Title:          job.Content.Title,
		Tags:           string(rawTags),
		PublishStatus:  job.Content.PublishStatus,
		ContentFormat:  job.Content.ContentFormat,
	}

	if len(job.MediaRefs) > 0 {
		msg.MediaPath = job.MediaRefs[0]
	}
	if len(job.MediaRefs) > 1 {
		msg.MediaPaths = job.MediaRefs
	}

	if c := job.Credentials.Twitter; c != nil {
		msg.User.Twitter = &TwitterUser{Token: c.Token, TokenSecret: c.TokenSecret}
	}
	if c := job.Credentials.LinkedIn; c != nil {
		msg.User.LinkedIn = &LinkedInUser{AccessToken: c.AccessToken, ID: c.ActorID}
	}

	if len(job.Delivered) > 0 {
		msg.Delivered = make(map[string]string, len(job.Delivered))
		for p, id := range job.Delivered {
			msg.Delivered[string(p)] = id
		}
	}

	return json.Marshal(msg)
}

// DecodeJob parses a queued body. Bodies that can never be delivered are
// reported as validation errors.
func DecodeJob(body []byte) (*models.PostJob, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, apperrors.NewValidationError("malformed job body", err.Error())
	}

	if msg.JobID == "" {
		msg.JobID = derivedJobID(body)
	}

	var violations []string
	if strings.TrimSpace(msg.Content) == "" {
		violations = append(violations, "content is required")
	}
	if msg.ScheduledTime <= 0 {
		violations = append(violations, "scheduledTime is required")
	}

	twitter, err := parseWireFlag(msg.PostToTwitter)
	if err != nil {
		violations = append(violations, fmt.Sprintf("postToTwitter: %v", err))
	}
	linkedIn, err := parseWireFlag(msg.PostToLinkedIn)
	if err != nil {
		violations = append(violations, fmt.Sprintf("postToLinkedIn: %v", err))
	}
	targets := models.Targets{Twitter: twitter, LinkedIn: linkedIn}
	if !targets.Any() {
		violations = append(violations, "no platform enabled")
	}

	var tags []string
	if msg.Tags != "" {
		if err := json.Unmarshal([]byte(msg.Tags), &tags); err != nil {
			violations = append(violations, "tags must be a JSON array")
		}
	}

	if len(violations) > 0 {
		return nil, apperrors.NewValidationError("invalid job "+msg.JobID, violations...)
	}

	job := &models.PostJob{
		ID:            msg.JobID,
		UserID:        msg.UserID,
		ScheduledTime: time.UnixMilli(msg.ScheduledTime),
		Content: models.PostContent{
			Text:          msg.Content,
			Title:         msg.Title,
			Tags:          tags,
			ContentFormat: msg.ContentFormat,
			PublishStatus: msg.PublishStatus,
		},
		Targets: targets,
	}

	switch {
	case len(msg.MediaPaths) > 0:
		job.MediaRefs = msg.MediaPaths
	case msg.MediaPath != "":
		job.MediaRefs = []string{msg.MediaPath}
	}

	if u := msg.User.Twitter; u != nil {
		job.Credentials.Twitter = &models.TwitterCredentials{Token: u.Token, TokenSecret: u.TokenSecret}
	}
	if u := msg.User.LinkedIn; u != nil {
		job.Credentials.LinkedIn = &models.LinkedInCredentials{AccessToken: u.AccessToken, ActorID: u.ID}
	}

	for p, id := range msg.Delivered {
		job.MarkDelivered(models.Platform(p), id)
	}

	return job, nil
}

// derivedJobID names jobs published without a jobId. The id depends only on
// the body, so a requeued copy keeps the same id.
func derivedJobID(body []byte) string {
	sum := sha256.Sum256(body)
	return "msg-" + hex.EncodeToString(sum[:8])
}

func parseWireFlag(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
