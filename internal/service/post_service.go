package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/storage"
	"github.com/maheshrc27/crosspost/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	MessagePostSuccessful = "Post successful"
	MessagePostPartial    = "Post partially failed"
	MessagePostFailed     = "Post failed"

	jobIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	jobIDLength   = 16
)

// JobEnqueuer hands a scheduled job to the durable queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *models.PostJob) error
}

type PostService interface {
	Dispatch(ctx context.Context, userID int64, pc *transfer.PostCreation, media []*models.MediaAsset) (*transfer.DispatchResult, error)
	List(ctx context.Context, userID int64) ([]*models.PublishedPost, error)
}

type postService struct {
	platforms   Platforms
	credentials CredentialService
	store       storage.StagingStore
	queue       JobEnqueuer
	posts       repository.PublishedPostRepository
	loc         *time.Location
	now         func() time.Time
	newID       func() (string, error)
	log         zerolog.Logger
}

func NewPostService(
	cfg config.Config,
	platforms Platforms,
	credentials CredentialService,
	store storage.StagingStore,
	queue JobEnqueuer,
	posts repository.PublishedPostRepository,
	log zerolog.Logger) PostService {
	return &postService{
		platforms:   platforms,
		credentials: credentials,
		store:       store,
		queue:       queue,
		posts:       posts,
		loc:         cfg.Location(),
		now:         time.Now,
		newID: func() (string, error) {
			return gonanoid.Generate(jobIDAlphabet, jobIDLength)
		},
		log: log.With().Str("component", "dispatch").Logger(),
	}
}

// postIntent is a validated PostCreation.
type postIntent struct {
	content   models.PostContent
	targets   models.Targets
	scheduled bool
}

func (s *postService) Dispatch(ctx context.Context, userID int64, pc *transfer.PostCreation, media []*models.MediaAsset) (*transfer.DispatchResult, error) {
	paths := make([]string, 0, len(media))
	for _, m := range media {
		paths = append(paths, m.Path)
	}
	defer storage.Cleanup(s.log, paths...)

	intent, err := parseIntent(pc)
	if err != nil {
		metrics.RecordDispatch("rejected", err)
		return nil, err
	}

	if err := ValidateMedia(media, intent.targets); err != nil {
		metrics.RecordDispatch("rejected", err)
		return nil, err
	}

	var scheduledAt time.Time
	if intent.scheduled {
		scheduledAt, err = s.parseSchedule(pc.ScheduleDate, pc.ScheduleTime)
		if err != nil {
			metrics.RecordDispatch("rejected", err)
			return nil, err
		}
	}

	creds, err := s.credentials.Resolve(ctx, userID, intent.targets)
	if err != nil {
		metrics.RecordDispatch("rejected", err)
		return nil, err
	}

	if intent.scheduled {
		result, err := s.schedule(ctx, userID, intent, scheduledAt, media, creds, pc)
		metrics.RecordDispatch("scheduled", err)
		return result, err
	}

	result, err := s.publishNow(ctx, userID, intent, media, creds)
	metrics.RecordDispatch("immediate", err)
	return result, err
}

func parseIntent(pc *transfer.PostCreation) (*postIntent, error) {
	if pc == nil {
		return nil, apperrors.NewValidationError("post data is required")
	}

	var violations []string

	content := strings.TrimSpace(pc.Content)
	if content == "" {
		violations = append(violations, "content is required")
	}

	twitter, err := parseFlag(pc.PostToTwitter)
	if err != nil {
		violations = append(violations, "postToTwitter must be true or false")
	}
	linkedIn, err := parseFlag(pc.PostToLinkedIn)
	if err != nil {
		violations = append(violations, "postToLinkedIn must be true or false")
	}
	scheduled, err := parseFlag(pc.IsScheduled)
	if err != nil {
		violations = append(violations, "isScheduled must be true or false")
	}

	targets := models.Targets{Twitter: twitter, LinkedIn: linkedIn}
	if !targets.Any() {
		violations = append(violations, "select at least one platform")
	}

	var tags []string
	if raw := strings.TrimSpace(pc.Tags); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			violations = append(violations, "tags must be a JSON array of strings")
		}
	}

	status := strings.ToLower(strings.TrimSpace(pc.PublishStatus))
	switch status {
	case "":
		status = models.PublishStatusPublished
	case models.PublishStatusDraft, models.PublishStatusPublished:
	default:
		violations = append(violations, "publishStatus must be draft or published")
	}

	if scheduled && (strings.TrimSpace(pc.ScheduleDate) == "" || strings.TrimSpace(pc.ScheduleTime) == "") {
		violations = append(violations, "scheduleDate and scheduleTime are required for scheduled posts")
	}

	if len(violations) > 0 {
		return nil, apperrors.NewValidationError("invalid post", violations...)
	}

	return &postIntent{
		content: models.PostContent{
			Text:          content,
			Title:         strings.TrimSpace(pc.Title),
			Tags:          tags,
			ContentFormat: pc.ContentFormat,
			PublishStatus: status,
		},
		targets:   targets,
		scheduled: scheduled,
	}, nil
}

func parseFlag(v string) (bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// parseSchedule resolves date and time in the configured zone and requires
// the result to be strictly in the future.
func (s *postService) parseSchedule(date, clock string) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)

	var at time.Time
	var err error
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05"} {
		at, err = time.ParseInLocation(layout, date+"T"+clock, s.loc)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cannot parse %q %q", apperrors.ErrInvalidScheduleTime, date, clock)
	}

	if !at.After(s.now()) {
		return time.Time{}, fmt.Errorf("%w: %s is not in the future", apperrors.ErrInvalidScheduleTime, at.Format(time.RFC3339))
	}
	return at, nil
}

// publishNow delivers to each platform concurrently. One platform failing
// does not stop the other.
func (s *postService) publishNow(ctx context.Context, userID int64, intent *postIntent, media []*models.MediaAsset, creds models.Credentials) (*transfer.DispatchResult, error) {
	type outcome struct {
		platform models.Platform
		result   *models.PlatformPostResult
		err      error
	}

	platforms := intent.targets.Platforms()
	outcomes := make([]outcome, len(platforms))

	var wg sync.WaitGroup
	for i, platform := range platforms {
		i, platform := i, platform
		wg.Add(1)
		go func() {
			defer wg.Done()
			assets := assetsFor(platform, media)
			res, err := s.platforms.Deliver(ctx, platform, intent.content, assets, creds)
			outcomes[i] = outcome{platform: platform, result: res, err: err}
		}()
	}
	wg.Wait()

	result := &transfer.DispatchResult{}
	var errs []error
	for _, o := range outcomes {
		if o.err != nil {
			s.log.Error().Err(o.err).Str("platform", string(o.platform)).Int64("user_id", userID).Msg("publish failed")
			if result.Errors == nil {
				result.Errors = make(map[models.Platform]string)
			}
			result.Errors[o.platform] = o.err.Error()
			errs = append(errs, o.err)
			continue
		}

		s.record(ctx, userID, "", o.platform, o.result, intent.content.Text)
		switch o.platform {
		case models.PlatformTwitter:
			result.Twitter = o.result
		case models.PlatformLinkedIn:
			result.LinkedIn = o.result
		}
	}

	switch {
	case len(errs) == 0:
		result.Message = MessagePostSuccessful
		return result, nil
	case len(errs) < len(outcomes):
		result.Message = MessagePostPartial
	default:
		result.Message = MessagePostFailed
	}
	return result, errors.Join(errs...)
}

func (s *postService) schedule(ctx context.Context, userID int64, intent *postIntent, at time.Time, media []*models.MediaAsset, creds models.Credentials, pc *transfer.PostCreation) (*transfer.DispatchResult, error) {
	jobID, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}

	refs := make([]string, 0, len(media))
	for _, asset := range media {
		ref, err := s.store.Stage(ctx, jobID, asset)
		if err != nil {
			s.unstage(refs)
			return nil, fmt.Errorf("stage media: %w", err)
		}
		refs = append(refs, ref)
	}

	job := &models.PostJob{
		ID:            jobID,
		UserID:        userID,
		ScheduledTime: at,
		Content:       intent.content,
		Targets:       intent.targets,
		MediaRefs:     refs,
		Credentials:   creds,
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.unstage(refs)
		if !errors.Is(err, apperrors.ErrQueueUnavailable) {
			err = fmt.Errorf("%w: %v", apperrors.ErrQueueUnavailable, err)
		}
		return nil, err
	}

	s.log.Info().
		Str("job_id", jobID).
		Int64("user_id", userID).
		Time("scheduled_time", at).
		Int("media", len(refs)).
		Msg("post scheduled")

	return &transfer.DispatchResult{
		Message:       fmt.Sprintf("Post scheduled for %s at %s", strings.TrimSpace(pc.ScheduleDate), strings.TrimSpace(pc.ScheduleTime)),
		JobID:         jobID,
		ScheduledTime: &at,
	}, nil
}

func (s *postService) unstage(refs []string) {
	for _, ref := range refs {
		if err := s.store.Remove(context.Background(), ref); err != nil {
			s.log.Warn().Err(err).Str("ref", ref).Msg("failed to remove staged media")
		}
	}
}

func (s *postService) record(ctx context.Context, userID int64, jobID string, platform models.Platform, res *models.PlatformPostResult, text string) {
	if s.posts == nil || res == nil {
		return
	}
	_, err := s.posts.Create(ctx, &models.PublishedPost{
		UserID:         userID,
		Platform:       platform,
		PlatformPostID: res.ID,
		JobID:          jobID,
		Content:        text,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("platform", string(platform)).Msg("failed to record published post")
	}
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.PublishedPost, error) {
	if s.posts == nil {
		return nil, nil
	}
	return s.posts.ListByUserID(ctx, userID, 50)
}

// assetsFor returns copies of the media a platform receives so concurrent
// deliveries never share an asset. LinkedIn takes one item.
func assetsFor(platform models.Platform, media []*models.MediaAsset) []*models.MediaAsset {
	if platform == models.PlatformLinkedIn && len(media) > 1 {
		media = media[:1]
	}
	out := make([]*models.MediaAsset, 0, len(media))
	for _, m := range media {
		c := *m
		out = append(out, &c)
	}
	return out
}
