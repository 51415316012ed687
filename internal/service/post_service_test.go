package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	platform models.Platform

	mu        sync.Mutex
	uploads   []string
	publishes []models.PostContent
	err       error
}

func (f *fakePlatform) Platform() models.Platform { return f.platform }

func (f *fakePlatform) UploadMedia(_ context.Context, asset *models.MediaAsset, _ models.Credentials) (*models.MediaHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, asset.OriginalName)
	return &models.MediaHandle{Platform: f.platform, ID: "media-" + asset.OriginalName, Kind: asset.Kind()}, nil
}

func (f *fakePlatform) Publish(_ context.Context, content models.PostContent, _ []*models.MediaHandle, _ models.Credentials) (*models.PlatformPostResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes = append(f.publishes, content)
	if f.err != nil {
		return nil, f.err
	}
	return &models.PlatformPostResult{Platform: f.platform, ID: fmt.Sprintf("%s-post", f.platform), Text: content.Text}, nil
}

type fakeCredentials struct {
	err error
}

func (f *fakeCredentials) Resolve(_ context.Context, _ int64, targets models.Targets) (models.Credentials, error) {
	if f.err != nil {
		return models.Credentials{}, f.err
	}
	var c models.Credentials
	if targets.Twitter {
		c.Twitter = &models.TwitterCredentials{Token: "t", TokenSecret: "s"}
	}
	if targets.LinkedIn {
		c.LinkedIn = &models.LinkedInCredentials{AccessToken: "a", ActorID: "p1"}
	}
	return c, nil
}

func (f *fakeCredentials) Connections(context.Context, int64) ([]*models.PlatformConnection, error) {
	return nil, nil
}

func (f *fakeCredentials) Connect(context.Context, *models.PlatformConnection) error { return nil }

func (f *fakeCredentials) Disconnect(context.Context, int64, models.Platform) error { return nil }

type fakeStore struct {
	staged   []string
	removed  []string
	stageErr error
}

func (f *fakeStore) Stage(_ context.Context, jobID string, asset *models.MediaAsset) (string, error) {
	if f.stageErr != nil {
		return "", f.stageErr
	}
	ref := jobID + "_1_" + asset.OriginalName
	f.staged = append(f.staged, ref)
	return ref, os.Remove(asset.Path)
}

func (f *fakeStore) Fetch(context.Context, string) (*models.MediaAsset, func(), error) {
	return nil, func() {}, errors.New("not implemented")
}

func (f *fakeStore) Remove(_ context.Context, ref string) error {
	f.removed = append(f.removed, ref)
	return nil
}

func (f *fakeStore) Archive(_ context.Context, ref string) (string, error) { return ref, nil }

func (f *fakeStore) ArchiveRecord(_ context.Context, jobID string, _ []byte) (string, error) {
	return jobID + ".json", nil
}

func (f *fakeStore) Prune(context.Context, time.Time) (int, error) { return 0, nil }

type fakeEnqueuer struct {
	jobs []*models.PostJob
	err  error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, job *models.PostJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type dispatchFixture struct {
	svc      *postService
	twitter  *fakePlatform
	linkedIn *fakePlatform
	creds    *fakeCredentials
	store    *fakeStore
	queue    *fakeEnqueuer
}

var dispatchNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func setupDispatch(t *testing.T) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		twitter:  &fakePlatform{platform: models.PlatformTwitter},
		linkedIn: &fakePlatform{platform: models.PlatformLinkedIn},
		creds:    &fakeCredentials{},
		store:    &fakeStore{},
		queue:    &fakeEnqueuer{},
	}
	f.svc = &postService{
		platforms:   NewPlatforms(f.twitter, f.linkedIn),
		credentials: f.creds,
		store:       f.store,
		queue:       f.queue,
		loc:         time.UTC,
		now:         func() time.Time { return dispatchNow },
		newID:       func() (string, error) { return "job42", nil },
		log:         zerolog.Nop(),
	}
	return f
}

func (f *dispatchFixture) publishCount() int {
	return len(f.twitter.publishes) + len(f.linkedIn.publishes)
}

func TestDispatchImmediateBothPlatforms(t *testing.T) {
	f := setupDispatch(t)
	image := writeMedia(t, "cat.png", "image/png", pngHeader)

	res, err := f.svc.Dispatch(context.Background(), 7, &transfer.PostCreation{
		Content:        "hello world",
		PostToTwitter:  "true",
		PostToLinkedIn: "true",
		Tags:           `["go"]`,
	}, []*models.MediaAsset{image})
	require.NoError(t, err)

	assert.Equal(t, MessagePostSuccessful, res.Message)
	require.NotNil(t, res.Twitter)
	require.NotNil(t, res.LinkedIn)
	assert.Equal(t, "twitter-post", res.Twitter.ID)
	assert.Equal(t, "linkedin-post", res.LinkedIn.ID)
	assert.Empty(t, res.Errors)

	assert.Equal(t, []string{"cat.png"}, f.twitter.uploads)
	assert.Equal(t, []string{"cat.png"}, f.linkedIn.uploads)
	assert.Equal(t, []string{"go"}, f.linkedIn.publishes[0].Tags)
	assert.Equal(t, models.PublishStatusPublished, f.linkedIn.publishes[0].PublishStatus)
	assert.Empty(t, f.queue.jobs)

	_, statErr := os.Stat(image.Path)
	assert.True(t, os.IsNotExist(statErr), "request media should be cleaned up")
}

func TestDispatchImmediatePartialFailure(t *testing.T) {
	f := setupDispatch(t)
	f.twitter.err = &apperrors.PlatformError{Kind: apperrors.ErrTweetPostingFailed, Platform: "twitter", StatusCode: 403}
	image := writeMedia(t, "cat.png", "image/png", pngHeader)

	res, err := f.svc.Dispatch(context.Background(), 7, &transfer.PostCreation{
		Content:        "hello",
		PostToTwitter:  "true",
		PostToLinkedIn: "true",
	}, []*models.MediaAsset{image})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTweetPostingFailed)
	require.NotNil(t, res)
	assert.Equal(t, MessagePostPartial, res.Message)
	assert.Nil(t, res.Twitter)
	require.NotNil(t, res.LinkedIn)
	assert.Contains(t, res.Errors[models.PlatformTwitter], "status 403")
	assert.Len(t, f.twitter.publishes, 1, "publishes are never retried")
	assert.NoFileExists(t, image.Path)
}

func TestDispatchRequiresPlatform(t *testing.T) {
	f := setupDispatch(t)
	image := writeMedia(t, "cat.png", "image/png", pngHeader)

	_, err := f.svc.Dispatch(context.Background(), 7, &transfer.PostCreation{
		Content:        "hello",
		PostToTwitter:  "false",
		PostToLinkedIn: "false",
	}, []*models.MediaAsset{image})

	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Zero(t, f.publishCount())
	assert.Empty(t, f.queue.jobs)

	_, statErr := os.Stat(image.Path)
	assert.True(t, os.IsNotExist(statErr), "rejected request media should be cleaned up")
}

func TestDispatchValidation(t *testing.T) {
	cases := map[string]*transfer.PostCreation{
		"empty content":  {Content: "  ", PostToTwitter: "true"},
		"bad flag":       {Content: "x", PostToTwitter: "yes please"},
		"bad tags":       {Content: "x", PostToTwitter: "true", Tags: "go,oss"},
		"bad status":     {Content: "x", PostToTwitter: "true", PublishStatus: "archived"},
		"missing time":   {Content: "x", PostToTwitter: "true", IsScheduled: "true", ScheduleDate: "2026-01-11"},
		"nil submission": nil,
	}
	for name, pc := range cases {
		t.Run(name, func(t *testing.T) {
			f := setupDispatch(t)
			_, err := f.svc.Dispatch(context.Background(), 7, pc, nil)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Zero(t, f.publishCount())
		})
	}
}

func TestDispatchRejectsPastSchedule(t *testing.T) {
	f := setupDispatch(t)

	for _, clock := range []string{"11:59", "12:00"} {
		image := writeMedia(t, "cat.png", "image/png", pngHeader)
		_, err := f.svc.Dispatch(context.Background(), 7, &transfer.PostCreation{
			Content:       "later",
			PostToTwitter: "true",
			IsScheduled:   "true",
			ScheduleDate:  "2026-01-10",
			ScheduleTime:  clock,
		}, []*models.MediaAsset{image})
		assert.ErrorIs(t, err, apperrors.ErrInvalidScheduleTime, clock)
	}

	assert.Empty(t, f.queue.jobs)
	assert.Empty(t, f.store.staged)
	assert.Zero(t, f.publishCount())
}

func TestDispatchScheduled(t *testing.T) {
	f := setupDispatch(t)
	image := writeMedia(t, "cat.png", "image/png", pngHeader)

	res, err := f.svc.Dispatch(context.Background(), 7, &transfer.PostCreation{
		Content:        "later",
		PostToTwitter:  "true",
		PostToLinkedIn: "true",
		IsScheduled:    "true",
		ScheduleDate:   "2026-01-10",
		ScheduleTime:   "18:30",
		PublishStatus:  "DRAFT",
	}, []*models.MediaAsset{image})
	require.NoError(t, err)

	assert.Equal(t, "Post scheduled for 2026-01-10 at 18:30", res.Message)
	assert.Equal(t, "job42", res.JobID)
	require.NotNil(t, res.ScheduledTime)
	assert.True(t, res.ScheduledTime.Equal(time.Date(2026, 1, 10, 18, 30, 0, 0, time.UTC)))

	require.Len(t, f.queue.jobs, 1)
	job := f.queue.jobs[0]
	assert.Equal(t, "job42", job.ID)
	assert.Equal(t, int64(7), job.UserID)
	assert.Equal(t, []string{"job42_1_cat.png"}, job.MediaRefs)
	assert.True(t, job.Content.IsDraft())
	assert.True(t, job.Credentials.Has(models.PlatformTwitter))
	assert.True(t, job.Credentials.Has(models.PlatformLinkedIn))
	assert.Empty(t, job.Delivered)

	assert.Zero(t, f.publishCount(), "scheduled posts are not published inline")
}

func TestDispatchScheduledQueueUnavailable(t *testing.T) {
	f := setupDispatch(t)
	f.queue.err = errors.New("connection refused")
	image := writeMedia(t, "cat.png", "image/png", pngHeader)

	_, err := f.svc.Dispatch(context.Background(), 7, &transfer.PostCreation{
		Content:       "later",
		PostToTwitter: "true",
		IsScheduled:   "true",
		ScheduleDate:  "2026-01-11",
		ScheduleTime:  "09:00",
	}, []*models.MediaAsset{image})

	assert.ErrorIs(t, err, apperrors.ErrQueueUnavailable)
	assert.Equal(t, f.store.staged, f.store.removed, "staged media should be released")
	assert.NoFileExists(t, image.Path)
}

func TestDispatchScheduledStagingFailure(t *testing.T) {
	f := setupDispatch(t)
	f.store.stageErr = errors.New("disk full")
	image := writeMedia(t, "cat.png", "image/png", pngHeader)

	_, err := f.svc.Dispatch(context.Background(), 7, &transfer.PostCreation{
		Content:       "later",
		PostToTwitter: "true",
		IsScheduled:   "true",
		ScheduleDate:  "2026-01-11",
		ScheduleTime:  "09:00",
	}, []*models.MediaAsset{image})

	require.Error(t, err)
	assert.Empty(t, f.queue.jobs)
	assert.NoFileExists(t, image.Path)
}

func TestDispatchPlatformNotConnected(t *testing.T) {
	f := setupDispatch(t)
	f.creds.err = fmt.Errorf("%w: linkedin", apperrors.ErrPlatformNotConnected)
	image := writeMedia(t, "cat.png", "image/png", pngHeader)

	_, err := f.svc.Dispatch(context.Background(), 7, &transfer.PostCreation{
		Content:        "hello",
		PostToLinkedIn: "true",
	}, []*models.MediaAsset{image})

	assert.ErrorIs(t, err, apperrors.ErrPlatformNotConnected)
	assert.Zero(t, f.publishCount())
	assert.NoFileExists(t, image.Path)
}

func TestParseScheduleAcceptsSeconds(t *testing.T) {
	f := setupDispatch(t)

	at, err := f.svc.parseSchedule("2026-01-10", "12:00:01")
	require.NoError(t, err)
	assert.True(t, at.Equal(dispatchNow.Add(time.Second)))

	_, err = f.svc.parseSchedule("10/01/2026", "13:00")
	assert.ErrorIs(t, err, apperrors.ErrInvalidScheduleTime)
}
