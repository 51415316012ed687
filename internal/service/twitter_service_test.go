package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTwitter serves the media upload and tweet endpoints.
type fakeTwitter struct {
	mu sync.Mutex

	// appendFailures counts how many APPEND calls per segment fail first.
	appendFailures map[int]int
	appendCalls    map[int]int
	finalize       *transfer.TwitterProcessingInfo
	statusStates   []string
	statusCalls    int
	imageUploads   int
	tweets         []transfer.TweetRequest
	tweetStatus    int
}

func newFakeTwitter() *fakeTwitter {
	return &fakeTwitter{
		appendFailures: map[int]int{},
		appendCalls:    map[int]int{},
		tweetStatus:    http.StatusCreated,
	}
}

func (f *fakeTwitter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/tweets" {
		var body transfer.TweetRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.tweets = append(f.tweets, body)
		w.WriteHeader(f.tweetStatus)
		if f.tweetStatus < 300 {
			fmt.Fprintf(w, `{"data":{"id":"tweet-%d","text":%q}}`, len(f.tweets), body.Text)
		} else {
			fmt.Fprint(w, `{"title":"Forbidden"}`)
		}
		return
	}

	switch r.FormValue("command") {
	case "INIT":
		fmt.Fprint(w, `{"media_id_string":"m1"}`)
	case "APPEND":
		seg, _ := strconv.Atoi(r.FormValue("segment_index"))
		f.appendCalls[seg]++
		if f.appendFailures[seg] > 0 {
			f.appendFailures[seg]--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "FINALIZE":
		out := transfer.TwitterMediaUploadResponse{MediaIDString: "m1", ProcessingInfo: f.finalize}
		_ = json.NewEncoder(w).Encode(out)
	case "STATUS":
		state := f.statusStates[min(f.statusCalls, len(f.statusStates)-1)]
		f.statusCalls++
		out := transfer.TwitterMediaUploadResponse{
			MediaIDString:  "m1",
			ProcessingInfo: &transfer.TwitterProcessingInfo{State: state, CheckAfterSecs: 1},
		}
		if state == transfer.TwitterProcessingFailed {
			out.ProcessingInfo.Error = &transfer.TwitterProcessingError{Message: "InvalidMedia"}
		}
		_ = json.NewEncoder(w).Encode(out)
	default:
		f.imageUploads++
		fmt.Fprint(w, `{"media_id_string":"img1"}`)
	}
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func setupTwitter(t *testing.T, fake *fakeTwitter, chunkSize int64) (*twitterService, *recordedSleeps) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		Twitter: config.Twitter{
			ConsumerKey:    "ck",
			ConsumerSecret: "cs",
			UploadURL:      srv.URL + "/upload",
			TweetURL:       srv.URL + "/tweets",
		},
		Upload: config.Upload{
			ChunkSizeBytes:    chunkSize,
			ChunkRetryCeiling: 3,
			ChunkConcurrency:  1,
			MaxStatusPolls:    3,
			MaxPollInterval:   10 * time.Second,
		},
	}
	svc := NewTwitterService(cfg, zerolog.Nop()).(*twitterService)
	sleeps := &recordedSleeps{}
	svc.sleep = sleeps.sleep
	return svc, sleeps
}

func writeMedia(t *testing.T, name, mime string, body []byte) *models.MediaAsset {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return &models.MediaAsset{Path: path, OriginalName: name, MimeType: mime, SizeBytes: int64(len(body))}
}

var twitterCreds = models.Credentials{Twitter: &models.TwitterCredentials{Token: "t", TokenSecret: "s"}}

func TestTwitterChunkRetriedWithBackoff(t *testing.T) {
	fake := newFakeTwitter()
	fake.appendFailures[0] = 2
	svc, sleeps := setupTwitter(t, fake, 4)

	video := writeMedia(t, "clip.mp4", "video/mp4", []byte("0123456789"))
	handle, err := svc.UploadMedia(context.Background(), video, twitterCreds)
	require.NoError(t, err)

	assert.Equal(t, "m1", handle.ID)
	assert.Equal(t, models.MediaKindVideo, handle.Kind)
	assert.Equal(t, map[int]int{0: 3, 1: 1, 2: 1}, fake.appendCalls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps.delays)
}

func TestTwitterChunkGivesUpAfterThreeAttempts(t *testing.T) {
	fake := newFakeTwitter()
	fake.appendFailures[0] = 100
	svc, _ := setupTwitter(t, fake, 64)

	video := writeMedia(t, "clip.mp4", "video/mp4", []byte("short video"))
	_, err := svc.UploadMedia(context.Background(), video, twitterCreds)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMediaUploadFailed)
	assert.Equal(t, 3, fake.appendCalls[0])
}

func TestTwitterProcessingSucceedsAfterPolling(t *testing.T) {
	fake := newFakeTwitter()
	fake.finalize = &transfer.TwitterProcessingInfo{State: transfer.TwitterProcessingPending, CheckAfterSecs: 5}
	fake.statusStates = []string{transfer.TwitterProcessingInProgress, transfer.TwitterProcessingSucceeded}
	svc, sleeps := setupTwitter(t, fake, 64)

	video := writeMedia(t, "clip.mp4", "video/mp4", []byte("video"))
	handle, err := svc.UploadMedia(context.Background(), video, twitterCreds)
	require.NoError(t, err)

	assert.Equal(t, "m1", handle.ID)
	assert.Equal(t, 2, fake.statusCalls)
	assert.Equal(t, []time.Duration{5 * time.Second, time.Second}, sleeps.delays)
}

func TestTwitterProcessingFailed(t *testing.T) {
	fake := newFakeTwitter()
	fake.finalize = &transfer.TwitterProcessingInfo{State: transfer.TwitterProcessingPending}
	fake.statusStates = []string{transfer.TwitterProcessingFailed}
	svc, _ := setupTwitter(t, fake, 64)

	video := writeMedia(t, "clip.mp4", "video/mp4", []byte("video"))
	_, err := svc.UploadMedia(context.Background(), video, twitterCreds)

	assert.ErrorIs(t, err, apperrors.ErrMediaProcessingFailed)
	assert.Contains(t, err.Error(), "InvalidMedia")
}

func TestTwitterProcessingTimesOut(t *testing.T) {
	fake := newFakeTwitter()
	fake.finalize = &transfer.TwitterProcessingInfo{State: transfer.TwitterProcessingPending, CheckAfterSecs: 60}
	fake.statusStates = []string{transfer.TwitterProcessingInProgress}
	svc, sleeps := setupTwitter(t, fake, 64)

	video := writeMedia(t, "clip.mp4", "video/mp4", []byte("video"))
	_, err := svc.UploadMedia(context.Background(), video, twitterCreds)

	assert.ErrorIs(t, err, apperrors.ErrMediaProcessingTimeout)
	assert.Equal(t, 3, fake.statusCalls)
	for _, d := range sleeps.delays {
		assert.LessOrEqual(t, d, 10*time.Second)
	}
}

func TestTwitterImageUploadAndPublish(t *testing.T) {
	fake := newFakeTwitter()
	svc, _ := setupTwitter(t, fake, 64)

	image := writeMedia(t, "cat.png", "image/png", []byte("png"))
	handle, err := svc.UploadMedia(context.Background(), image, twitterCreds)
	require.NoError(t, err)
	assert.Equal(t, "img1", handle.ID)
	assert.Equal(t, 1, fake.imageUploads)

	res, err := svc.Publish(context.Background(), models.PostContent{Text: "hello"}, []*models.MediaHandle{handle}, twitterCreds)
	require.NoError(t, err)
	assert.Equal(t, "tweet-1", res.ID)
	assert.Equal(t, "hello", res.Text)

	require.Len(t, fake.tweets, 1)
	require.NotNil(t, fake.tweets[0].Media)
	assert.Equal(t, []string{"img1"}, fake.tweets[0].Media.MediaIDs)
}

func TestTwitterPublishTextOnly(t *testing.T) {
	fake := newFakeTwitter()
	svc, _ := setupTwitter(t, fake, 64)

	_, err := svc.Publish(context.Background(), models.PostContent{Text: "plain"}, nil, twitterCreds)
	require.NoError(t, err)
	require.Len(t, fake.tweets, 1)
	assert.Nil(t, fake.tweets[0].Media)
}

func TestTwitterPublishRejectedIsNotRetried(t *testing.T) {
	fake := newFakeTwitter()
	fake.tweetStatus = http.StatusForbidden
	svc, _ := setupTwitter(t, fake, 64)

	_, err := svc.Publish(context.Background(), models.PostContent{Text: "nope"}, nil, twitterCreds)

	assert.ErrorIs(t, err, apperrors.ErrTweetPostingFailed)
	assert.Len(t, fake.tweets, 1)

	var pe *apperrors.PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusForbidden, pe.StatusCode)
}

func TestTwitterUploadMissingFile(t *testing.T) {
	svc, _ := setupTwitter(t, newFakeTwitter(), 64)

	_, err := svc.UploadMedia(context.Background(), &models.MediaAsset{Path: "/nonexistent/clip.mp4", MimeType: "video/mp4"}, twitterCreds)
	assert.ErrorIs(t, err, apperrors.ErrMediaFileNotFound)
}
