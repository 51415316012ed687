package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/go-resty/resty/v2"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/retry"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/rs/zerolog"
)

const (
	twitterCallTimeout   = 30 * time.Second
	twitterAppendTimeout = 45 * time.Second
	twitterImageTimeout  = 60 * time.Second
	twitterStatusTimeout = 15 * time.Second
	twitterStatusBackoff = 2 * time.Second
	defaultCheckAfter    = 3 * time.Second
)

type TwitterService interface {
	PlatformClient
}

type twitterService struct {
	cfg    config.Twitter
	upload config.Upload
	chunk  retry.Policy
	sleep  retry.SleepFunc
	log    zerolog.Logger
}

func NewTwitterService(cfg config.Config, log zerolog.Logger) TwitterService {
	return &twitterService{
		cfg:    cfg.Twitter,
		upload: cfg.Upload,
		chunk: retry.Policy{
			Ceiling:   cfg.Upload.ChunkRetryCeiling,
			BaseDelay: time.Second,
		},
		sleep: retry.Sleep,
		log:   log.With().Str("component", "twitter").Logger(),
	}
}

func (s *twitterService) Platform() models.Platform {
	return models.PlatformTwitter
}

func (s *twitterService) client(ctx context.Context, creds *models.TwitterCredentials) *resty.Client {
	oauthConfig := oauth1.NewConfig(s.cfg.ConsumerKey, s.cfg.ConsumerSecret)
	httpClient := oauthConfig.Client(ctx, oauth1.NewToken(creds.Token, creds.TokenSecret))
	return resty.NewWithClient(httpClient)
}

func (s *twitterService) UploadMedia(ctx context.Context, asset *models.MediaAsset, creds models.Credentials) (*models.MediaHandle, error) {
	client := s.client(ctx, creds.Twitter)

	var mediaID string
	var err error
	switch asset.Kind() {
	case models.MediaKindVideo:
		mediaID, err = s.uploadChunked(ctx, client, asset)
	case models.MediaKindImage:
		mediaID, err = s.uploadImage(ctx, client, asset)
	default:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedMediaType, asset.MimeType)
	}
	if err != nil {
		s.log.Error().Err(err).Str("file", displayName(asset)).Msg("media upload failed")
		return nil, err
	}

	s.log.Info().Str("media_id", mediaID).Str("file", displayName(asset)).Msg("media uploaded")
	return &models.MediaHandle{Platform: models.PlatformTwitter, ID: mediaID, Kind: asset.Kind()}, nil
}

func (s *twitterService) uploadImage(ctx context.Context, client *resty.Client, asset *models.MediaAsset) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, twitterImageTimeout)
	defer cancel()

	category := "tweet_image"
	if asset.MimeType == "image/gif" {
		category = "tweet_gif"
	}

	resp, err := client.R().
		SetContext(callCtx).
		SetMultipartFormData(map[string]string{"media_category": category}).
		SetFile("media", asset.Path).
		Post(s.cfg.UploadURL)
	if err != nil {
		return "", uploadError(0, "", err)
	}
	if !resp.IsSuccess() {
		return "", uploadError(resp.StatusCode(), resp.String(), nil)
	}

	var out transfer.TwitterMediaUploadResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", uploadError(resp.StatusCode(), "", fmt.Errorf("decode upload response: %w", err))
	}
	return mediaIDOf(&out)
}

func (s *twitterService) Publish(ctx context.Context, content models.PostContent, media []*models.MediaHandle, creds models.Credentials) (*models.PlatformPostResult, error) {
	body := transfer.TweetRequest{Text: content.Text}
	if len(media) > 0 {
		ids := make([]string, 0, len(media))
		for _, m := range media {
			ids = append(ids, m.ID)
		}
		body.Media = &transfer.TweetMedia{MediaIDs: ids}
	}

	callCtx, cancel := context.WithTimeout(ctx, twitterCallTimeout)
	defer cancel()

	resp, err := s.client(ctx, creds.Twitter).R().
		SetContext(callCtx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(s.cfg.TweetURL)
	if err != nil {
		return nil, &apperrors.PlatformError{Kind: apperrors.ErrTweetPostingFailed, Platform: "twitter", Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &apperrors.PlatformError{
			Kind:       apperrors.ErrTweetPostingFailed,
			Platform:   "twitter",
			StatusCode: resp.StatusCode(),
			Detail:     truncate(resp.String()),
		}
	}

	var out transfer.TweetResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil || out.Data.ID == "" {
		if err == nil {
			err = errors.New("response carries no tweet id")
		}
		return nil, &apperrors.PlatformError{Kind: apperrors.ErrTweetPostingFailed, Platform: "twitter", StatusCode: resp.StatusCode(), Err: err}
	}

	s.log.Info().Str("tweet_id", out.Data.ID).Int("media", len(media)).Msg("tweet posted")
	return &models.PlatformPostResult{Platform: models.PlatformTwitter, ID: out.Data.ID, Text: out.Data.Text}, nil
}

func mediaIDOf(out *transfer.TwitterMediaUploadResponse) (string, error) {
	if out.MediaIDString != "" {
		return out.MediaIDString, nil
	}
	if out.MediaID != 0 {
		return fmt.Sprintf("%d", out.MediaID), nil
	}
	return "", uploadError(0, "", errors.New("response carries no media id"))
}

func uploadError(status int, body string, err error) error {
	return &apperrors.PlatformError{
		Kind:       apperrors.ErrMediaUploadFailed,
		Platform:   "twitter",
		StatusCode: status,
		Detail:     truncate(body),
		Err:        err,
	}
}

func truncate(s string) string {
	const max = 512
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
