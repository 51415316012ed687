package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	linkedInCallTimeout       = 30 * time.Second
	linkedInUploadTimeout     = 120 * time.Second
	linkedInLargeTimeout      = 300 * time.Second
	linkedInLargeUploadThresh = 50 * megabyte

	linkedInImageRecipe = "urn:li:digitalmediaRecipe:feedshare-image"
	linkedInVideoRecipe = "urn:li:digitalmediaRecipe:feedshare-video"
)

type LinkedInService interface {
	PlatformClient
}

type linkedInService struct {
	cfg config.LinkedIn
	log zerolog.Logger
}

func NewLinkedInService(cfg config.Config, log zerolog.Logger) LinkedInService {
	return &linkedInService{
		cfg: cfg.LinkedIn,
		log: log.With().Str("component", "linkedin").Logger(),
	}
}

func (s *linkedInService) Platform() models.Platform {
	return models.PlatformLinkedIn
}

func (s *linkedInService) client(ctx context.Context, creds *models.LinkedInCredentials) *resty.Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"})
	return resty.NewWithClient(oauth2.NewClient(ctx, tokenSource)).
		SetHeader("X-Restli-Protocol-Version", "2.0.0")
}

func personURN(actorID string) string {
	if strings.HasPrefix(actorID, "urn:li:") {
		return actorID
	}
	return "urn:li:person:" + actorID
}

// UploadMedia registers an upload with LinkedIn, then PUTs the file bytes
// to the upload URL it returns.
func (s *linkedInService) UploadMedia(ctx context.Context, asset *models.MediaAsset, creds models.Credentials) (*models.MediaHandle, error) {
	var recipe string
	switch asset.Kind() {
	case models.MediaKindImage:
		recipe = linkedInImageRecipe
	case models.MediaKindVideo:
		recipe = linkedInVideoRecipe
	default:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedMediaType, asset.MimeType)
	}

	client := s.client(ctx, creds.LinkedIn)

	assetURN, uploadURL, err := s.registerUpload(ctx, client, recipe, creds.LinkedIn.ActorID)
	if err != nil {
		return nil, err
	}

	if err := s.putFile(ctx, client, uploadURL, asset); err != nil {
		return nil, err
	}

	s.log.Info().Str("asset", assetURN).Str("file", displayName(asset)).Int64("size", asset.SizeBytes).Msg("media uploaded")
	return &models.MediaHandle{Platform: models.PlatformLinkedIn, ID: assetURN, Kind: asset.Kind()}, nil
}

func (s *linkedInService) registerUpload(ctx context.Context, client *resty.Client, recipe, actorID string) (string, string, error) {
	body := transfer.LinkedInRegisterUploadRequest{
		RegisterUploadRequest: transfer.LinkedInRegisterUpload{
			Recipes: []string{recipe},
			Owner:   personURN(actorID),
			ServiceRelationships: []transfer.LinkedInServiceRelationship{{
				RelationshipType: "OWNER",
				Identifier:       "urn:li:userGeneratedContent",
			}},
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, linkedInCallTimeout)
	defer cancel()

	resp, err := client.R().
		SetContext(callCtx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("action", "registerUpload").
		SetBody(body).
		Post(s.cfg.APIBaseURL + "/assets")
	if err != nil {
		return "", "", linkedInUploadError(0, "", fmt.Errorf("register upload: %w", err))
	}
	if !resp.IsSuccess() {
		return "", "", linkedInUploadError(resp.StatusCode(), resp.String(), errors.New("register upload rejected"))
	}

	var out transfer.LinkedInRegisterUploadResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", "", linkedInUploadError(resp.StatusCode(), "", fmt.Errorf("decode register response: %w", err))
	}
	mechanism, ok := out.Value.UploadMechanism[transfer.LinkedInUploadMechanism]
	if !ok || mechanism.UploadURL == "" || out.Value.Asset == "" {
		return "", "", linkedInUploadError(resp.StatusCode(), resp.String(), errors.New("register response carries no upload url"))
	}
	return out.Value.Asset, mechanism.UploadURL, nil
}

func (s *linkedInService) putFile(ctx context.Context, client *resty.Client, uploadURL string, asset *models.MediaAsset) error {
	file, err := os.Open(asset.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", apperrors.ErrMediaFileNotFound, displayName(asset))
		}
		return err
	}
	defer file.Close()

	// Small files are buffered so the request carries a Content-Length;
	// large ones are streamed.
	large := asset.SizeBytes > linkedInLargeUploadThresh
	timeout := linkedInUploadTimeout
	if large {
		timeout = linkedInLargeTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.R().
		SetContext(callCtx).
		SetHeader("Content-Type", asset.MimeType).
		SetContentLength(!large).
		SetBody(file).
		Put(uploadURL)
	if err != nil {
		return linkedInUploadError(0, "", fmt.Errorf("upload bytes: %w", err))
	}
	if !resp.IsSuccess() {
		return linkedInUploadError(resp.StatusCode(), resp.String(), errors.New("upload bytes rejected"))
	}
	return nil
}

func (s *linkedInService) Publish(ctx context.Context, content models.PostContent, media []*models.MediaHandle, creds models.Credentials) (*models.PlatformPostResult, error) {
	post := buildUGCPost(content, media, creds.LinkedIn.ActorID)

	callCtx, cancel := context.WithTimeout(ctx, linkedInCallTimeout)
	defer cancel()

	resp, err := s.client(ctx, creds.LinkedIn).R().
		SetContext(callCtx).
		SetHeader("Content-Type", "application/json").
		SetBody(post).
		Post(s.cfg.APIBaseURL + "/ugcPosts")
	if err != nil {
		return nil, &apperrors.PlatformError{Kind: apperrors.ErrLinkedInPostingFailed, Platform: "linkedin", Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &apperrors.PlatformError{
			Kind:       apperrors.ErrLinkedInPostingFailed,
			Platform:   "linkedin",
			StatusCode: resp.StatusCode(),
			Detail:     truncate(resp.String()),
		}
	}

	var out transfer.LinkedInUGCPostResponse
	if body := resp.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			s.log.Warn().Err(err).Int("status", resp.StatusCode()).Msg("unreadable ugcPosts response body")
		}
	}
	if out.ID == "" {
		out.ID = resp.Header().Get("X-RestLi-Id")
	}
	if out.ID == "" {
		return nil, &apperrors.PlatformError{
			Kind:       apperrors.ErrLinkedInPostingFailed,
			Platform:   "linkedin",
			StatusCode: resp.StatusCode(),
			Detail:     "response carried no post id",
		}
	}

	s.log.Info().Str("post_id", out.ID).Str("lifecycle", post.LifecycleState).Msg("linkedin post created")
	return &models.PlatformPostResult{Platform: models.PlatformLinkedIn, ID: out.ID, Text: post.SpecificContent.ShareContent.ShareCommentary.Text}, nil
}

func buildUGCPost(content models.PostContent, media []*models.MediaHandle, actorID string) *transfer.LinkedInUGCPost {
	share := transfer.LinkedInShareContent{
		ShareCommentary:    transfer.LinkedInText{Text: commentary(content)},
		ShareMediaCategory: "NONE",
	}
	if len(media) > 0 {
		m := media[0]
		share.ShareMediaCategory = "IMAGE"
		if m.Kind == models.MediaKindVideo {
			share.ShareMediaCategory = "VIDEO"
		}
		share.Media = []transfer.LinkedInShareMedia{{
			Status:      "READY",
			Description: transfer.LinkedInText{Text: content.Title},
			Media:       m.ID,
			Title:       transfer.LinkedInText{Text: content.Title},
		}}
	}

	lifecycle := "PUBLISHED"
	if content.IsDraft() {
		lifecycle = "DRAFT"
	}

	return &transfer.LinkedInUGCPost{
		Author:          personURN(actorID),
		LifecycleState:  lifecycle,
		SpecificContent: transfer.LinkedInSpecificContent{ShareContent: share},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}
}

// commentary joins title, body and hashtags with blank lines, skipping
// empty sections.
func commentary(content models.PostContent) string {
	var sections []string
	if t := strings.TrimSpace(content.Title); t != "" {
		sections = append(sections, t)
	}
	if c := strings.TrimSpace(content.Text); c != "" {
		sections = append(sections, c)
	}

	var tags []string
	for _, tag := range content.Tags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag != "" {
			tags = append(tags, "#"+strings.ReplaceAll(tag, " ", ""))
		}
	}
	if len(tags) > 0 {
		sections = append(sections, strings.Join(tags, " "))
	}
	return strings.Join(sections, "\n\n")
}

func linkedInUploadError(status int, body string, err error) error {
	return &apperrors.PlatformError{
		Kind:       apperrors.ErrMediaUploadFailed,
		Platform:   "linkedin",
		StatusCode: status,
		Detail:     truncate(body),
		Err:        err,
	}
}
