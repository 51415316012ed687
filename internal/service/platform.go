package service

import (
	"context"
	"fmt"

	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/models"
)

// PlatformClient moves media into a platform and creates posts there.
// Neither method retries a failed publish.
type PlatformClient interface {
	Platform() models.Platform
	UploadMedia(ctx context.Context, asset *models.MediaAsset, creds models.Credentials) (*models.MediaHandle, error)
	Publish(ctx context.Context, content models.PostContent, media []*models.MediaHandle, creds models.Credentials) (*models.PlatformPostResult, error)
}

// Platforms indexes the configured clients by platform.
type Platforms map[models.Platform]PlatformClient

func NewPlatforms(clients ...PlatformClient) Platforms {
	p := make(Platforms, len(clients))
	for _, c := range clients {
		p[c.Platform()] = c
	}
	return p
}

func (p Platforms) client(platform models.Platform) (PlatformClient, error) {
	c, ok := p[platform]
	if !ok {
		return nil, fmt.Errorf("%w: no client for %s", apperrors.ErrPlatformNotConnected, platform)
	}
	return c, nil
}

// UploadMedia relays a local asset into the platform's media pipeline.
func (p Platforms) UploadMedia(ctx context.Context, asset *models.MediaAsset, creds models.Credentials, platform models.Platform) (*models.MediaHandle, error) {
	c, err := p.client(platform)
	if err != nil {
		return nil, err
	}
	if !creds.Has(platform) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrPlatformNotConnected, platform)
	}
	if err := prepareAsset(asset); err != nil {
		return nil, err
	}

	handle, err := c.UploadMedia(ctx, asset, creds)
	metrics.RecordMediaUpload(string(platform), string(asset.Kind()), err)
	return handle, err
}

// Deliver uploads every asset in order, then publishes the post.
func (p Platforms) Deliver(ctx context.Context, platform models.Platform, content models.PostContent, assets []*models.MediaAsset, creds models.Credentials) (*models.PlatformPostResult, error) {
	c, err := p.client(platform)
	if err != nil {
		return nil, err
	}
	if !creds.Has(platform) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrPlatformNotConnected, platform)
	}

	handles := make([]*models.MediaHandle, 0, len(assets))
	for _, asset := range assets {
		handle, err := p.UploadMedia(ctx, asset, creds, platform)
		if err != nil {
			return nil, err
		}
		handles = append(handles, handle)
	}

	result, err := c.Publish(ctx, content, handles, creds)
	metrics.RecordPublish(string(platform), err)
	return result, err
}
