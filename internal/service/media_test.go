package service

import (
	"testing"

	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestResolveMimeType(t *testing.T) {
	t.Run("declared type wins", func(t *testing.T) {
		asset := writeMedia(t, "a.bin", "image/jpeg; charset=binary", []byte("x"))
		mime, err := ResolveMimeType(asset)
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", mime)
	})

	t.Run("sniffs octet-stream", func(t *testing.T) {
		asset := writeMedia(t, "upload", "application/octet-stream", pngHeader)
		mime, err := ResolveMimeType(asset)
		require.NoError(t, err)
		assert.Equal(t, "image/png", mime)
	})

	t.Run("falls back to extension", func(t *testing.T) {
		asset := writeMedia(t, "clip.MP4", "", []byte("not a real header"))
		mime, err := ResolveMimeType(asset)
		require.NoError(t, err)
		assert.Equal(t, "video/mp4", mime)
	})

	t.Run("unknown", func(t *testing.T) {
		asset := writeMedia(t, "notes", "", []byte("plain words"))
		_, err := ResolveMimeType(asset)
		assert.ErrorIs(t, err, apperrors.ErrUnsupportedMediaType)
	})
}

func TestValidateMedia(t *testing.T) {
	both := models.Targets{Twitter: true, LinkedIn: true}
	twitterOnly := models.Targets{Twitter: true}

	t.Run("no media", func(t *testing.T) {
		assert.NoError(t, ValidateMedia(nil, both))
	})

	t.Run("single image for both", func(t *testing.T) {
		assets := []*models.MediaAsset{writeMedia(t, "a.png", "image/png", pngHeader)}
		assert.NoError(t, ValidateMedia(assets, both))
	})

	t.Run("four images fit twitter only", func(t *testing.T) {
		var assets []*models.MediaAsset
		for _, n := range []string{"1.png", "2.png", "3.png", "4.png"} {
			assets = append(assets, writeMedia(t, n, "image/png", pngHeader))
		}
		assert.NoError(t, ValidateMedia(assets, twitterOnly))

		err := ValidateMedia(assets, both)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Contains(t, err.Error(), "linkedin accepts at most 1")
	})

	t.Run("mixed image and video", func(t *testing.T) {
		assets := []*models.MediaAsset{
			writeMedia(t, "a.png", "image/png", pngHeader),
			writeMedia(t, "b.mp4", "video/mp4", []byte("video")),
		}
		err := ValidateMedia(assets, twitterOnly)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Contains(t, err.Error(), "images and video together")
	})

	t.Run("oversized image", func(t *testing.T) {
		asset := writeMedia(t, "big.png", "image/png", pngHeader)
		asset.SizeBytes = 6 * megabyte
		err := ValidateMedia([]*models.MediaAsset{asset}, twitterOnly)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Contains(t, err.Error(), "at most 5MB")

		assert.NoError(t, ValidateMedia([]*models.MediaAsset{asset}, models.Targets{LinkedIn: true}))
	})

	t.Run("type not accepted by platform", func(t *testing.T) {
		asset := writeMedia(t, "a.webp", "image/webp", []byte("webp"))
		assert.NoError(t, ValidateMedia([]*models.MediaAsset{asset}, twitterOnly))

		err := ValidateMedia([]*models.MediaAsset{asset}, models.Targets{LinkedIn: true})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("missing file", func(t *testing.T) {
		err := ValidateMedia([]*models.MediaAsset{{Path: "/nonexistent/a.png", MimeType: "image/png"}}, twitterOnly)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Contains(t, err.Error(), "media file not found")
	})
}
