package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
)

const megabyte = 1024 * 1024

var extensionMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".avi":  "video/x-msvideo",
}

type mediaRule struct {
	images        map[string]bool
	videos        map[string]bool
	maxImageBytes int64
	maxVideoBytes int64
	maxImages     int
	maxItems      int
}

var platformMediaRules = map[models.Platform]mediaRule{
	models.PlatformTwitter: {
		images:        map[string]bool{"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true},
		videos:        map[string]bool{"video/mp4": true},
		maxImageBytes: 5 * megabyte,
		maxVideoBytes: 512 * megabyte,
		maxImages:     4,
		maxItems:      4,
	},
	models.PlatformLinkedIn: {
		images:        map[string]bool{"image/jpeg": true, "image/png": true},
		videos:        map[string]bool{"video/mp4": true, "video/mpeg": true, "video/quicktime": true},
		maxImageBytes: 8 * megabyte,
		maxVideoBytes: 200 * megabyte,
		maxImages:     1,
		maxItems:      1,
	},
}

// ResolveMimeType picks the declared type, then the sniffed file signature,
// then the file extension.
func ResolveMimeType(asset *models.MediaAsset) (string, error) {
	declared := strings.ToLower(strings.TrimSpace(asset.MimeType))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}

	if kind, err := filetype.MatchFile(asset.Path); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value, nil
	}

	for _, name := range []string{asset.OriginalName, asset.Path} {
		if mime, ok := extensionMimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
			return mime, nil
		}
	}

	return "", fmt.Errorf("%w: cannot determine type of %s", apperrors.ErrUnsupportedMediaType, displayName(asset))
}

// prepareAsset checks the file exists and fills in its size and type.
func prepareAsset(asset *models.MediaAsset) error {
	info, err := os.Stat(asset.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", apperrors.ErrMediaFileNotFound, displayName(asset))
		}
		return err
	}
	if asset.SizeBytes == 0 {
		asset.SizeBytes = info.Size()
	}

	mime, err := ResolveMimeType(asset)
	if err != nil {
		return err
	}
	asset.MimeType = mime
	return nil
}

// ValidateMedia checks every asset against the constraints of every target
// platform and reports all violations at once.
func ValidateMedia(assets []*models.MediaAsset, targets models.Targets) error {
	var violations []string

	for _, asset := range assets {
		if err := prepareAsset(asset); err != nil {
			violations = append(violations, fmt.Sprintf("%s: %v", displayName(asset), err))
		}
	}
	if len(violations) > 0 {
		return apperrors.NewValidationError("invalid media", violations...)
	}

	for _, platform := range targets.Platforms() {
		violations = append(violations, checkPlatformMedia(platform, assets)...)
	}
	if len(violations) > 0 {
		return apperrors.NewValidationError("invalid media", violations...)
	}
	return nil
}

func checkPlatformMedia(platform models.Platform, assets []*models.MediaAsset) []string {
	rule := platformMediaRules[platform]
	var violations []string
	images, videos := 0, 0

	for _, asset := range assets {
		name := displayName(asset)
		switch {
		case rule.images[asset.MimeType]:
			images++
			if asset.SizeBytes > rule.maxImageBytes {
				violations = append(violations, fmt.Sprintf("%s: %s images must be at most %dMB", name, platform, rule.maxImageBytes/megabyte))
			}
		case rule.videos[asset.MimeType]:
			videos++
			if asset.SizeBytes > rule.maxVideoBytes {
				violations = append(violations, fmt.Sprintf("%s: %s videos must be at most %dMB", name, platform, rule.maxVideoBytes/megabyte))
			}
		default:
			violations = append(violations, fmt.Sprintf("%s: %s does not accept %s", name, platform, asset.MimeType))
		}
	}

	switch {
	case len(assets) > rule.maxItems:
		violations = append(violations, fmt.Sprintf("%s accepts at most %d media item(s)", platform, rule.maxItems))
	case videos > 0 && images > 0:
		violations = append(violations, fmt.Sprintf("%s does not accept images and video together", platform))
	case videos > 1:
		violations = append(violations, fmt.Sprintf("%s accepts a single video", platform))
	case images > rule.maxImages:
		violations = append(violations, fmt.Sprintf("%s accepts at most %d images", platform, rule.maxImages))
	}
	return violations
}

func displayName(asset *models.MediaAsset) string {
	if asset.OriginalName != "" {
		return asset.OriginalName
	}
	return filepath.Base(asset.Path)
}
