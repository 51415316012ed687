// Package storage holds staged media for scheduled jobs and the dead-letter
// archive for jobs that exhausted their retries.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/rs/zerolog"
)

// StagingStore is a key-addressed blob store. Refs returned by Stage are
// opaque to callers and travel inside queued jobs.
type StagingStore interface {
	// Stage takes ownership of the asset's file and returns its ref.
	Stage(ctx context.Context, jobID string, asset *models.MediaAsset) (string, error)
	// Fetch materializes a staged blob on local disk. release must be called
	// when the caller is done with the file.
	Fetch(ctx context.Context, ref string) (asset *models.MediaAsset, release func(), err error)
	// Remove deletes a staged blob. Missing blobs are not an error.
	Remove(ctx context.Context, ref string) error
	// Archive moves a staged blob into the dead-letter area.
	Archive(ctx context.Context, ref string) (string, error)
	// ArchiveRecord writes a job description next to archived media.
	ArchiveRecord(ctx context.Context, jobID string, body []byte) (string, error)
	// Prune removes archive entries last modified before olderThan.
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// stageKey builds "<jobID>_<unixms>_<name>".
func stageKey(jobID string, now time.Time, asset *models.MediaAsset) string {
	name := asset.OriginalName
	if name == "" {
		name = filepath.Base(asset.Path)
	}
	name = unsafeName.ReplaceAllString(filepath.Base(name), "_")
	jobID = strings.ReplaceAll(unsafeName.ReplaceAllString(jobID, "-"), "_", "-")
	return fmt.Sprintf("%s_%d_%s", jobID, now.UnixMilli(), name)
}

func archiveKey(now time.Time, name string) string {
	return fmt.Sprintf("%d_%s", now.UnixMilli(), name)
}

// originalName strips the job and timestamp prefixes added by stageKey.
func originalName(ref string) string {
	parts := strings.SplitN(ref, "_", 3)
	if len(parts) == 3 {
		return parts[2]
	}
	return ref
}

// validateRef rejects refs that are not a single key. An invalid ref never
// becomes valid, so it is reported as a validation error.
func validateRef(ref string) error {
	if ref == "" || ref != filepath.Base(ref) || ref == "." || ref == ".." {
		return apperrors.NewValidationError("invalid media ref", ref)
	}
	return nil
}

// Cleanup removes request-scoped files. Files already gone are skipped, so
// calling it twice on the same paths is harmless.
func Cleanup(log zerolog.Logger, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", p).Msg("failed to remove uploaded file")
		}
	}
}

// Open builds the staging store selected by STORAGE_BACKEND.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (StagingStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendR2:
		s, err := NewR2Store(ctx, cfg.R2, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageBackendLocal, "":
		s, err := NewLocalStore(cfg.Storage.StagingDir, cfg.Storage.ArchiveDir, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
}
