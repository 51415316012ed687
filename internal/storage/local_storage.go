package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/rs/zerolog"
)

// LocalStore keeps staged media and the archive in two directories.
type LocalStore struct {
	stagingDir string
	archiveDir string
	now        func() time.Time
	log        zerolog.Logger
}

func NewLocalStore(stagingDir, archiveDir string, log zerolog.Logger) (*LocalStore, error) {
	for _, dir := range []string{stagingDir, archiveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
		}
	}
	return &LocalStore{
		stagingDir: stagingDir,
		archiveDir: archiveDir,
		now:        time.Now,
		log:        log.With().Str("component", "local-storage").Logger(),
	}, nil
}

func (s *LocalStore) Stage(ctx context.Context, jobID string, asset *models.MediaAsset) (string, error) {
	if _, err := os.Stat(asset.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", apperrors.ErrMediaFileNotFound, asset.Path)
		}
		return "", err
	}

	ref := stageKey(jobID, s.now(), asset)
	if err := moveFile(asset.Path, filepath.Join(s.stagingDir, ref)); err != nil {
		return "", fmt.Errorf("stage media: %w", err)
	}

	s.log.Debug().Str("ref", ref).Str("job_id", jobID).Msg("media staged")
	return ref, nil
}

// resolve accepts a bare key or a path to a file directly inside the staging
// directory, as written by producers that publish file paths.
func (s *LocalStore) resolve(ref string) (string, error) {
	if validateRef(ref) == nil {
		return ref, nil
	}
	if ref == "" {
		return "", validateRef(ref)
	}

	abs, err := filepath.Abs(ref)
	if err != nil {
		return "", validateRef(ref)
	}
	stagingAbs, err := filepath.Abs(s.stagingDir)
	if err != nil {
		return "", err
	}
	if filepath.Dir(abs) != stagingAbs {
		return "", validateRef(ref)
	}

	key := filepath.Base(abs)
	if err := validateRef(key); err != nil {
		return "", err
	}
	return key, nil
}

func (s *LocalStore) Fetch(ctx context.Context, ref string) (*models.MediaAsset, func(), error) {
	ref, err := s.resolve(ref)
	if err != nil {
		return nil, nil, err
	}

	path := filepath.Join(s.stagingDir, ref)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", apperrors.ErrMediaFileNotFound, ref)
		}
		return nil, nil, err
	}

	s.log.Debug().
		Str("ref", ref).
		Int64("size", info.Size()).
		Time("modified", info.ModTime()).
		Msg("staged media found")

	return &models.MediaAsset{
		Path:         path,
		SizeBytes:    info.Size(),
		OriginalName: originalName(ref),
	}, func() {}, nil
}

func (s *LocalStore) Remove(ctx context.Context, ref string) error {
	ref, err := s.resolve(ref)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.stagingDir, ref))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) Archive(ctx context.Context, ref string) (string, error) {
	ref, err := s.resolve(ref)
	if err != nil {
		return "", err
	}

	src := filepath.Join(s.stagingDir, ref)
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", apperrors.ErrMediaFileNotFound, ref)
	}

	now := s.now()
	key := archiveKey(now, ref)
	dst := filepath.Join(s.archiveDir, key)
	if err := moveFile(src, dst); err != nil {
		return "", fmt.Errorf("archive media: %w", err)
	}
	// Retention counts from archiving; a rename keeps the upload's mtime.
	if err := os.Chtimes(dst, now, now); err != nil {
		s.log.Warn().Err(err).Str("file", key).Msg("failed to stamp archived media")
	}
	return key, nil
}

func (s *LocalStore) ArchiveRecord(ctx context.Context, jobID string, body []byte) (string, error) {
	key := archiveKey(s.now(), jobID+".json")
	if err := os.WriteFile(filepath.Join(s.archiveDir, key), body, 0o644); err != nil {
		return "", fmt.Errorf("write archive record: %w", err)
	}
	return key, nil
}

func (s *LocalStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	entries, err := os.ReadDir(s.archiveDir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(olderThan) {
			continue
		}
		if err := os.Remove(filepath.Join(s.archiveDir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("file", entry.Name()).Msg("failed to prune archive entry")
			continue
		}
		removed++
	}
	return removed, nil
}

// moveFile renames src to dst, copying then deleting when the rename
// crosses devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	in.Close()
	return os.Remove(src)
}
