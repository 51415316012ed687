package job

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/storage"
	"github.com/rs/zerolog"
)

const pruneTimeout = 5 * time.Minute

// RetentionJob enforces retention on the dead-letter archive and clears
// request uploads that outlived their request.
type RetentionJob struct {
	store     storage.StagingStore
	retention time.Duration
	uploadDir string
	uploadTTL time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewRetentionJob(store storage.StagingStore, retention time.Duration, uploadDir string, log zerolog.Logger) *RetentionJob {
	return &RetentionJob{
		store:     store,
		retention: retention,
		uploadDir: uploadDir,
		uploadTTL: time.Hour,
		now:       time.Now,
		log:       log.With().Str("component", "retention_job").Logger(),
	}
}

// PruneArchive is registered with cron, so it reports failures by logging.
func (j *RetentionJob) PruneArchive() {
	if j.retention <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	cutoff := j.now().Add(-j.retention)
	removed, err := j.store.Prune(ctx, cutoff)
	metrics.RecordArchivePruned(removed)
	if err != nil {
		j.log.Error().Err(err).Time("cutoff", cutoff).Int("removed", removed).Msg("archive prune failed")
		return
	}
	if removed > 0 {
		j.log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("pruned dead-letter archive")
	}
}

// SweepUploads removes files left in the upload directory by requests that
// never reached cleanup, e.g. after a crash.
func (j *RetentionJob) SweepUploads() {
	if j.uploadDir == "" {
		return
	}

	entries, err := os.ReadDir(j.uploadDir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.log.Error().Err(err).Str("dir", j.uploadDir).Msg("read upload dir failed")
		}
		return
	}

	cutoff := j.now().Add(-j.uploadTTL)
	var stale []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		stale = append(stale, filepath.Join(j.uploadDir, e.Name()))
	}

	storage.Cleanup(j.log, stale...)
	if len(stale) > 0 {
		j.log.Info().Int("removed", len(stale)).Msg("swept stale uploads")
	}
}
