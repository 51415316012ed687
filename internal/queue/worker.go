package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/retry"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/storage"
	"github.com/rs/zerolog"
)

// Outcome is how the worker settled one delivery.
type Outcome string

const (
	OutcomeDelivered      Outcome = "delivered"
	OutcomeRequeued       Outcome = "requeued"
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	OutcomeDeadLettered   Outcome = "dead_lettered"
)

// Worker consumes scheduled jobs one at a time and delivers them.
type Worker struct {
	dial      Dialer
	store     storage.StagingStore
	platforms service.Platforms
	posts     repository.PublishedPostRepository

	policy         retry.Policy
	notDueDelay    time.Duration
	reconnectDelay time.Duration

	now   func() time.Time
	sleep retry.SleepFunc
	log   zerolog.Logger
}

func NewWorker(
	cfg config.Config,
	dial Dialer,
	store storage.StagingStore,
	platforms service.Platforms,
	posts repository.PublishedPostRepository,
	log zerolog.Logger) *Worker {
	return &Worker{
		dial:      dial,
		store:     store,
		platforms: platforms,
		posts:     posts,
		policy: retry.Policy{
			Ceiling:   cfg.Queue.RetryCeiling,
			BaseDelay: cfg.Queue.RetryBaseDelay,
		},
		notDueDelay:    cfg.Queue.NotDueDelay,
		reconnectDelay: cfg.Queue.ReconnectDelay,
		now:            time.Now,
		sleep:          retry.Sleep,
		log:            log.With().Str("component", "worker").Logger(),
	}
}

// Run consumes until ctx is done, reconnecting after every lost connection.
func (w *Worker) Run(ctx context.Context) error {
	for {
		err := w.consume(ctx)
		if ctx.Err() != nil {
			w.log.Info().Msg("worker stopped")
			return nil
		}

		w.log.Error().Err(err).Dur("retry_in", w.reconnectDelay).Msg("queue connection lost")
		if err := w.sleep(ctx, w.reconnectDelay); err != nil {
			return nil
		}
	}
}

func (w *Worker) consume(ctx context.Context) error {
	broker, err := w.dial(ctx)
	if err != nil {
		return err
	}
	defer broker.Close()

	deliveries, err := broker.Consume(ctx)
	if err != nil {
		return err
	}
	closed := broker.NotifyClose()

	w.log.Info().Msg("worker consuming")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-closed:
			if err == nil {
				err = errors.New("broker closed")
			}
			return err
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery stream closed")
			}
			w.HandleDelivery(ctx, broker, d)
		}
	}
}

// HandleDelivery settles one delivery. Retries are published before the
// original is rejected so a crash in between duplicates rather than loses
// the job.
func (w *Worker) HandleDelivery(ctx context.Context, pub Publisher, d Delivery) Outcome {
	start := w.now()
	outcome := w.handle(ctx, pub, d)
	metrics.RecordJob(string(outcome), w.now().Sub(start))
	return outcome
}

func (w *Worker) handle(ctx context.Context, pub Publisher, d Delivery) Outcome {
	retryCount := d.RetryCount()

	job, err := DecodeJob(d.Body())
	if err != nil {
		w.log.Error().Err(err).Int("retry_count", retryCount).Msg("dropping undecodable job")
		w.settle(d.Nack(false))
		return OutcomeDeadLettered
	}
	log := w.log.With().Str("job_id", job.ID).Int64("user_id", job.UserID).Int("retry_count", retryCount).Logger()

	if !job.IsDue(w.now()) {
		log.Debug().Time("scheduled_time", job.ScheduledTime).Msg("job not due yet")
		if err := w.sleep(ctx, w.notDueDelay); err != nil {
			log.Debug().Err(err).Msg("not-due pause interrupted")
		}
		w.settle(d.Nack(true))
		return OutcomeRequeued
	}

	err = w.deliver(ctx, job, log)
	if err == nil {
		w.release(ctx, job, log)
		w.settle(d.Ack())
		log.Info().Msg("job delivered")
		return OutcomeDelivered
	}

	if apperrors.Retryable(err) && !w.policy.Exhausted(retryCount) {
		delay := w.policy.Backoff(retryCount)
		log.Warn().Err(err).Dur("backoff", delay).Msg("delivery failed, scheduling retry")

		if err := w.sleep(ctx, delay); err != nil {
			w.settle(d.Nack(true))
			return OutcomeRequeued
		}

		body, encErr := EncodeJob(job)
		if encErr == nil {
			encErr = pub.Publish(ctx, body, retryCount+1)
		}
		if encErr != nil {
			log.Error().Err(encErr).Msg("republish failed, requeueing original")
			w.settle(d.Nack(true))
			return OutcomeRequeued
		}

		w.settle(d.Nack(false))
		return OutcomeRetryScheduled
	}

	w.deadLetter(ctx, job, retryCount, err, log)
	w.settle(d.Nack(false))
	return OutcomeDeadLettered
}

// deliver publishes to every enabled platform not yet delivered. A failing
// platform does not stop the others; successes are marked on the job so a
// retry skips them.
func (w *Worker) deliver(ctx context.Context, job *models.PostJob, log zerolog.Logger) error {
	var errs []error

	for _, platform := range job.Pending() {
		result, err := w.deliverTo(ctx, job, platform)
		if err != nil {
			log.Error().Err(err).Str("platform", string(platform)).Msg("platform delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", platform, err))
			continue
		}

		job.MarkDelivered(platform, result.ID)
		log.Info().Str("platform", string(platform)).Str("post_id", result.ID).Msg("posted")
		w.record(ctx, job, platform, result)
	}

	return errors.Join(errs...)
}

func (w *Worker) deliverTo(ctx context.Context, job *models.PostJob, platform models.Platform) (*models.PlatformPostResult, error) {
	assets := make([]*models.MediaAsset, 0, len(job.MediaRefs))
	var releases []func()
	defer func() {
		for _, release := range releases {
			release()
		}
	}()

	for _, ref := range job.MediaRefs {
		asset, release, err := w.store.Fetch(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("fetch staged media %s: %w", ref, err)
		}
		releases = append(releases, release)
		assets = append(assets, asset)
		w.log.Debug().
			Str("job_id", job.ID).
			Str("platform", string(platform)).
			Str("ref", ref).
			Str("mime_type", asset.MimeType).
			Int64("size_bytes", asset.SizeBytes).
			Msg("staged media ready")
	}

	return w.platforms.Deliver(ctx, platform, job.Content, assets, job.Credentials)
}

func (w *Worker) record(ctx context.Context, job *models.PostJob, platform models.Platform, result *models.PlatformPostResult) {
	if w.posts == nil {
		return
	}
	_, err := w.posts.Create(ctx, &models.PublishedPost{
		UserID:         job.UserID,
		Platform:       platform,
		PlatformPostID: result.ID,
		JobID:          job.ID,
		Content:        job.Content.Text,
	})
	if err != nil {
		w.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record published post")
	}
}

func (w *Worker) release(ctx context.Context, job *models.PostJob, log zerolog.Logger) {
	for _, ref := range job.MediaRefs {
		if err := w.store.Remove(ctx, ref); err != nil {
			log.Warn().Err(err).Str("ref", ref).Msg("failed to remove staged media")
		}
	}
}

// archiveRecord describes a dead-lettered job. It never carries credentials.
type archiveRecord struct {
	JobID         string            `json:"jobId"`
	UserID        int64             `json:"userId"`
	ScheduledTime time.Time         `json:"scheduledTime"`
	FailedAt      time.Time         `json:"failedAt"`
	RetryCount    int               `json:"retryCount"`
	Error         string            `json:"error"`
	Content       string            `json:"content"`
	Title         string            `json:"title,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	PublishStatus string            `json:"publishStatus,omitempty"`
	Platforms     []models.Platform `json:"platforms"`
	Delivered     map[string]string `json:"delivered,omitempty"`
	Media         []string          `json:"media,omitempty"`
}

func (w *Worker) deadLetter(ctx context.Context, job *models.PostJob, retryCount int, cause error, log zerolog.Logger) {
	rec := archiveRecord{
		JobID:         job.ID,
		UserID:        job.UserID,
		ScheduledTime: job.ScheduledTime,
		FailedAt:      w.now(),
		RetryCount:    retryCount,
		Error:         cause.Error(),
		Content:       job.Content.Text,
		Title:         job.Content.Title,
		Tags:          job.Content.Tags,
		PublishStatus: job.Content.PublishStatus,
		Platforms:     job.Targets.Platforms(),
	}
	for p, id := range job.Delivered {
		if rec.Delivered == nil {
			rec.Delivered = make(map[string]string)
		}
		rec.Delivered[string(p)] = id
	}

	for _, ref := range job.MediaRefs {
		key, err := w.store.Archive(ctx, ref)
		if err != nil {
			log.Warn().Err(err).Str("ref", ref).Msg("failed to archive staged media")
			continue
		}
		rec.Media = append(rec.Media, key)
	}

	body, err := json.MarshalIndent(rec, "", "  ")
	if err == nil {
		_, err = w.store.ArchiveRecord(ctx, job.ID, body)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to write dead-letter record")
	}

	log.Error().Err(cause).Strs("archived_media", rec.Media).Msg("job permanently failed")
}

func (w *Worker) settle(err error) {
	if err != nil {
		w.log.Error().Err(err).Msg("failed to settle delivery")
	}
}
