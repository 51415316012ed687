package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// uploadChunked runs the INIT, APPEND, FINALIZE and STATUS sequence.
func (s *twitterService) uploadChunked(ctx context.Context, client *resty.Client, asset *models.MediaAsset) (string, error) {
	file, err := os.Open(asset.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", apperrors.ErrMediaFileNotFound, displayName(asset))
		}
		return "", err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", err
	}

	session := models.NewUploadSession(info.Size(), s.upload.ChunkSizeBytes)

	initResp, err := s.command(ctx, client, twitterCallTimeout, map[string]string{
		"command":        "INIT",
		"total_bytes":    strconv.FormatInt(session.TotalBytes, 10),
		"media_type":     asset.MimeType,
		"media_category": "tweet_video",
	})
	if err != nil {
		session.Advance(models.UploadStateFailed)
		return "", err
	}
	session.MediaID, err = mediaIDOf(initResp)
	if err != nil {
		session.Advance(models.UploadStateFailed)
		return "", err
	}
	if err := session.Advance(models.UploadStateAppending); err != nil {
		return "", err
	}

	s.log.Info().
		Str("media_id", session.MediaID).
		Int64("total_bytes", session.TotalBytes).
		Int("segments", session.SegmentCount).
		Msg("chunked upload initialized")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.upload.ChunkConcurrency)
	for i := 0; i < session.SegmentCount; i++ {
		i := i
		g.Go(func() error {
			return s.appendSegment(gctx, client, file, session, i)
		})
	}
	if err := g.Wait(); err != nil {
		session.Advance(models.UploadStateFailed)
		return "", err
	}

	if err := session.Advance(models.UploadStateFinalizing); err != nil {
		return "", err
	}
	finalResp, err := s.command(ctx, client, twitterCallTimeout, map[string]string{
		"command":  "FINALIZE",
		"media_id": session.MediaID,
	})
	if err != nil {
		session.Advance(models.UploadStateFailed)
		return "", err
	}

	if finalResp.ProcessingInfo == nil {
		session.Advance(models.UploadStateReady)
		return session.MediaID, nil
	}

	session.Advance(models.UploadStateProcessing)
	if err := s.awaitProcessing(ctx, client, session.MediaID, finalResp.ProcessingInfo); err != nil {
		session.Advance(models.UploadStateFailed)
		return "", err
	}
	session.Advance(models.UploadStateReady)
	return session.MediaID, nil
}

// appendSegment uploads one segment, retrying it under the chunk policy.
func (s *twitterService) appendSegment(ctx context.Context, client *resty.Client, file io.ReaderAt, session *models.UploadSession, index int) error {
	offset, length := session.Segment(index)
	buf := make([]byte, length)
	n, err := file.ReadAt(buf, offset)
	if int64(n) != length {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("read segment %d: %w", index, err)
	}

	err = s.chunk.Execute(ctx, s.sleep, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			metrics.RecordChunkRetry()
			s.log.Warn().Str("media_id", session.MediaID).Int("segment", index).Int("attempt", attempt).Msg("retrying segment")
		}

		callCtx, cancel := context.WithTimeout(ctx, twitterAppendTimeout)
		defer cancel()

		resp, err := client.R().
			SetContext(callCtx).
			SetMultipartFormData(map[string]string{
				"command":       "APPEND",
				"media_id":      session.MediaID,
				"segment_index": strconv.Itoa(index),
			}).
			SetFileReader("media", fmt.Sprintf("segment-%d", index), bytes.NewReader(buf)).
			Post(s.cfg.UploadURL)
		if err != nil {
			return err
		}
		if !resp.IsSuccess() {
			return fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String()))
		}
		return nil
	})
	if err != nil {
		return uploadError(0, "", fmt.Errorf("segment %d: %w", index, err))
	}
	return nil
}

// awaitProcessing polls STATUS until the platform reports the media ready.
func (s *twitterService) awaitProcessing(ctx context.Context, client *resty.Client, mediaID string, info *transfer.TwitterProcessingInfo) error {
	for poll := 0; ; poll++ {
		switch info.State {
		case transfer.TwitterProcessingSucceeded:
			return nil
		case transfer.TwitterProcessingFailed:
			detail := "processing failed"
			if info.Error != nil && info.Error.Message != "" {
				detail = info.Error.Message
			}
			return &apperrors.PlatformError{Kind: apperrors.ErrMediaProcessingFailed, Platform: "twitter", Detail: detail}
		}

		if poll >= s.upload.MaxStatusPolls {
			return &apperrors.PlatformError{
				Kind:     apperrors.ErrMediaProcessingTimeout,
				Platform: "twitter",
				Detail:   fmt.Sprintf("media %s not ready after %d status checks", mediaID, poll),
			}
		}

		if err := s.sleep(ctx, s.checkAfter(info)); err != nil {
			return err
		}

		statusCtx, cancel := context.WithTimeout(ctx, twitterStatusTimeout)
		resp, err := client.R().
			SetContext(statusCtx).
			SetQueryParams(map[string]string{"command": "STATUS", "media_id": mediaID}).
			Get(s.cfg.UploadURL)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				s.log.Warn().Str("media_id", mediaID).Int("poll", poll+1).Msg("status check timed out")
				if err := s.sleep(ctx, twitterStatusBackoff); err != nil {
					return err
				}
				continue
			}
			return uploadError(0, "", fmt.Errorf("status check: %w", err))
		}
		if !resp.IsSuccess() {
			return uploadError(resp.StatusCode(), resp.String(), nil)
		}

		var out transfer.TwitterMediaUploadResponse
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return uploadError(resp.StatusCode(), "", fmt.Errorf("decode status response: %w", err))
		}
		if out.ProcessingInfo == nil {
			return nil
		}
		info = out.ProcessingInfo

		s.log.Debug().Str("media_id", mediaID).Str("state", info.State).Int("progress", info.ProgressPercent).Msg("media processing")
	}
}

func (s *twitterService) checkAfter(info *transfer.TwitterProcessingInfo) time.Duration {
	wait := time.Duration(info.CheckAfterSecs) * time.Second
	if wait <= 0 {
		wait = defaultCheckAfter
	}
	if s.upload.MaxPollInterval > 0 && wait > s.upload.MaxPollInterval {
		wait = s.upload.MaxPollInterval
	}
	return wait
}

// command sends a form-encoded upload command and decodes the response.
func (s *twitterService) command(ctx context.Context, client *resty.Client, timeout time.Duration, form map[string]string) (*transfer.TwitterMediaUploadResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.R().
		SetContext(callCtx).
		SetFormData(form).
		Post(s.cfg.UploadURL)
	if err != nil {
		return nil, uploadError(0, "", fmt.Errorf("%s: %w", form["command"], err))
	}
	if !resp.IsSuccess() {
		return nil, uploadError(resp.StatusCode(), resp.String(), fmt.Errorf("%s rejected", form["command"]))
	}

	var out transfer.TwitterMediaUploadResponse
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return nil, uploadError(resp.StatusCode(), "", fmt.Errorf("decode %s response: %w", form["command"], err))
		}
	}
	return &out, nil
}
