package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/rs/zerolog"
)

const (
	stagingPrefix = "staging/"
	archivePrefix = "failed/"
)

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// R2Store keeps staged media in a Cloudflare R2 (S3 compatible) bucket.
// Fetch downloads the object to a temporary file.
type R2Store struct {
	client objectAPI
	bucket string
	tmpDir string
	now    func() time.Time
	log    zerolog.Logger
}

func NewR2Store(ctx context.Context, cfg config.R2, log zerolog.Logger) (*R2Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load r2 config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return newR2Store(client, cfg.BucketName, log), nil
}

func newR2Store(client objectAPI, bucket string, log zerolog.Logger) *R2Store {
	return &R2Store{
		client: client,
		bucket: bucket,
		tmpDir: os.TempDir(),
		now:    time.Now,
		log:    log.With().Str("component", "r2-storage").Logger(),
	}
}

func (s *R2Store) Stage(ctx context.Context, jobID string, asset *models.MediaAsset) (string, error) {
	file, err := os.Open(asset.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", apperrors.ErrMediaFileNotFound, asset.Path)
		}
		return "", err
	}
	defer file.Close()

	ref := stageKey(jobID, s.now(), asset)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(stagingPrefix + ref),
		Body:   file,
	}
	if asset.MimeType != "" {
		input.ContentType = aws.String(asset.MimeType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload staged media: %w", err)
	}

	file.Close()
	if err := os.Remove(asset.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("path", asset.Path).Msg("staged media uploaded but source not removed")
	}
	return ref, nil
}

func (s *R2Store) Fetch(ctx context.Context, ref string) (*models.MediaAsset, func(), error) {
	if err := validateRef(ref); err != nil {
		return nil, nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(stagingPrefix + ref),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, fmt.Errorf("%w: %s", apperrors.ErrMediaFileNotFound, ref)
		}
		return nil, nil, fmt.Errorf("download staged media: %w", err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp(s.tmpDir, "crosspost-*"+filepath.Ext(ref))
	if err != nil {
		return nil, nil, fmt.Errorf("error creating temporary file: %w", err)
	}
	size, err := io.Copy(tmp, out.Body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, nil, fmt.Errorf("error saving media to temporary file: %w", err)
	}

	asset := &models.MediaAsset{
		Path:         tmp.Name(),
		MimeType:     aws.ToString(out.ContentType),
		SizeBytes:    size,
		OriginalName: originalName(ref),
	}
	release := func() { os.Remove(tmp.Name()) }
	return asset, release, nil
}

func (s *R2Store) Remove(ctx context.Context, ref string) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(stagingPrefix + ref),
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *R2Store) Archive(ctx context.Context, ref string) (string, error) {
	if err := validateRef(ref); err != nil {
		return "", err
	}

	key := archiveKey(s.now(), ref)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + stagingPrefix + ref),
		Key:        aws.String(archivePrefix + key),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", apperrors.ErrMediaFileNotFound, ref)
		}
		return "", fmt.Errorf("archive media: %w", err)
	}

	if err := s.Remove(ctx, ref); err != nil {
		s.log.Warn().Err(err).Str("ref", ref).Msg("archived media but staged copy not removed")
	}
	return key, nil
}

func (s *R2Store) ArchiveRecord(ctx context.Context, jobID string, body []byte) (string, error) {
	key := archiveKey(s.now(), jobID+".json")
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(archivePrefix + key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("write archive record: %w", err)
	}
	return key, nil
}

func (s *R2Store) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(archivePrefix),
	})

	removed := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return removed, fmt.Errorf("list archive: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(olderThan) {
				continue
			}
			key := aws.ToString(obj.Key)
			if !strings.HasPrefix(key, archivePrefix) {
				continue
			}
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("failed to prune archive entry")
				continue
			}
			removed++
		}
	}
	return removed, nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
