package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	body        []byte
	contentType string
	modified    time.Time
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	now     time.Time
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string]fakeObject{}, now: time.Now()}
}

func (b *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[aws.ToString(in.Key)] = fakeObject{body: data, contentType: aws.ToString(in.ContentType), modified: b.now}
	return &s3.PutObjectOutput{}, nil
}

func (b *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(obj.body)),
		ContentType: aws.String(obj.contentType),
	}, nil
}

func (b *fakeBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (b *fakeBucket) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, src, _ := strings.Cut(aws.ToString(in.CopySource), "/")
	obj, ok := b.objects[src]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	obj.modified = b.now
	b.objects[aws.ToString(in.Key)] = obj
	return &s3.CopyObjectOutput{}, nil
}

func (b *fakeBucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for key, obj := range b.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key), LastModified: aws.Time(obj.modified)})
		}
	}
	return out, nil
}

func setupR2Store(t *testing.T) (*R2Store, *fakeBucket) {
	t.Helper()
	bucket := newFakeBucket()
	store := newR2Store(bucket, "media", zerolog.Nop())
	store.tmpDir = t.TempDir()
	store.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return store, bucket
}

func TestR2StoreStageFetchRemove(t *testing.T) {
	store, bucket := setupR2Store(t)
	src := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video-bytes"), 0o644))

	ref, err := store.Stage(context.Background(), "job9", &models.MediaAsset{Path: src, OriginalName: "clip.mp4", MimeType: "video/mp4"})
	require.NoError(t, err)
	assert.Contains(t, bucket.objects, "staging/"+ref)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	asset, release, err := store.Fetch(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", asset.MimeType)
	assert.Equal(t, int64(len("video-bytes")), asset.SizeBytes)
	data, err := os.ReadFile(asset.Path)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))

	release()
	_, err = os.Stat(asset.Path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.Remove(context.Background(), ref))
	require.NoError(t, store.Remove(context.Background(), ref))

	_, _, err = store.Fetch(context.Background(), ref)
	assert.ErrorIs(t, err, apperrors.ErrMediaFileNotFound)
}

func TestR2StoreArchiveAndPrune(t *testing.T) {
	store, bucket := setupR2Store(t)
	bucket.objects["staging/job9_1_a.png"] = fakeObject{body: []byte("img"), modified: time.Now()}

	key, err := store.Archive(context.Background(), "job9_1_a.png")
	require.NoError(t, err)
	assert.Contains(t, bucket.objects, "failed/"+key)
	assert.NotContains(t, bucket.objects, "staging/job9_1_a.png")

	_, err = store.Archive(context.Background(), "job9_1_a.png")
	assert.ErrorIs(t, err, apperrors.ErrMediaFileNotFound)

	_, err = store.ArchiveRecord(context.Background(), "job9", []byte(`{}`))
	require.NoError(t, err)

	bucket.objects["failed/old.json"] = fakeObject{modified: time.Now().Add(-72 * time.Hour)}
	removed, err := store.Prune(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NotContains(t, bucket.objects, "failed/old.json")
	assert.Len(t, bucket.objects, 2)
}
