// Package storage keeps copies of remote profile pictures in a gocloud.dev blob bucket.
package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"leapcode/config"
	"leapcode/internal/domain/service"
	"leapcode/internal/errors"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/memblob"  // mem:// buckets
)

const avatarPrefix = "profile_images/"

var extensionsByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// BlobAvatarCache downloads profile pictures and writes them to a bucket.
type BlobAvatarCache struct {
	bucket   *blob.Bucket
	client   *http.Client
	maxBytes int64
}

// NewBlobAvatarCache wraps an already opened bucket.
func NewBlobAvatarCache(bucket *blob.Bucket, client *http.Client, maxBytes int64) *BlobAvatarCache {
	return &BlobAvatarCache{
		bucket:   bucket,
		client:   client,
		maxBytes: maxBytes,
	}
}

// Params defines the required parameters
type Params struct {
	fx.In
	fx.Lifecycle

	Config *config.Config
	Logger *slog.Logger
}

// NewAvatarCache opens the configured bucket, or returns a disabled cache.
func NewAvatarCache(params Params) (service.AvatarCache, error) {
	cfg := params.Config.Avatar
	if cfg == nil || !cfg.Enabled {
		return disabledCache{}, nil
	}

	bucket, err := blob.OpenBucket(context.Background(), cfg.BucketURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open avatar bucket %s", cfg.BucketURL)
	}

	params.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return bucket.Close()
		},
	})

	params.Logger.Info("Avatar cache enabled", slog.String("bucket", cfg.BucketURL))

	return NewBlobAvatarCache(bucket, &http.Client{Timeout: cfg.Timeout}, cfg.MaxBytes), nil
}

// Cache downloads sourceURL and stores it under profile_images/<userID><ext>.
func (c *BlobAvatarCache) Cache(ctx context.Context, userID uuid.UUID, sourceURL string) (string, error) {
	if sourceURL == "" {
		return "", errors.New("no image url provided")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create avatar request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to download avatar")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("avatar download failed with status %d", resp.StatusCode)
	}

	contentType, ext := imageType(resp.Header.Get("Content-Type"))
	if ext == "" {
		return "", errors.Errorf("unsupported avatar content type %q", resp.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return "", errors.Wrap(err, "failed to read avatar body")
	}
	if int64(len(data)) > c.maxBytes {
		return "", errors.Errorf("avatar exceeds %d bytes", c.maxBytes)
	}

	key := avatarPrefix + userID.String() + ext
	w, err := c.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return "", errors.Wrap(err, "failed to open avatar writer")
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()

		return "", errors.Wrap(err, "failed to write avatar")
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, "failed to store avatar")
	}

	return key, nil
}

func imageType(header string) (contentType, ext string) {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", ""
	}
	mediaType = strings.ToLower(mediaType)

	return mediaType, extensionsByType[mediaType]
}

type disabledCache struct{}

func (disabledCache) Cache(context.Context, uuid.UUID, string) (string, error) {
	return "", service.ErrAvatarCacheDisabled
}
