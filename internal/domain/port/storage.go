package port

import (
	"context"
	"time"
)

type BlobStore interface {
	Upload(ctx context.Context, bucket, localPath, key, contentType string) (int64, error)
	Download(ctx context.Context, bucket, key, localPath string) error
	Delete(ctx context.Context, bucket, key string) error
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
