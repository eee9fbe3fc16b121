package objectstore

import (
	"context"
	"io"
	"time"
)

// Store abstracts read access to S3-compatible object storage. Dataset
// providers stream curated files through it; readiness checks use Stat.
type Store interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
}

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}
