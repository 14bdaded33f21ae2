// Package blob stores compressed images and result tables in object storage
// and resolves them to public URLs.
package blob

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"image_batch/internal/models"
)

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (publicURL string, err error)
}

var (
	_ Store = (*S3Store)(nil)
	_ Store = (*MinioStore)(nil)
)

func New(ctx context.Context, cfg models.BlobConfig, log *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Store(ctx, cfg, log)
	case "minio":
		return NewMinioStore(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
