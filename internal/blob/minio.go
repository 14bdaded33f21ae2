package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"image_batch/internal/models"
)

type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
	log     *zap.Logger
}

func NewMinioStore(ctx context.Context, cfg models.BlobConfig, log *zap.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, err
		}
		log.Info("Bucket created", zap.String("bucket", cfg.Bucket))
	}

	return &MinioStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: minioBaseURL(cfg),
		log:     log,
	}, nil
}

func minioBaseURL(cfg models.BlobConfig) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
}

func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		s.log.Error("Failed to upload object to MinIO",
			zap.String("key", key),
			zap.Error(err))
		return "", err
	}
	return s.baseURL + "/" + key, nil
}
