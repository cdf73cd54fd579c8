// Package minio uploads product rasters to S3-compatible object storage.
package minio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/couchcryptid/storm-data-maxprecip/internal/config"
)

const tiffContentType = "image/tiff"

type objectClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader copies product files into one bucket, creating it on first use.
// It implements pipeline.Uploader.
type Uploader struct {
	client objectClient
	bucket string
	logger *slog.Logger

	mu          sync.Mutex
	bucketReady bool
}

// NewUploader creates an Uploader for the configured MinIO endpoint.
func NewUploader(cfg *config.Config, logger *slog.Logger) (*Uploader, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newUploader(client, cfg.MinioBucket, logger), nil
}

func newUploader(client objectClient, bucket string, logger *slog.Logger) *Uploader {
	return &Uploader{client: client, bucket: bucket, logger: logger}
}

// Upload stores the file at path under key.
func (u *Uploader) Upload(ctx context.Context, key, path string) error {
	if err := u.ensureBucket(ctx); err != nil {
		return err
	}
	info, err := u.client.FPutObject(ctx, u.bucket, key, path, minio.PutObjectOptions{ContentType: tiffContentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	u.logger.Debug("product uploaded", "bucket", u.bucket, "key", key, "size", info.Size)
	return nil
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.bucketReady {
		return nil
	}
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", u.bucket, err)
		}
		u.logger.Info("created bucket", "bucket", u.bucket)
	}
	u.bucketReady = true
	return nil
}
