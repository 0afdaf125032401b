package upload

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinioConfig addresses an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioStorage stores uploads in an S3-compatible bucket.
type MinioStorage struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinioStorage connects to the endpoint and creates the bucket if missing.
func NewMinioStorage(ctx context.Context, cfg MinioConfig, logger *zerolog.Logger) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	s := &MinioStorage{client: client, bucket: cfg.Bucket, region: cfg.Region}
	created, err := s.ensureBucket(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}
	if created && logger != nil {
		logger.Info().Str("bucket", cfg.Bucket).Msg("created upload bucket")
	}
	return s, nil
}

func (s *MinioStorage) ensureBucket(ctx context.Context) (bool, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return false, err
	}
	return true, nil
}

// Put uploads r under key.
func (s *MinioStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// URL returns a pre-signed GET URL for key.
func (s *MinioStorage) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

var _ ObjectStorage = (*MinioStorage)(nil)
