package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/makeasinger/modelgen/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioRetry controls connection attempts while the MinIO server comes up
type MinioRetry struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// MinioClient implements StorageClient for a self-hosted MinIO server
type MinioClient struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioClient connects to MinIO and makes sure the bucket exists,
// retrying with exponential backoff.
func NewMinioClient(ctx context.Context, cfg *config.MinioConfig, retry MinioRetry) (*MinioClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty MinIO endpoint")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("empty MinIO bucket")
	}
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = time.Second
	}
	if retry.MaxInterval <= 0 {
		retry.MaxInterval = 30 * time.Second
	}

	var lastErr error
	interval := retry.InitialInterval

	for attempt := range retry.MaxRetries {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("context canceled before MinIO init: %w", ctx.Err())
		}

		mc, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			lastErr = fmt.Errorf("create MinIO client: %w", err)
		} else if err := ensureBucket(ctx, mc, cfg.Bucket); err != nil {
			lastErr = err
		} else {
			return &MinioClient{
				client:    mc,
				bucket:    cfg.Bucket,
				publicURL: strings.TrimRight(cfg.PublicURL, "/"),
			}, nil
		}

		if attempt < retry.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("context canceled while waiting to retry MinIO: %w", ctx.Err())
			case <-time.After(interval):
				interval *= 2
				if interval > retry.MaxInterval {
					interval = retry.MaxInterval
				}
			}
		}
	}

	return nil, fmt.Errorf("init MinIO failed after %d attempts: %w", retry.MaxRetries, lastErr)
}

func ensureBucket(ctx context.Context, mc *minio.Client, bucket string) error {
	exists, err := mc.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (c *MinioClient) Name() string { return "minio" }

// Upload stores an object and returns its public URL. size may be -1 when unknown.
func (c *MinioClient) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	_, err := c.client.PutObject(ctx, c.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to MinIO: %w", err)
	}
	return c.GetPublicURL(key), nil
}

// Delete removes an object
func (c *MinioClient) Delete(ctx context.Context, key string) error {
	if err := c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from MinIO: %w", err)
	}
	return nil
}

// GetSignedURL generates a presigned URL for temporary access
func (c *MinioClient) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := c.client.PresignedGetObject(ctx, c.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

// GetPublicURL returns the public URL for a key, or "" without one
func (c *MinioClient) GetPublicURL(key string) string {
	if c.publicURL == "" {
		return ""
	}
	return c.publicURL + "/" + c.bucket + "/" + key
}
