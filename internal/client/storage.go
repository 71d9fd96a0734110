package client

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/makeasinger/modelgen/internal/config"
)

// StorageClient defines the interface for object storage operations
type StorageClient interface {
	Name() string
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	GetPublicURL(key string) string
}

// NewStorage builds the archive store selected by cfg.Driver.
// It returns ErrNotConfigured when the driver has no credentials.
func NewStorage(ctx context.Context, cfg config.StorageConfig) (StorageClient, error) {
	if !cfg.StorageConfigured() {
		return nil, ErrNotConfigured
	}
	switch cfg.Driver {
	case "minio":
		return NewMinioClient(ctx, &cfg.Minio, MinioRetry{})
	case "r2":
		return NewR2Client(ctx, &cfg.R2)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// ModelContentType returns the MIME type for a model file extension
func ModelContentType(ext string) string {
	if ext == ".gltf" {
		return "model/gltf+json"
	}
	return "model/gltf-binary"
}
