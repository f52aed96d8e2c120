// Package storage publishes training artifacts to a bucket on the local
// filesystem or in S3, and fetches them back for prediction.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Brownie44l1/flower-cnn/internal/config"
)

type Object struct {
	Name string
	Size int64
}

type Provider interface {
	CreateBucket(ctx context.Context, bucket string) error

	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)
}

func NewProvider(cfg config.Storage) (Provider, error) {
	switch cfg.Provider {
	case "local":
		return NewLocalProvider(cfg.LocalRoot), nil
	case "s3":
		return NewS3Provider(&S3ProviderConfig{
			S3EndpointURL:     cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			S3Region:          cfg.S3Region,
		})
	default:
		return nil, fmt.Errorf("unknown storage provider '%s'", cfg.Provider)
	}
}
