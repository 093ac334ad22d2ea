package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/feichai0017/document-analyzer/config"
	"github.com/feichai0017/document-analyzer/pkg/logger"
	"github.com/feichai0017/document-analyzer/pkg/storage/minio"
	"github.com/feichai0017/document-analyzer/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeS3    StorageType = config.StorageTypeS3
	StorageTypeMinio StorageType = config.StorageTypeMinio
)

// ErrNotFound is wrapped by Get when the key does not exist.
var ErrNotFound = fs.ErrNotExist

// Storage is the object store documents arrive in and results are written to.
type Storage interface {
	// Store writes reader under key and returns the key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get opens the object stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes objects under prefix last modified before threshold.
	CleanupBefore(ctx context.Context, prefix string, threshold time.Time) error
	// Bucket names the bucket backing the store.
	Bucket() string
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (Storage, error) {
	switch StorageType(cfg.Type) {
	case StorageTypeS3:
		s, err := s3.NewS3Storage(ctx, cfg.S3, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StorageTypeMinio:
		m, err := minio.NewMinioStorage(ctx, cfg.Minio, log)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

var (
	_ Storage = (*s3.S3Storage)(nil)
	_ Storage = (*minio.MinioStorage)(nil)
)
