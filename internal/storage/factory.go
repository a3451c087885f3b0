package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/momentsapp/moments/internal/config"
)

// NewStorage creates an ObjectStorage instance based on the configuration.
// Parameters:
//   - ctx: context used for startup calls such as bucket or container creation.
//   - cfg: storage configuration.
//
// Returns:
//   - ObjectStorage: initialized storage client implementation.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(ctx context.Context, cfg *config.StorageConfig) (ObjectStorage, error) {
	switch StorageType(cfg.Type) {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.Local.Path, cfg.Local.PublicURL)
	case StorageTypeAzure:
		return NewAzureBlobStorage(ctx, &AzureBlobConfig{
			ConnectionString: cfg.Azure.ConnectionString,
			Container:        cfg.Azure.Container,
			PublicURL:        cfg.Azure.PublicURL,
		})
	case StorageTypeS3, StorageTypeR2, StorageTypeS3Compatible:
		s3cfg := &S3Config{
			Type:      StorageType(cfg.Type),
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			PublicURL: cfg.S3.PublicURL,
		}
		if s3cfg.Endpoint != "" && s3cfg.Type == StorageTypeS3Compatible {
			s3cfg.Type = detectStorageType(s3cfg.Endpoint)
		}
		s, err := NewS3Storage(s3cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
