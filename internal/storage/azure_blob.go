package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/momentsapp/moments/internal/logger"
)

// AzureBlobConfig holds configuration for Azure Blob Storage
type AzureBlobConfig struct {
	ConnectionString string
	Container        string
	PublicURL        string
}

// AzureBlobStorage implements ObjectStorage for Azure Blob Storage
type AzureBlobStorage struct {
	client    *azblob.Client
	container string
	publicURL string
}

// NewAzureBlobStorage creates the client and makes sure the container exists.
func NewAzureBlobStorage(ctx context.Context, cfg *AzureBlobConfig) (*AzureBlobStorage, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("connection string required for azure storage")
	}

	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	_, err = client.CreateContainer(ctx, cfg.Container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	publicURL := strings.TrimSuffix(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = strings.TrimSuffix(client.URL(), "/") + "/" + cfg.Container
	}

	logger.With(logger.Fields{"container": cfg.Container}).Info(ctx, "Azure Blob Storage initialized")

	return &AzureBlobStorage{
		client:    client,
		container: cfg.Container,
		publicURL: publicURL,
	}, nil
}

// Upload uploads an object to the container
func (s *AzureBlobStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.UploadStream(ctx, s.container, key, reader, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob: %w", err)
	}
	return nil
}

// Download downloads an object from the container
func (s *AzureBlobStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	return resp.Body, nil
}

// GetURL returns the public URL of a blob
func (s *AzureBlobStorage) GetURL(key string) string {
	return fmt.Sprintf("%s/%s", s.publicURL, key)
}

// Delete deletes a blob. Missing blobs are ignored.
func (s *AzureBlobStorage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			logger.With(logger.Fields{"blob": key}).Debug(ctx, "Blob already deleted or not found")
			return nil
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Exists checks if a blob exists
func (s *AzureBlobStorage) Exists(ctx context.Context, key string) (bool, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(key)
	if _, err := blobClient.GetProperties(ctx, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check blob existence: %w", err)
	}
	return true, nil
}
