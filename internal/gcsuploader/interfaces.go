package gcsuploader

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/fraud-features/internal/gcs"
)

// Re-export interface from shared package
type StorageService = gcs.StorageService

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage. It holds one shared client.
type GCSStorageService struct {
	client *storage.Client
}

// NewGCSStorageService creates a GCSStorageService using Application Default Credentials.
func NewGCSStorageService(ctx context.Context) (*GCSStorageService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorageService: creating client: %w", err)
	}
	return &GCSStorageService{client: client}, nil
}

// Close closes the storage client.
func (s *GCSStorageService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// UploadFile delegates to UploadFileWithClient with the shared client.
func (s *GCSStorageService) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	return UploadFileWithClient(ctx, s.client, bucketName, objectName, filePath)
}

// WriteObject delegates to WriteObjectWithClient with the shared client.
func (s *GCSStorageService) WriteObject(ctx context.Context, bucketName, objectName, contentType string, data []byte) error {
	return WriteObjectWithClient(ctx, s.client, bucketName, objectName, contentType, data)
}

// DeleteObject delegates to DeleteObjectWithClient with the shared client.
func (s *GCSStorageService) DeleteObject(ctx context.Context, bucketName, objectName string) error {
	return DeleteObjectWithClient(ctx, s.client, bucketName, objectName)
}

// ListCSVObjects delegates to ListCSVObjectsWithClient with the shared client.
func (s *GCSStorageService) ListCSVObjects(ctx context.Context, bucketName, prefix string) ([]string, error) {
	return ListCSVObjectsWithClient(ctx, s.client, bucketName, prefix)
}

var _ StorageService = (*GCSStorageService)(nil)
