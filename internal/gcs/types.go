package gcs

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// UploadFile uploads a local file to a bucket under the given object name.
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error

	// WriteObject writes data to a bucket under the given object name.
	WriteObject(ctx context.Context, bucketName, objectName, contentType string, data []byte) error

	// DeleteObject removes an object. A missing object is not an error.
	DeleteObject(ctx context.Context, bucketName, objectName string) error

	// ListCSVObjects returns the sorted names of .csv objects under prefix.
	ListCSVObjects(ctx context.Context, bucketName, prefix string) ([]string, error)
}

// URI builds a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + strings.TrimPrefix(object, "/")
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}

	return parts[0], parts[1], nil
}

// SourcePattern is the wildcard URI matching every CSV under prefix,
// e.g. gs://bucket/entradas/*.csv.
func SourcePattern(bucket, prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return URI(bucket, "*.csv")
	}
	return URI(bucket, prefix+"/*.csv")
}

// ObjectName places a local file name under prefix.
func ObjectName(prefix, filePath string) string {
	prefix = strings.Trim(prefix, "/")
	base := path.Base(strings.ReplaceAll(filePath, "\\", "/"))
	if prefix == "" {
		return base
	}
	return prefix + "/" + base
}
