package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

const uploadTimeout = 2 * time.Minute

// UploadFileWithClient uploads a local file to a GCS bucket under the given object name.
func UploadFileWithClient(ctx context.Context, client *storage.Client, bucketName, objectName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentTypeFor(filePath)

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}

	return nil
}

// WriteObjectWithClient writes data to gs://bucketName/objectName, replacing any existing object.
func WriteObjectWithClient(ctx context.Context, client *storage.Client, bucketName, objectName, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("writeObject: writing %s/%s: %w", bucketName, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("writeObject: finalize %s/%s: %w", bucketName, objectName, err)
	}
	return nil
}

// DeleteObjectWithClient removes an object. A missing object is not an error.
func DeleteObjectWithClient(ctx context.Context, client *storage.Client, bucketName, objectName string) error {
	err := client.Bucket(bucketName).Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("deleteObject: %s/%s: %w", bucketName, objectName, err)
	}
	return nil
}

// ListCSVObjectsWithClient returns the names of the .csv objects under prefix, sorted.
func ListCSVObjectsWithClient(ctx context.Context, client *storage.Client, bucketName, prefix string) ([]string, error) {
	it := client.Bucket(bucketName).Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listObjects: %s/%s: %w", bucketName, prefix, err)
		}
		if strings.EqualFold(path.Ext(attrs.Name), ".csv") {
			names = append(names, attrs.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func contentTypeFor(filePath string) string {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".csv":
		return "text/csv"
	case ".json", ".ndjson":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
