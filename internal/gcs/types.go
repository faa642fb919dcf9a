package gcs

import (
	"context"
	"io"
)

// ObjectStore provides the cloud storage operations the service needs.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// Upload writes the contents of r to bucket/object.
	Upload(ctx context.Context, bucketName, objectName string, r io.Reader) error

	// Fetch downloads the object bytes addressed by a gs:// URI.
	Fetch(ctx context.Context, gcsURI string) ([]byte, error)
}
