package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// localfs returns the same object key.
	// gdrive returns the Drive fileId, which later Get/Delete calls need.
	ObjectKey string
	Size      int64
}

// StorageProvider is an object store used for asset:// sources and for
// publishing rendered videos. Implementations: localfs, gdrive.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error
}
