package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrBlobNotFound reports that the object is already absent.
	ErrBlobNotFound = errors.New("blob not found")
)

// BlobStore holds the file bytes behind documents.
type BlobStore interface {
	// UploadFile stores the reader's bytes under key.
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// DeleteByPath removes the object at path. It returns ErrBlobNotFound
	// when nothing is stored there.
	DeleteByPath(ctx context.Context, path string) error
	// PresignedURL returns a time-limited download URL for key.
	PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}
