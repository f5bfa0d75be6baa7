package storage

import (
	"fmt"
	"strings"
	"time"
)

// Config selects and configures the blob backend.
type Config struct {
	Backend string // minio | s3 | memory
	MinIO   MinIOConfig
	S3      S3Config
}

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// S3Config holds configuration for S3 storage
type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string // Optional: for S3-compatible services
}

// PresignExpiry is how long content URLs handed to clients stay valid.
const PresignExpiry = 7 * 24 * time.Hour

// New builds the configured backend.
func New(cfg Config) (BlobStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "minio":
		return NewMinIOStorage(&cfg.MinIO)
	case "s3":
		return NewS3Storage(cfg.S3)
	}
	return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
}
