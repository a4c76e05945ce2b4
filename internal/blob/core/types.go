// Package core declares the storage-agnostic blob contract that the
// filesystem, S3, and in-memory backends implement. Higher layers import
// the internal/blob facade instead of this package.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrUnsupported marks an optional capability a driver does not provide,
// such as pre-signing on the in-memory backend.
var ErrUnsupported = errors.New("blob: operation not supported by driver")

// Driver names a blob backend.
type Driver string

const (
	// DriverFilesystem stores blobs under a local directory root.
	DriverFilesystem Driver = "fs"
	// DriverS3 targets S3 or any S3-compatible endpoint such as MinIO.
	DriverS3 Driver = "s3"
	// DriverMemory keeps blobs in process memory for tests.
	DriverMemory Driver = "memory"
)

// Store is the backend contract. Put is create-only: compliance artifacts
// are written exactly once and an existing key is an error.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

// PutOptions carries optional write attributes.
type PutOptions struct {
	// ContentType is the MIME type recorded with the blob.
	ContentType string
	// Metadata is a small flat set of user key-value pairs.
	Metadata map[string]string
}

// SignedURLOptions configures PresignURL.
type SignedURLOptions struct {
	// Method is the HTTP verb the URL authorizes. Defaults to GET.
	Method string
	// Expiry bounds the URL lifetime. Defaults to 15 minutes.
	Expiry time.Duration
	// Headers are extra signed headers, when the backend supports them.
	Headers map[string]string
}

// Info is the metadata view of a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}
