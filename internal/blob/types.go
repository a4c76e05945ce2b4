// Package blob re-exports core blob abstractions for stable internal imports.
package blob

import (
	"vialcore/internal/blob/core"
)

type (
	// Driver names the backend behind a Store.
	Driver = core.Driver
	// PutOptions carries optional write attributes.
	PutOptions = core.PutOptions
	// SignedURLOptions configures PresignURL.
	SignedURLOptions = core.SignedURLOptions
	// Info is the metadata view of a stored blob.
	Info = core.Info
	// Store is the backend contract.
	Store = core.Store
)

const (
	// DriverFilesystem stores blobs under a directory root.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 targets S3-compatible object storage.
	DriverS3 = core.DriverS3
	// DriverMemory keeps blobs in process memory.
	DriverMemory = core.DriverMemory
)

// ErrUnsupported marks a capability the active driver lacks.
var ErrUnsupported = core.ErrUnsupported
