package blob

import (
	"context"

	infraS3 "vialcore/internal/infra/blob/s3"
)

// S3Config is the S3 backend's construction parameters.
type S3Config = infraS3.Config

// NewS3 builds the S3 backend from an explicit Config.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// OpenFromEnv builds the S3 backend from VIALCORE_BLOB_S3_* variables.
func OpenFromEnv(ctx context.Context) (Store, error) {
	return infraS3.OpenFromEnv(ctx)
}

// NewMockS3ForTests returns the transport-mocked S3 store for tests in
// other packages.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
