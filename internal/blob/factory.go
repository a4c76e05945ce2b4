package blob

import (
	"context"
	"fmt"
	"os"
)

// Open picks a backend from the environment.
//
//	VIALCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	VIALCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 variables are listed on the s3 backend's OpenFromEnv)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("VIALCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("VIALCORE_BLOB_FS_ROOT")
		return NewFilesystem(root)
	case DriverS3:
		return OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
