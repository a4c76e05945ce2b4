package blob

import (
	"context"
	"testing"
)

func TestOpenSelectsMemoryDriver(t *testing.T) {
	t.Setenv("VIALCORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("driver = %s, want %s", store.Driver(), DriverMemory)
	}
}

func TestOpenSelectsFilesystemDriver(t *testing.T) {
	t.Setenv("VIALCORE_BLOB_DRIVER", "fs")
	t.Setenv("VIALCORE_BLOB_FS_ROOT", t.TempDir())
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("driver = %s, want %s", store.Driver(), DriverFilesystem)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Setenv("VIALCORE_BLOB_DRIVER", "tape")
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
