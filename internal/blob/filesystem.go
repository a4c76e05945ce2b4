package blob

import (
	"vialcore/internal/infra/blob/fs"
)

// NewFilesystem roots the filesystem backend at root. The return type is
// the interface so call sites never see the concrete store.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
