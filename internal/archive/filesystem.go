package archive

import (
	"stockcore/internal/infra/archive/fs"
)

// NewFilesystem constructs a filesystem-backed archive.Store rooted at the
// provided path. Returns the interface so call sites never depend on the
// concrete driver.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
