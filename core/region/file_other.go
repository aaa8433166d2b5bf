//go:build !unix

package region

import (
	"errors"
	"os"
	"path/filepath"
)

// FileOptions configures a file-backed region mapping.
type FileOptions struct {
	Path   string
	Size   int
	Create bool
}

// DefaultRegionPath returns the default backing file path.
func DefaultRegionPath() string {
	return filepath.Join(os.TempDir(), "persistlog_region")
}

// OpenFile is unsupported without mmap; use NewSlice or Create.
func OpenFile(opts FileOptions) (*Region, error) {
	return nil, errors.New("region: file-backed regions require a unix mmap")
}
