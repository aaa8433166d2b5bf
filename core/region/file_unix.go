//go:build unix

package region

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// FileOptions configures a file-backed region mapping.
type FileOptions struct {
	Path   string
	Size   int
	Create bool
}

// DefaultRegionPath returns the default backing file path, preferring
// tmpfs so the bytes behave like RAM.
func DefaultRegionPath() string {
	if _, err := os.Stat("/dev/shm"); err == nil {
		return "/dev/shm/persistlog_region"
	}
	return filepath.Join(os.TempDir(), "persistlog_region")
}

// OpenFile maps a file as a region. The file contents survive process
// restarts, which stands in for reset-surviving RAM on hosts: reopening
// the same file after a crash recovers whatever the previous run
// committed.
func OpenFile(opts FileOptions) (*Region, error) {
	if opts.Path == "" {
		return nil, errors.New("region: backing file path required")
	}

	path := filepath.Clean(opts.Path)
	flags := os.O_RDWR
	if opts.Create {
		flags |= os.O_CREATE
	}

	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open region file: %w", err)
	}

	if opts.Create && opts.Size > 0 {
		info, err := file.Stat()
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("stat region file: %w", err)
		}
		if info.Size() < int64(opts.Size) {
			if err := file.Truncate(int64(opts.Size)); err != nil {
				_ = file.Close()
				return nil, fmt.Errorf("truncate region file: %w", err)
			}
		}
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat region file: %w", err)
	}
	size := int(info.Size())
	if size < MinRegionSize {
		_ = file.Close()
		return nil, ErrTooSmall
	}
	if size > MaxPayload {
		_ = file.Close()
		return nil, ErrTooLarge
	}
	if size%WordSize != 0 {
		_ = file.Close()
		return nil, ErrBadSize
	}

	data, err := syscall.Mmap(int(file.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("mmap region file: %w", err)
	}

	return &Region{
		data: data,
		close: func() error {
			unmapErr := syscall.Munmap(data)
			closeErr := file.Close()
			if unmapErr != nil {
				return fmt.Errorf("unmap region file: %w", unmapErr)
			}
			return closeErr
		},
	}, nil
}
