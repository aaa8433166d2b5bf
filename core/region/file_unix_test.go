//go:build unix

package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFile_CreateAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	r, err := OpenFile(FileOptions{Path: path, Size: 4096, Create: true})
	require.NoError(t, err)
	copy(r.Bytes(), "surviving bytes")
	require.NoError(t, r.Close())

	// Reopen: the previous mapping's bytes are still there, which is the
	// property the ring's reset recovery builds on.
	r, err = OpenFile(FileOptions{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 4096, r.Size())
	assert.Equal(t, []byte("surviving bytes"), r.Bytes()[:15])
	require.NoError(t, r.Close())
}

func TestOpenFile_MissingPath(t *testing.T) {
	_, err := OpenFile(FileOptions{})
	assert.Error(t, err)
}

func TestOpenFile_MissingFileWithoutCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent")
	_, err := OpenFile(FileOptions{Path: path})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenFile_TooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny")
	require.NoError(t, os.WriteFile(path, make([]byte, 16), 0o600))
	_, err := OpenFile(FileOptions{Path: path})
	assert.ErrorIs(t, err, ErrTooSmall)
}
