package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileRecursive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "config.yaml")
	require.NoError(t, WriteFileRecursive(path, []byte("first"), 0600))
	require.NoError(t, WriteFileRecursive(path, []byte("2nd"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2nd", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dir, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dir.Mode().Perm())
}
