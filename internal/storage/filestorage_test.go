package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	dest := t.TempDir()
	s, err := NewFileStorage(dest)
	require.NoError(t, err)

	f, exists, err := s.Open(filepath.Join("sub", "a.txt"), 100)
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = f.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	fi, err := os.Stat(filepath.Join(dest, "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), fi.Size())

	// reopening keeps the contents and reports existence
	f, exists, err = s.Open(filepath.Join("sub", "a.txt"), 100)
	require.NoError(t, err)
	assert.True(t, exists)
	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf)
	require.NoError(t, f.Close())
}
