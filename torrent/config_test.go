package torrent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "request-queue-length: 7\nrequest-timeout: 5s\nport: 7000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, c.RequestQueueLength)
	assert.Equal(t, 5*time.Second, c.RequestTimeout)
	assert.Equal(t, uint16(7000), c.Port)

	// unset keys keep their defaults
	assert.Equal(t, DefaultConfig.ParallelPieceDownloads, c.ParallelPieceDownloads)
	assert.Equal(t, DefaultConfig.MaxPeerDial, c.MaxPeerDial)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
