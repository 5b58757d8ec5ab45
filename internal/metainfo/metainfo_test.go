package metainfo

import (
	"bytes"
	"crypto/sha1" // nolint: gosec
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"
)

func encodeTorrent(t *testing.T, announce string, info interface{}) ([]byte, []byte) {
	t.Helper()
	rawInfo, err := bencode.EncodeBytes(info)
	require.NoError(t, err)
	raw, err := bencode.EncodeBytes(map[string]interface{}{
		"announce": announce,
		"info":     bencode.RawMessage(rawInfo),
	})
	require.NoError(t, err)
	return raw, rawInfo
}

func TestSingleFile(t *testing.T) {
	piece1 := bytes.Repeat([]byte{1}, 20)
	piece2 := bytes.Repeat([]byte{2}, 20)
	raw, rawInfo := encodeTorrent(t, "http://tracker.example.com/announce", map[string]interface{}{
		"name":         "sample.txt",
		"length":       40000,
		"piece length": 32768,
		"pieces":       append(append([]byte{}, piece1...), piece2...),
	})

	mi, err := New(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://tracker.example.com/announce"}, mi.Trackers)

	i := mi.Info
	assert.Equal(t, "sample.txt", i.Name)
	assert.Equal(t, int64(40000), i.TotalLength)
	assert.Equal(t, uint32(2), i.NumPieces)
	assert.False(t, i.MultiFile())
	assert.Equal(t, piece1, i.PieceHash(0))
	assert.Equal(t, piece2, i.PieceHash(1))
	assert.Equal(t, sha1.Sum(rawInfo), i.Hash) // nolint: gosec
	assert.Equal(t, []FileDict{{40000, []string{"sample.txt"}}}, i.GetFiles())
}

func TestMultiFile(t *testing.T) {
	raw, _ := encodeTorrent(t, "http://tracker.example.com/announce", map[string]interface{}{
		"name":         "dir",
		"piece length": 32768,
		"pieces":       bytes.Repeat([]byte{7}, 20),
		"files": []map[string]interface{}{
			{"length": 10, "path": []string{"a.txt"}},
			{"length": 20, "path": []string{"sub", "b.txt"}},
		},
	})

	mi, err := New(bytes.NewReader(raw))
	require.NoError(t, err)
	i := mi.Info
	assert.True(t, i.MultiFile())
	assert.Equal(t, int64(30), i.TotalLength)
	require.Len(t, i.GetFiles(), 2)
	assert.Equal(t, []string{"sub", "b.txt"}, i.GetFiles()[1].Path)
}

func TestInvalid(t *testing.T) {
	// no info dict
	raw, err := bencode.EncodeBytes(map[string]interface{}{"announce": "http://t"})
	require.NoError(t, err)
	_, err = New(bytes.NewReader(raw))
	assert.Error(t, err)

	// pieces not a multiple of 20
	raw, _ = encodeTorrent(t, "http://t", map[string]interface{}{
		"name":         "x",
		"length":       10,
		"piece length": 16384,
		"pieces":       []byte{1, 2, 3},
	})
	_, err = New(bytes.NewReader(raw))
	assert.Error(t, err)

	// ".." in path
	raw, _ = encodeTorrent(t, "http://t", map[string]interface{}{
		"name":         "x",
		"piece length": 16384,
		"pieces":       bytes.Repeat([]byte{7}, 20),
		"files": []map[string]interface{}{
			{"length": 10, "path": []string{"..", "evil"}},
		},
	})
	_, err = New(bytes.NewReader(raw))
	assert.Error(t, err)
}
