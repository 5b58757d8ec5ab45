package infodownloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testPeer struct {
	requested []uint32
}

func (p *testPeer) MetadataSize() uint32 { return 3*16*1024 + 42 }
func (p *testPeer) RequestMetadataPiece(index uint32) {
	p.requested = append(p.requested, index)
}

func TestInfoDownloader(t *testing.T) {
	p := &testPeer{}
	d := New(p)
	assert.Equal(t, 4, len(d.blocks))
	assert.False(t, d.Done())

	d.RequestBlocks(2)
	assert.Equal(t, 2, d.pending)
	assert.Equal(t, []uint32{0, 1}, p.requested)

	// pipeline already full, no new requests
	d.RequestBlocks(2)
	assert.Equal(t, []uint32{0, 1}, p.requested)

	assert.NoError(t, d.GotBlock(0, make([]byte, blockSize)))
	d.RequestBlocks(2)
	assert.Equal(t, []uint32{0, 1, 2}, p.requested)

	// out-of-order and bad blocks are rejected
	assert.Error(t, d.GotBlock(3, make([]byte, 42)))
	assert.Error(t, d.GotBlock(0, make([]byte, blockSize)))
	assert.Error(t, d.GotBlock(1, make([]byte, 10)))

	assert.NoError(t, d.GotBlock(1, make([]byte, blockSize)))
	assert.NoError(t, d.GotBlock(2, make([]byte, blockSize)))
	d.RequestBlocks(2)
	assert.Equal(t, []uint32{0, 1, 2, 3}, p.requested)
	assert.False(t, d.Done())

	assert.NoError(t, d.GotBlock(3, make([]byte, 42)))
	assert.True(t, d.Done())
}
