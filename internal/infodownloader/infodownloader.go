// Package infodownloader accumulates the pieces of torrent metadata
// downloaded with the metadata extension.
package infodownloader

import "fmt"

const blockSize = 16 * 1024

// InfoDownloader downloads all pieces of the metadata from a single peer.
type InfoDownloader struct {
	Peer  Peer
	Bytes []byte

	blocks    []block
	pending   int // in-flight requests
	nextBlock uint32
}

type block struct {
	size      uint32
	requested bool
	done      bool
}

// Peer is the sink for metadata piece requests.
type Peer interface {
	MetadataSize() uint32
	RequestMetadataPiece(index uint32)
}

// New returns a new InfoDownloader sized from the peer's advertised
// metadata size.
func New(pe Peer) *InfoDownloader {
	d := &InfoDownloader{
		Peer:  pe,
		Bytes: make([]byte, pe.MetadataSize()),
	}
	d.blocks = d.createBlocks()
	return d
}

func (d *InfoDownloader) createBlocks() []block {
	numBlocks := d.Peer.MetadataSize() / blockSize
	mod := d.Peer.MetadataSize() % blockSize
	if mod != 0 {
		numBlocks++
	}
	blocks := make([]block, numBlocks)
	for i := range blocks {
		blocks[i].size = blockSize
	}
	if mod != 0 && len(blocks) > 0 {
		blocks[len(blocks)-1].size = mod
	}
	return blocks
}

// GotBlock must be called when a metadata piece is received from the peer.
func (d *InfoDownloader) GotBlock(index uint32, data []byte) error {
	if index >= uint32(len(d.blocks)) {
		return fmt.Errorf("peer sent invalid metadata piece index: %d", index)
	}
	b := &d.blocks[index]
	if !b.requested {
		return fmt.Errorf("peer sent unrequested metadata piece: %d", index)
	}
	if b.done {
		return fmt.Errorf("peer sent duplicate metadata piece: %d", index)
	}
	if uint32(len(data)) != b.size {
		return fmt.Errorf("peer sent invalid metadata piece size: %d", len(data))
	}
	b.done = true
	d.pending--
	begin := index * blockSize
	copy(d.Bytes[begin:begin+b.size], data)
	return nil
}

// RequestBlocks requests remaining metadata pieces up to queueLength
// outstanding requests.
func (d *InfoDownloader) RequestBlocks(queueLength int) {
	for ; d.nextBlock < uint32(len(d.blocks)) && d.pending < queueLength; d.nextBlock++ {
		d.Peer.RequestMetadataPiece(d.nextBlock)
		d.blocks[d.nextBlock].requested = true
		d.pending++
	}
}

// Done returns true when every metadata piece has been received.
func (d *InfoDownloader) Done() bool {
	return d.nextBlock == uint32(len(d.blocks)) && d.pending == 0
}
