// Package piecemanager schedules block requests and assembles downloaded
// pieces. It owns the per-block download state and the bounded queue of
// pieces being downloaded in parallel.
package piecemanager

import (
	"bytes"
	"crypto/sha1" // nolint: gosec
	"errors"
	"fmt"
	"time"

	"github.com/sleetbt/sleet/internal/bitfield"
)

// BlockSize is the fixed transfer unit requested from peers.
const BlockSize = 16 * 1024

// BlockState is the download state of a single block.
type BlockState uint8

// Block states. A block moves None to InProcess to Done, and only moves
// backwards when its piece is reset after a hash mismatch, a request
// timeout or a peer disconnect.
const (
	BlockNone BlockState = iota
	BlockInProcess
	BlockDone
)

var (
	// ErrHashMismatch is returned when a completed piece does not hash to
	// its expected value. All blocks of the piece are reset.
	ErrHashMismatch = errors.New("piece hash mismatch")
	// ErrBlockDuplicate is returned when a peer sends a block that is
	// already downloaded.
	ErrBlockDuplicate = errors.New("duplicate block")
	// ErrBlockNotRequested is returned when a peer sends a block that was
	// not requested from it.
	ErrBlockNotRequested = errors.New("block not requested from peer")
)

// Request identifies a block to ask from a peer.
type Request struct {
	Index  uint32
	Begin  uint32
	Length uint32
}

// Verified holds the data of a completed, hash-checked piece.
type Verified struct {
	Index uint32
	Data  []byte
}

// Picker is the piece selection strategy consulted when refilling the
// download queue.
type Picker interface {
	PickAdmissible(n int, queued func(index uint32) bool) []uint32
	PeerHas(peerID string, index uint32) bool
	HandleVerified(index uint32)
}

type block struct {
	begin  uint32
	length uint32
	state  BlockState
	owner  string
	since  time.Time
}

type piece struct {
	index  uint32
	length uint32
	blocks []block
	buffer []byte
	// remaining counts blocks not yet in Done state.
	remaining int
}

// Params configures a Manager.
type Params struct {
	NumPieces   uint32
	PieceLength uint32
	TotalLength int64
	// Hashes is the concatenation of the 20-byte SHA-1 hashes of all
	// pieces, in index order.
	Hashes []byte
	Picker Picker
	// Capacity bounds the number of pieces downloaded in parallel.
	Capacity int
	// RequestTimeout resets a pending block request so another peer can
	// pick it up.
	RequestTimeout time.Duration
}

// Manager tracks block states for the pieces in the download queue.
type Manager struct {
	numPieces      uint32
	pieceLength    uint32
	totalLength    int64
	hashes         []byte
	picker         Picker
	capacity       int
	requestTimeout time.Duration

	// queue holds the pieces being downloaded, in insertion order.
	queue    []*piece
	queued   map[uint32]*piece
	verified *bitfield.Bitfield
}

// New returns a Manager with an empty download queue.
func New(p Params) *Manager {
	return &Manager{
		numPieces:      p.NumPieces,
		pieceLength:    p.PieceLength,
		totalLength:    p.TotalLength,
		hashes:         p.Hashes,
		picker:         p.Picker,
		capacity:       p.Capacity,
		requestTimeout: p.RequestTimeout,
		queued:         make(map[uint32]*piece),
		verified:       bitfield.New(p.NumPieces),
	}
}

// VerifiedBitfield returns the set of pieces downloaded and hash-checked.
func (m *Manager) VerifiedBitfield() *bitfield.Bitfield { return m.verified }

// Complete reports whether every piece is verified.
func (m *Manager) Complete() bool { return m.verified.All() }

// BytesComplete returns the total length of verified pieces.
func (m *Manager) BytesComplete() int64 {
	var n int64
	for i := uint32(0); i < m.numPieces; i++ {
		if m.verified.Test(i) {
			n += int64(m.pieceLen(i))
		}
	}
	return n
}

func (m *Manager) pieceLen(index uint32) uint32 {
	if index == m.numPieces-1 {
		return uint32(m.totalLength - int64(index)*int64(m.pieceLength))
	}
	return m.pieceLength
}

func (m *Manager) pieceHash(index uint32) []byte {
	return m.hashes[index*20 : index*20+20]
}

func (m *Manager) newPiece(index uint32) *piece {
	length := m.pieceLen(index)
	numBlocks := length / BlockSize
	if length%BlockSize != 0 {
		numBlocks++
	}
	p := &piece{
		index:     index,
		length:    length,
		blocks:    make([]block, numBlocks),
		buffer:    make([]byte, length),
		remaining: int(numBlocks),
	}
	for i := range p.blocks {
		p.blocks[i].begin = uint32(i) * BlockSize
		p.blocks[i].length = BlockSize
	}
	if length%BlockSize != 0 {
		p.blocks[numBlocks-1].length = length % BlockSize
	}
	return p
}

func (m *Manager) isQueued(index uint32) bool {
	_, ok := m.queued[index]
	return ok
}

// fill inserts new pieces from the picker until the queue is at capacity or
// no admissible piece remains.
func (m *Manager) fill() {
	n := m.capacity - len(m.queue)
	if n <= 0 {
		return
	}
	for _, index := range m.picker.PickAdmissible(n, m.isQueued) {
		p := m.newPiece(index)
		m.queue = append(m.queue, p)
		m.queued[index] = p
	}
}

func (m *Manager) resetExpired(now time.Time) {
	if m.requestTimeout <= 0 {
		return
	}
	for _, p := range m.queue {
		for i := range p.blocks {
			b := &p.blocks[i]
			if b.state == BlockInProcess && now.Sub(b.since) >= m.requestTimeout {
				b.state = BlockNone
				b.owner = ""
			}
		}
	}
}

// PrepareRequests returns up to limit block requests for the peer. Expired
// requests are reset first, then the queue is refilled from the picker, then
// unassigned blocks of queued pieces the peer has are claimed for it in
// queue insertion order.
func (m *Manager) PrepareRequests(peerID string, limit int, now time.Time) []Request {
	m.resetExpired(now)
	m.fill()
	var reqs []Request
	for _, p := range m.queue {
		if len(reqs) >= limit {
			break
		}
		if !m.picker.PeerHas(peerID, p.index) {
			continue
		}
		for i := range p.blocks {
			if len(reqs) >= limit {
				break
			}
			b := &p.blocks[i]
			if b.state != BlockNone {
				continue
			}
			b.state = BlockInProcess
			b.owner = peerID
			b.since = now
			reqs = append(reqs, Request{Index: p.index, Begin: b.begin, Length: b.length})
		}
	}
	return reqs
}

func (m *Manager) removeFromQueue(index uint32) {
	delete(m.queued, index)
	for i, p := range m.queue {
		if p.index == index {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// GotBlock records a block received from the peer. When the block completes
// its piece, the piece is hash-checked: on success it leaves the queue and
// its data is returned, on mismatch every block is reset and ErrHashMismatch
// is returned.
func (m *Manager) GotBlock(peerID string, index, begin uint32, data []byte) (*Verified, error) {
	p, ok := m.queued[index]
	if !ok {
		if index < m.numPieces && m.verified.Test(index) {
			return nil, ErrBlockDuplicate
		}
		return nil, ErrBlockNotRequested
	}
	if begin%BlockSize != 0 || begin/BlockSize >= uint32(len(p.blocks)) {
		return nil, fmt.Errorf("invalid block begin: %d", begin)
	}
	b := &p.blocks[begin/BlockSize]
	if uint32(len(data)) != b.length {
		return nil, fmt.Errorf("invalid block length: %d", len(data))
	}
	switch b.state {
	case BlockDone:
		return nil, ErrBlockDuplicate
	case BlockNone:
		return nil, ErrBlockNotRequested
	}
	if b.owner != peerID {
		return nil, ErrBlockNotRequested
	}
	copy(p.buffer[b.begin:b.begin+b.length], data)
	b.state = BlockDone
	b.owner = ""
	p.remaining--
	if p.remaining > 0 {
		return nil, nil
	}
	hash := sha1.Sum(p.buffer) // nolint: gosec
	if !bytes.Equal(hash[:], m.pieceHash(index)) {
		for i := range p.blocks {
			p.blocks[i].state = BlockNone
			p.blocks[i].owner = ""
		}
		p.remaining = len(p.blocks)
		return nil, ErrHashMismatch
	}
	m.removeFromQueue(index)
	m.verified.Set(index)
	m.picker.HandleVerified(index)
	return &Verified{Index: index, Data: p.buffer}, nil
}

// PendingFor returns the number of blocks currently requested from the peer.
func (m *Manager) PendingFor(peerID string) int {
	var n int
	for _, p := range m.queue {
		for i := range p.blocks {
			b := &p.blocks[i]
			if b.state == BlockInProcess && b.owner == peerID {
				n++
			}
		}
	}
	return n
}

// PeerDisconnected releases the blocks assigned to the peer.
func (m *Manager) PeerDisconnected(peerID string) {
	for _, p := range m.queue {
		for i := range p.blocks {
			b := &p.blocks[i]
			if b.state == BlockInProcess && b.owner == peerID {
				b.state = BlockNone
				b.owner = ""
			}
		}
	}
}
