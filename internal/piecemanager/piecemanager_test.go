package piecemanager

import (
	"crypto/sha1" // nolint: gosec
	"testing"
	"time"

	"github.com/sleetbt/sleet/internal/bitfield"
	"github.com/sleetbt/sleet/internal/piecepicker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// torrent with 2 pieces of 2 blocks each
const (
	testPieceLength = 2 * BlockSize
	testTotalLength = 2 * testPieceLength
)

func testData() []byte {
	data := make([]byte, testTotalLength)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func testHashes(data []byte) []byte {
	var hashes []byte
	for begin := 0; begin < len(data); begin += testPieceLength {
		h := sha1.Sum(data[begin : begin+testPieceLength]) // nolint: gosec
		hashes = append(hashes, h[:]...)
	}
	return hashes
}

func newTestManager(capacity int, timeout time.Duration) (*Manager, *piecepicker.PiecePicker, []byte) {
	data := testData()
	pp := piecepicker.New(2)
	m := New(Params{
		NumPieces:      2,
		PieceLength:    testPieceLength,
		TotalLength:    testTotalLength,
		Hashes:         testHashes(data),
		Picker:         pp,
		Capacity:       capacity,
		RequestTimeout: timeout,
	})
	return m, pp, data
}

func peerHasAll(pp *piecepicker.PiecePicker, peerID string) {
	bf := bitfield.New(2)
	bf.Set(0)
	bf.Set(1)
	pp.HandleBitfield(peerID, bf)
}

func TestRequestScheduling(t *testing.T) {
	m, pp, _ := newTestManager(5, time.Minute)
	peerHasAll(pp, "a")

	now := time.Now()
	reqs := m.PrepareRequests("a", 2, now)
	require.Equal(t, []Request{
		{Index: 0, Begin: 0, Length: BlockSize},
		{Index: 0, Begin: BlockSize, Length: BlockSize},
	}, reqs)

	// claimed blocks are not handed out again
	reqs = m.PrepareRequests("a", 20, now)
	assert.Equal(t, []Request{
		{Index: 1, Begin: 0, Length: BlockSize},
		{Index: 1, Begin: BlockSize, Length: BlockSize},
	}, reqs)
	assert.Empty(t, m.PrepareRequests("a", 20, now))
}

func TestAbsentPieceNeverRequested(t *testing.T) {
	m, pp, _ := newTestManager(5, time.Minute)
	bf := bitfield.New(2)
	bf.Set(1)
	pp.HandleBitfield("a", bf)

	reqs := m.PrepareRequests("a", 20, time.Now())
	for _, r := range reqs {
		assert.Equal(t, uint32(1), r.Index)
	}
	assert.Len(t, reqs, 2)
}

func TestSingleHolder(t *testing.T) {
	m, pp, _ := newTestManager(1, time.Minute)
	peerHasAll(pp, "a")
	peerHasAll(pp, "b")

	now := time.Now()
	reqs := m.PrepareRequests("a", 20, now)
	require.Len(t, reqs, 2)
	// capacity 1 keeps piece 1 out of the queue, and piece 0's blocks are
	// already held by peer a
	assert.Empty(t, m.PrepareRequests("b", 20, now))
}

func TestGotBlockVerifiesPiece(t *testing.T) {
	m, pp, data := newTestManager(5, time.Minute)
	peerHasAll(pp, "a")

	now := time.Now()
	m.PrepareRequests("a", 20, now)

	v, err := m.GotBlock("a", 0, 0, data[:BlockSize])
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = m.GotBlock("a", 0, BlockSize, data[BlockSize:testPieceLength])
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, uint32(0), v.Index)
	assert.Equal(t, data[:testPieceLength], v.Data)

	// verified piece left the queue
	assert.False(t, m.isQueued(0))
	assert.True(t, m.VerifiedBitfield().Test(0))
	assert.Equal(t, int64(testPieceLength), m.BytesComplete())
	assert.False(t, m.Complete())
}

func TestGotBlockErrors(t *testing.T) {
	m, pp, data := newTestManager(5, time.Minute)
	peerHasAll(pp, "a")

	now := time.Now()
	m.PrepareRequests("a", 2, now)

	// piece 1 is queued but its blocks were never requested
	_, err := m.GotBlock("a", 1, 0, data[testPieceLength:testPieceLength+BlockSize])
	assert.Equal(t, ErrBlockNotRequested, err)

	// block requested from a, not from b
	_, err = m.GotBlock("b", 0, 0, data[:BlockSize])
	assert.Equal(t, ErrBlockNotRequested, err)

	_, err = m.GotBlock("a", 0, 1, data[:BlockSize])
	assert.Error(t, err)
	_, err = m.GotBlock("a", 0, 0, data[:10])
	assert.Error(t, err)

	_, err = m.GotBlock("a", 0, 0, data[:BlockSize])
	require.NoError(t, err)
	_, err = m.GotBlock("a", 0, 0, data[:BlockSize])
	assert.Equal(t, ErrBlockDuplicate, err)

	v, err := m.GotBlock("a", 0, BlockSize, data[BlockSize:testPieceLength])
	require.NoError(t, err)
	require.NotNil(t, v)

	// blocks for an already verified piece are duplicates
	_, err = m.GotBlock("a", 0, 0, data[:BlockSize])
	assert.Equal(t, ErrBlockDuplicate, err)
}

func TestHashMismatchResetsPiece(t *testing.T) {
	m, pp, data := newTestManager(5, time.Minute)
	peerHasAll(pp, "a")

	now := time.Now()
	m.PrepareRequests("a", 20, now)

	bad := make([]byte, BlockSize)
	_, err := m.GotBlock("a", 0, 0, bad)
	require.NoError(t, err)
	_, err = m.GotBlock("a", 0, BlockSize, data[BlockSize:testPieceLength])
	assert.Equal(t, ErrHashMismatch, err)

	// piece stays queued with every block back in the unrequested state,
	// so it can be downloaded again from scratch
	assert.True(t, m.isQueued(0))
	reqs := m.PrepareRequests("a", 20, now)
	assert.Contains(t, reqs, Request{Index: 0, Begin: 0, Length: BlockSize})
	assert.Contains(t, reqs, Request{Index: 0, Begin: BlockSize, Length: BlockSize})
}

func TestRequestTimeout(t *testing.T) {
	m, pp, data := newTestManager(5, time.Minute)
	peerHasAll(pp, "a")
	peerHasAll(pp, "b")

	now := time.Now()
	m.PrepareRequests("a", 20, now)

	// before the timeout nothing is released
	assert.Empty(t, m.PrepareRequests("b", 20, now.Add(30*time.Second)))

	later := now.Add(2 * time.Minute)
	reqs := m.PrepareRequests("b", 20, later)
	assert.Len(t, reqs, 4)

	// the original holder lost its claim
	_, err := m.GotBlock("a", 0, 0, data[:BlockSize])
	assert.Equal(t, ErrBlockNotRequested, err)
	_, err = m.GotBlock("b", 0, 0, data[:BlockSize])
	assert.NoError(t, err)
}

func TestPeerDisconnected(t *testing.T) {
	m, pp, _ := newTestManager(5, time.Minute)
	peerHasAll(pp, "a")
	peerHasAll(pp, "b")

	now := time.Now()
	m.PrepareRequests("a", 20, now)
	m.PeerDisconnected("a")

	reqs := m.PrepareRequests("b", 20, now)
	assert.Len(t, reqs, 4)
}

func TestSnapshotLoad(t *testing.T) {
	m, pp, data := newTestManager(5, time.Minute)
	peerHasAll(pp, "a")

	now := time.Now()
	m.PrepareRequests("a", 20, now)

	// finish piece 0, download half of piece 1
	_, err := m.GotBlock("a", 0, 0, data[:BlockSize])
	require.NoError(t, err)
	_, err = m.GotBlock("a", 0, BlockSize, data[BlockSize:testPieceLength])
	require.NoError(t, err)
	_, err = m.GotBlock("a", 1, 0, data[testPieceLength:testPieceLength+BlockSize])
	require.NoError(t, err)

	verified := m.VerifiedBitfield().Bytes()
	pieces := m.Snapshot()
	require.Len(t, pieces, 1)
	assert.Equal(t, uint32(1), pieces[0].Index)
	assert.Equal(t, []uint8{uint8(BlockDone), uint8(BlockNone)}, pieces[0].Blocks)

	// a fresh manager loaded from the snapshot only needs the missing block
	m2, pp2, _ := newTestManager(5, time.Minute)
	peerHasAll(pp2, "a")
	require.NoError(t, m2.Load(verified, pieces))
	assert.True(t, m2.VerifiedBitfield().Test(0))

	reqs := m2.PrepareRequests("a", 20, now)
	require.Equal(t, []Request{{Index: 1, Begin: BlockSize, Length: BlockSize}}, reqs)

	v, err := m2.GotBlock("a", 1, BlockSize, data[testPieceLength+BlockSize:])
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, data[testPieceLength:], v.Data)
	assert.True(t, m2.Complete())
}

// A snapshot piece with every block done cannot be queued because no request
// or block delivery would ever finish it. It must be verified or reset.
func TestLoadFinishedSnapshotPiece(t *testing.T) {
	data := testData()

	// correct data: the piece is verified instead of queued
	m, pp, _ := newTestManager(5, time.Minute)
	peerHasAll(pp, "a")
	good := PieceSnapshot{
		Index:  0,
		Blocks: []uint8{uint8(BlockDone), uint8(BlockDone)},
		Data:   data[:testPieceLength],
	}
	require.NoError(t, m.Load(nil, []PieceSnapshot{good}))
	assert.True(t, m.VerifiedBitfield().Test(0))
	assert.False(t, m.isQueued(0))

	// corrupt data: every block is reset and requested again
	m2, pp2, _ := newTestManager(5, time.Minute)
	peerHasAll(pp2, "a")
	bad := PieceSnapshot{
		Index:  0,
		Blocks: []uint8{uint8(BlockDone), uint8(BlockDone)},
		Data:   make([]byte, testPieceLength),
	}
	require.NoError(t, m2.Load(nil, []PieceSnapshot{bad}))
	assert.False(t, m2.VerifiedBitfield().Test(0))
	reqs := m2.PrepareRequests("a", 20, time.Now())
	assert.Contains(t, reqs, Request{Index: 0, Begin: 0, Length: BlockSize})
	assert.Contains(t, reqs, Request{Index: 0, Begin: BlockSize, Length: BlockSize})
}
