package piecepicker

import (
	"testing"

	"github.com/sleetbt/sleet/internal/bitfield"
	"github.com/stretchr/testify/assert"
)

func bf(numPieces uint32, indexes ...uint32) *bitfield.Bitfield {
	b := bitfield.New(numPieces)
	for _, i := range indexes {
		b.Set(i)
	}
	return b
}

func noQueue(uint32) bool { return false }

func TestRarestFirst(t *testing.T) {
	p := New(4)
	p.HandleBitfield("a", bf(4, 0, 1, 2))
	p.HandleBitfield("b", bf(4, 1, 2))
	p.HandleBitfield("c", bf(4, 2))

	// piece 3 has no holder and must never be picked
	picked := p.PickAdmissible(4, noQueue)
	assert.Equal(t, []uint32{0, 1, 2}, picked)

	picked = p.PickAdmissible(1, noQueue)
	assert.Equal(t, []uint32{0}, picked)
}

func TestTieBreakByIndex(t *testing.T) {
	p := New(3)
	p.HandleBitfield("a", bf(3, 0, 1, 2))
	assert.Equal(t, []uint32{0, 1, 2}, p.PickAdmissible(3, noQueue))
}

func TestQueuedAndVerifiedSkipped(t *testing.T) {
	p := New(3)
	p.HandleBitfield("a", bf(3, 0, 1, 2))
	p.HandleVerified(0)
	queued := func(i uint32) bool { return i == 1 }
	assert.Equal(t, []uint32{2}, p.PickAdmissible(3, queued))
}

func TestHaveAndDisconnect(t *testing.T) {
	p := New(2)
	p.HandleHave("a", 1)
	assert.True(t, p.PeerHas("a", 1))
	assert.False(t, p.PeerHas("a", 0))
	assert.True(t, p.Available(1))

	// duplicate have must not double-count
	p.HandleHave("a", 1)
	assert.Equal(t, 1, p.availability[1])

	p.HandleDisconnect("a")
	assert.False(t, p.Available(1))
	assert.False(t, p.PeerHas("a", 1))
	assert.Empty(t, p.PickAdmissible(2, noQueue))
}

func TestBitfieldReplacesPrevious(t *testing.T) {
	p := New(2)
	p.HandleHave("a", 0)
	p.HandleBitfield("a", bf(2, 1))
	assert.False(t, p.Available(0))
	assert.True(t, p.Available(1))
}
