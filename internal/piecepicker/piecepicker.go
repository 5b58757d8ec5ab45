// Package piecepicker tracks piece availability among connected peers and
// selects the pieces to download next.
package piecepicker

import (
	"sort"

	"github.com/sleetbt/sleet/internal/bitfield"
)

// PiecePicker records which peers have which pieces and picks the rarest
// pieces first.
type PiecePicker struct {
	numPieces uint32
	// availability[i] is the number of connected peers that have piece i.
	availability []int
	peers        map[string]*bitfield.Bitfield
	have         *bitfield.Bitfield
}

// New returns a picker for a torrent with numPieces pieces.
func New(numPieces uint32) *PiecePicker {
	return &PiecePicker{
		numPieces:    numPieces,
		availability: make([]int, numPieces),
		peers:        make(map[string]*bitfield.Bitfield),
		have:         bitfield.New(numPieces),
	}
}

// NumPieces returns the number of pieces in the torrent.
func (p *PiecePicker) NumPieces() uint32 { return p.numPieces }

// HandleBitfield replaces the recorded piece set of the peer.
func (p *PiecePicker) HandleBitfield(peerID string, bf *bitfield.Bitfield) {
	if old, ok := p.peers[peerID]; ok {
		for i := uint32(0); i < p.numPieces; i++ {
			if old.Test(i) {
				p.availability[i]--
			}
		}
	}
	p.peers[peerID] = bf
	for i := uint32(0); i < p.numPieces; i++ {
		if bf.Test(i) {
			p.availability[i]++
		}
	}
}

// HandleHave records that the peer announced a new piece.
func (p *PiecePicker) HandleHave(peerID string, index uint32) {
	bf, ok := p.peers[peerID]
	if !ok {
		bf = bitfield.New(p.numPieces)
		p.peers[peerID] = bf
	}
	if bf.Test(index) {
		return
	}
	bf.Set(index)
	p.availability[index]++
}

// HandleDisconnect forgets the peer and its pieces.
func (p *PiecePicker) HandleDisconnect(peerID string) {
	bf, ok := p.peers[peerID]
	if !ok {
		return
	}
	delete(p.peers, peerID)
	for i := uint32(0); i < p.numPieces; i++ {
		if bf.Test(i) {
			p.availability[i]--
		}
	}
}

// HandleVerified marks the piece as downloaded and verified. Verified
// pieces are never picked again.
func (p *PiecePicker) HandleVerified(index uint32) {
	p.have.Set(index)
}

// PeerHas reports whether the peer has announced the piece.
func (p *PiecePicker) PeerHas(peerID string, index uint32) bool {
	bf, ok := p.peers[peerID]
	return ok && bf.Test(index)
}

// Available reports whether any connected peer has the piece.
func (p *PiecePicker) Available(index uint32) bool {
	return p.availability[index] > 0
}

// PickAdmissible returns up to n pieces to download next, rarest first with
// ties broken by ascending index. Pieces already verified, already queued
// per the queued predicate, or held by no peer are skipped.
func (p *PiecePicker) PickAdmissible(n int, queued func(index uint32) bool) []uint32 {
	if n <= 0 {
		return nil
	}
	candidates := make([]uint32, 0, p.numPieces)
	for i := uint32(0); i < p.numPieces; i++ {
		if p.have.Test(i) || queued(i) || p.availability[i] == 0 {
			continue
		}
		candidates = append(candidates, i)
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return p.availability[candidates[a]] < p.availability[candidates[b]]
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
