package piecemanager

import (
	"bytes"
	"crypto/sha1" // nolint: gosec
	"fmt"

	"github.com/sleetbt/sleet/internal/bitfield"
)

// PieceSnapshot is the persisted state of a partially downloaded piece.
// Block states are saved per block. In-flight requests are demoted to the
// unrequested state because the owning connection does not survive a
// restart.
type PieceSnapshot struct {
	Index  uint32  `json:"index"`
	Blocks []uint8 `json:"blocks"`
	Data   []byte  `json:"data"`
}

// Snapshot returns the persisted form of the pieces currently in the
// download queue.
func (m *Manager) Snapshot() []PieceSnapshot {
	snapshots := make([]PieceSnapshot, 0, len(m.queue))
	for _, p := range m.queue {
		s := PieceSnapshot{
			Index:  p.index,
			Blocks: make([]uint8, len(p.blocks)),
			Data:   p.buffer,
		}
		for i := range p.blocks {
			state := p.blocks[i].state
			if state == BlockInProcess {
				state = BlockNone
			}
			s.Blocks[i] = uint8(state)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots
}

// Load restores the verified bitfield and the partially downloaded pieces
// from a previous session. Must be called before any request is scheduled.
func (m *Manager) Load(verified []byte, pieces []PieceSnapshot) error {
	if verified != nil {
		bf := bitfield.NewBytes(verified, m.numPieces)
		if bf == nil {
			return fmt.Errorf("invalid bitfield length: %d", len(verified))
		}
		m.verified = bf
		for i := uint32(0); i < m.numPieces; i++ {
			if m.verified.Test(i) {
				m.picker.HandleVerified(i)
			}
		}
	}
	for _, s := range pieces {
		if s.Index >= m.numPieces {
			return fmt.Errorf("invalid piece index in snapshot: %d", s.Index)
		}
		if m.verified.Test(s.Index) || m.isQueued(s.Index) {
			continue
		}
		p := m.newPiece(s.Index)
		if len(s.Blocks) != len(p.blocks) || uint32(len(s.Data)) != p.length {
			return fmt.Errorf("invalid snapshot for piece %d", s.Index)
		}
		copy(p.buffer, s.Data)
		for i, state := range s.Blocks {
			if BlockState(state) == BlockDone {
				p.blocks[i].state = BlockDone
				p.remaining--
			}
		}
		if p.remaining == 0 {
			// Snapshots do not normally contain finished pieces, but a
			// corrupted resume file may. Hash check the piece instead of
			// queueing it with nothing left to request.
			hash := sha1.Sum(p.buffer) // nolint: gosec
			if bytes.Equal(hash[:], m.pieceHash(p.index)) {
				m.verified.Set(p.index)
				m.picker.HandleVerified(p.index)
				continue
			}
			for i := range p.blocks {
				p.blocks[i].state = BlockNone
			}
			p.remaining = len(p.blocks)
		}
		m.queue = append(m.queue, p)
		m.queued[p.index] = p
	}
	return nil
}
