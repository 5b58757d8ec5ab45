package torrent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sleetbt/sleet/internal/filesection"
	"github.com/sleetbt/sleet/internal/peerprotocol"
	"github.com/sleetbt/sleet/internal/piecemanager"
)

// schedule sends new block requests to the peer up to the request queue
// limit.
func (t *Torrent) schedule(pe *peer) {
	if t.info == nil || t.completed || pe.peerChoking {
		return
	}
	limit := t.config.RequestQueueLength - t.manager.PendingFor(pe.key())
	if limit <= 0 {
		return
	}
	for _, r := range t.manager.PrepareRequests(pe.key(), limit, time.Now()) {
		pe.conn.SendMessage(peerprotocol.RequestMessage{Index: r.Index, Begin: r.Begin, Length: r.Length})
	}
}

func (t *Torrent) scheduleAll() {
	if t.info == nil || t.completed {
		return
	}
	for pe := range t.peers {
		t.updateInterestedState(pe)
		t.schedule(pe)
	}
}

func (t *Torrent) handlePieceMessage(pe *peer, msg peerprotocol.PieceMessage) {
	if t.info == nil {
		pe.conn.Logger().Errorln("piece received but we don't have info")
		t.bytesWasted.Inc(int64(len(msg.Data)))
		t.closePeer(pe)
		return
	}
	t.downloadSpeed.Mark(int64(len(msg.Data)))
	v, err := t.manager.GotBlock(pe.key(), msg.Index, msg.Begin, msg.Data)
	switch {
	case err == piecemanager.ErrBlockDuplicate, err == piecemanager.ErrBlockNotRequested:
		// A block can arrive after its request timed out and was handed to
		// another peer. The data is wasted but the peer is healthy.
		t.bytesWasted.Inc(int64(len(msg.Data)))
		t.schedule(pe)
	case err == piecemanager.ErrHashMismatch:
		pe.conn.Logger().Errorln("hash mismatch for piece:", msg.Index)
		t.bytesWasted.Inc(int64(t.info.PieceLength))
		t.closePeer(pe)
		t.scheduleAll()
	case err != nil:
		pe.conn.Logger().Errorln("invalid piece message:", err)
		t.bytesWasted.Inc(int64(len(msg.Data)))
		t.closePeer(pe)
	case v != nil:
		t.handleVerifiedPiece(v)
		t.schedule(pe)
	default:
		t.schedule(pe)
	}
}

func (t *Torrent) handleVerifiedPiece(v *piecemanager.Verified) {
	t.log.Debugln("piece verified. index:", v.Index)
	if err := t.writePiece(v); err != nil {
		t.fail(fmt.Errorf("cannot write piece %d: %s", v.Index, err))
		return
	}
	t.saveState()
	for pe := range t.peers {
		pe.conn.SendMessage(peerprotocol.HaveMessage{Index: v.Index})
	}
	t.checkCompletion()
}

func (t *Torrent) writePiece(v *piecemanager.Verified) error {
	if t.pieceWriter != nil {
		_, err := t.pieceWriter.WriteAt(v.Data, 0)
		return err
	}
	offset := int64(v.Index) * int64(t.info.PieceLength)
	sections := filesection.Split(t.files, offset, int64(len(v.Data)))
	_, err := sections.Write(v.Data)
	return err
}

// saveState persists the verified bitfield and the partial piece snapshots.
func (t *Torrent) saveState() {
	if t.res == nil || t.manager == nil {
		return
	}
	pieces, err := json.Marshal(t.manager.Snapshot())
	if err != nil {
		t.log.Errorln("cannot encode piece snapshots:", err)
		return
	}
	if err := t.res.WriteState(t.manager.VerifiedBitfield().Bytes(), pieces); err != nil {
		t.log.Errorln("cannot write resume state:", err)
	}
}

func (t *Torrent) checkCompletion() {
	if t.completed || t.manager == nil {
		return
	}
	if t.onlyPieces != nil {
		for i := range t.onlyPieces {
			if !t.manager.VerifiedBitfield().Test(i) {
				return
			}
		}
	} else if !t.manager.Complete() {
		return
	}
	t.completed = true
	close(t.completedC)
	t.log.Infoln("download completed")
	peers := make([]*peer, 0, len(t.peers))
	for pe := range t.peers {
		peers = append(peers, pe)
	}
	for _, pe := range peers {
		t.closePeer(pe)
	}
	if !t.errDelivered {
		t.errDelivered = true
		t.errC <- nil
	}
}
