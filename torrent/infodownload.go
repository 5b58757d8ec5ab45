package torrent

import (
	"github.com/sleetbt/sleet/internal/metainfo"
)

// handleMetadataComplete installs the metadata downloaded from a peer and
// replays the piece availability messages received before it was known.
func (t *Torrent) handleMetadataComplete(pe *peer, b []byte) {
	if t.info != nil {
		// Another peer delivered the metadata first.
		return
	}
	info, err := metainfo.NewInfo(b)
	if err != nil {
		pe.conn.Logger().Errorln("cannot parse downloaded metadata:", err)
		t.closePeer(pe)
		return
	}
	if info.Hash != t.infoHash {
		pe.conn.Logger().Errorln("downloaded metadata does not match info hash")
		t.closePeer(pe)
		return
	}
	t.log.Infoln("metadata downloaded")
	if err := t.setInfo(info, nil); err != nil {
		t.fail(err)
		return
	}
	if t.res != nil {
		if err := t.res.WriteInfo(info.Bytes); err != nil {
			t.log.Errorln("cannot write resume info:", err)
		}
	}
	peers := make([]*peer, 0, len(t.peers))
	for other := range t.peers {
		peers = append(peers, other)
	}
	for _, other := range peers {
		msgs := other.pendingMessages
		other.pendingMessages = nil
		for _, msg := range msgs {
			t.handlePeerMessage(peerMessage{pe: other, msg: msg})
		}
	}
	t.checkCompletion()
	t.scheduleAll()
}
