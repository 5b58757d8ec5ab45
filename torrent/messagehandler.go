package torrent

import (
	"fmt"

	"github.com/zeebo/bencode"

	"github.com/sleetbt/sleet/internal/bitfield"
	"github.com/sleetbt/sleet/internal/extension"
	"github.com/sleetbt/sleet/internal/peerprotocol"
)

func (t *Torrent) handlePeerMessage(pm peerMessage) {
	pe := pm.pe
	if _, ok := t.peers[pe]; !ok {
		// Message from a connection that is already being closed.
		return
	}
	switch msg := pm.msg.(type) {
	case peerprotocol.HaveMessage:
		// Save have messages received while we don't have the info yet.
		if t.info == nil {
			pe.pendingMessages = append(pe.pendingMessages, msg)
			break
		}
		if msg.Index >= t.info.NumPieces {
			pe.conn.Logger().Errorln("unexpected piece index:", msg.Index)
			t.closePeer(pe)
			break
		}
		t.picker.HandleHave(pe.key(), msg.Index)
		t.updateInterestedState(pe)
		t.schedule(pe)
	case peerprotocol.BitfieldMessage:
		// Save bitfield messages while we don't have the info yet.
		if t.info == nil {
			pe.pendingMessages = append(pe.pendingMessages, msg)
			break
		}
		bf := bitfield.NewBytes(msg.Data, t.info.NumPieces)
		if bf == nil {
			pe.conn.Logger().Errorf("invalid bitfield length: %d", len(msg.Data))
			t.closePeer(pe)
			break
		}
		pe.conn.Logger().Debugln("received bitfield:", bf.Hex())
		t.picker.HandleBitfield(pe.key(), bf)
		t.updateInterestedState(pe)
		t.schedule(pe)
	case peerprotocol.ChokeMessage:
		pe.peerChoking = true
		// Outstanding requests are implicitly discarded by the peer.
		if t.manager != nil {
			t.manager.PeerDisconnected(pe.key())
		}
	case peerprotocol.UnchokeMessage:
		pe.peerChoking = false
		t.schedule(pe)
	case peerprotocol.InterestedMessage, peerprotocol.NotInterestedMessage:
		// We do not upload, nothing to do.
	case peerprotocol.RequestMessage:
		// Ignored, upload is not supported.
		pe.conn.Logger().Debugln("peer requested block, ignoring. index:", msg.Index)
	case peerprotocol.PieceMessage:
		t.handlePieceMessage(pe, msg)
	case peerprotocol.CancelMessage:
		// We never queue uploads, nothing to cancel.
	case peerprotocol.PortMessage:
		// DHT is not supported.
	case peerprotocol.ExtensionMessage:
		t.handleExtensionMessage(pe, msg)
	default:
		pe.conn.Logger().Errorln("unhandled message type:", msg.ID())
		t.closePeer(pe)
	}
}

func (t *Torrent) handleExtensionMessage(pe *peer, msg peerprotocol.ExtensionMessage) {
	if msg.ExtendedID == peerprotocol.ExtensionIDHandshake {
		t.handleExtensionHandshake(pe, msg.Payload)
		return
	}
	h, ok := pe.extHandlers[msg.ExtendedID]
	if !ok {
		// Unknown extension ids are tolerated.
		pe.conn.Logger().Debugln("extension message with unknown id:", msg.ExtendedID)
		return
	}
	act, err := h.HandleMessage(msg.Payload)
	if err != nil {
		pe.conn.Logger().Errorln("extension error:", err)
		t.closePeer(pe)
		return
	}
	t.applyExtensionAction(pe, act)
}

func (t *Torrent) handleExtensionHandshake(pe *peer, payload []byte) {
	if pe.activated {
		// Duplicate handshakes are ignored.
		return
	}
	var hs peerprotocol.ExtensionHandshakeMessage
	if err := bencode.DecodeBytes(payload, &hs); err != nil {
		pe.conn.Logger().Errorln("invalid extension handshake:", err)
		t.closePeer(pe)
		return
	}
	for name, outgoingID := range hs.M {
		if outgoingID == 0 {
			// Zero means the peer disabled the extension.
			continue
		}
		h := extension.NewHandler(name, extension.Params{
			InfoHash:     t.infoHash,
			OutgoingID:   outgoingID,
			MetadataSize: hs.MetadataSize,
			NeedInfo:     t.info == nil,
			Log:          pe.conn.Logger(),
		})
		if h == nil {
			continue
		}
		// Incoming messages for this extension arrive with the id we
		// advertised in our own handshake.
		id, ok := ourExtensionID(name)
		if !ok {
			continue
		}
		pe.extHandlers[id] = h
		pe.extOrder = append(pe.extOrder, id)
	}
	pe.activated = true
	for _, id := range pe.extOrder {
		act, err := pe.extHandlers[id].OnActivated()
		if err != nil {
			pe.conn.Logger().Errorln("extension error:", err)
			t.closePeer(pe)
			return
		}
		t.applyExtensionAction(pe, act)
		if _, ok := t.peers[pe]; !ok {
			return
		}
	}
}

// ourExtensionID returns the id we assigned to the named extension in our
// extended handshake.
func ourExtensionID(name string) (uint8, bool) {
	hs := peerprotocol.NewExtensionHandshake("", 0)
	id, ok := hs.M[name]
	return id, ok
}

func (t *Torrent) applyExtensionAction(pe *peer, act extension.Action) {
	for _, msg := range act.Send {
		pe.conn.SendMessage(msg)
	}
	if act.Notify == nil {
		return
	}
	switch n := act.Notify.(type) {
	case extension.MetadataComplete:
		t.handleMetadataComplete(pe, n.Bytes)
	default:
		panic(fmt.Sprintf("unhandled extension notification: %T", n))
	}
}

func (t *Torrent) updateInterestedState(pe *peer) {
	if t.info == nil || pe.amInterested || t.completed {
		return
	}
	for i := uint32(0); i < t.info.NumPieces; i++ {
		if t.manager.VerifiedBitfield().Test(i) {
			continue
		}
		if t.onlyPieces != nil {
			if _, ok := t.onlyPieces[i]; !ok {
				continue
			}
		}
		if t.picker.PeerHas(pe.key(), i) {
			pe.amInterested = true
			pe.conn.SendMessage(peerprotocol.InterestedMessage{})
			return
		}
	}
}
