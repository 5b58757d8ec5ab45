package torrent

import (
	"net"

	"github.com/zeebo/bencode"

	"github.com/sleetbt/sleet/internal/btconn"
	"github.com/sleetbt/sleet/internal/logger"
	"github.com/sleetbt/sleet/internal/peerconn"
	"github.com/sleetbt/sleet/internal/peerprotocol"
)

// handleNewAddrs queues tracker-discovered addresses and dials up to the
// connection limit.
func (t *Torrent) handleNewAddrs(addrs []*net.TCPAddr) {
	for _, addr := range addrs {
		if _, ok := t.known[addr.String()]; ok {
			continue
		}
		t.known[addr.String()] = struct{}{}
		t.addrs = append(t.addrs, addr)
	}
	t.dialAddresses()
}

func (t *Torrent) dialAddresses() {
	if t.completed {
		return
	}
	for len(t.peers)+t.dialing < t.config.MaxPeerDial && len(t.addrs) > 0 {
		addr := t.addrs[0]
		t.addrs = t.addrs[1:]
		t.dialing++
		go t.dial(addr)
	}
}

// dial runs in its own goroutine and reports the handshake result to the
// run loop.
func (t *Torrent) dial(addr *net.TCPAddr) {
	res := &dialResult{addr: addr}
	res.conn, res.extensions, res.peerID, res.err = btconn.Dial(
		addr,
		t.config.PeerConnectTimeout,
		t.config.PeerHandshakeTimeout,
		btconn.NewExtensions(),
		t.infoHash,
		t.peerID,
		t.closeC,
	)
	select {
	case t.dialResultC <- res:
	case <-t.closeC:
		if res.err == nil {
			res.conn.Close()
		}
	}
}

func (t *Torrent) handleDialResult(res *dialResult) {
	t.dialing--
	if res.err != nil {
		t.log.Debugf("cannot connect to %s: %s", res.addr, res.err)
		delete(t.known, res.addr.String())
		t.dialAddresses()
		return
	}
	t.startPeer(res)
}

func (t *Torrent) startPeer(res *dialResult) {
	log := logger.New("peer " + res.addr.String())
	conn := peerconn.New(res.conn, log, t.bucket)
	pe := newPeer(conn, res.addr, res.peerID, res.extensions)
	t.peers[pe] = struct{}{}
	go conn.Run()
	go t.pumpMessages(pe)

	if btconn.SupportsExtensionProtocol(res.extensions) {
		t.sendExtensionHandshake(pe)
	}
}

// pumpMessages forwards received messages into the run loop until the
// connection is closed.
func (t *Torrent) pumpMessages(pe *peer) {
	for msg := range pe.conn.Messages() {
		select {
		case t.messages <- peerMessage{pe: pe, msg: msg}:
		case <-t.closeC:
			return
		}
	}
	select {
	case t.peerDoneC <- pe:
	case <-t.closeC:
	}
}

func (t *Torrent) sendExtensionHandshake(pe *peer) {
	var metadataSize uint32
	if t.info != nil {
		metadataSize = uint32(len(t.info.Bytes))
	}
	msg := peerprotocol.NewExtensionHandshake("sleet "+Version, metadataSize)
	payload, err := bencode.EncodeBytes(msg)
	if err != nil {
		panic(err)
	}
	pe.conn.SendMessage(peerprotocol.ExtensionMessage{
		ExtendedID: peerprotocol.ExtensionIDHandshake,
		Payload:    payload,
	})
}

func (t *Torrent) closePeer(pe *peer) {
	if _, ok := t.peers[pe]; !ok {
		return
	}
	delete(t.peers, pe)
	delete(t.known, pe.addr.String())
	if t.picker != nil {
		t.picker.HandleDisconnect(pe.key())
	}
	if t.manager != nil {
		t.manager.PeerDisconnected(pe.key())
	}
	go pe.conn.Close()
	t.dialAddresses()
}
