package torrent

import (
	"net"

	"github.com/sleetbt/sleet/internal/extension"
	"github.com/sleetbt/sleet/internal/peerconn"
	"github.com/sleetbt/sleet/internal/peerprotocol"
)

// peer is the run loop's view of a connected peer. Only the run goroutine
// touches its fields.
type peer struct {
	conn       *peerconn.Conn
	addr       *net.TCPAddr
	id         [20]byte
	extensions [8]byte

	peerChoking  bool
	amInterested bool

	// Messages received before the metadata is known are saved and
	// replayed once the info arrives.
	pendingMessages []peerprotocol.Message

	// extHandlers is keyed by the id we assigned to each extension in our
	// handshake. Incoming extension messages carry these ids.
	extHandlers map[uint8]extension.Handler
	// extOrder preserves handler registration order for activation.
	extOrder  []uint8
	activated bool
}

func newPeer(conn *peerconn.Conn, addr *net.TCPAddr, id [20]byte, extensions [8]byte) *peer {
	return &peer{
		conn:        conn,
		addr:        addr,
		id:          id,
		extensions:  extensions,
		peerChoking: true,
		extHandlers: make(map[uint8]extension.Handler),
	}
}

// key identifies the peer in the piece scheduling state.
func (pe *peer) key() string { return pe.addr.String() }

type peerMessage struct {
	pe  *peer
	msg peerprotocol.Message
}

type dialResult struct {
	addr       *net.TCPAddr
	conn       net.Conn
	extensions [8]byte
	peerID     [20]byte
	err        error
}
