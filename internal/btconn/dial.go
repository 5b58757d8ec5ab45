// Package btconn opens peer connections and exchanges the BitTorrent
// protocol handshake.
package btconn

import (
	"net"
	"time"

	"github.com/sleetbt/sleet/internal/logger"
)

// Dial opens a new connection to the address and does the BitTorrent protocol
// handshake. Returns a net.Conn that is ready for sending and receiving peer
// protocol messages, along with the extensions and id read from the peer's
// handshake. Closing stopC aborts the dial.
func Dial(
	addr net.Addr,
	dialTimeout, handshakeTimeout time.Duration,
	ourExtensions [8]byte,
	ih, ourID [20]byte,
	stopC chan struct{}) (
	conn net.Conn, peerExtensions [8]byte, peerID [20]byte, err error) {

	log := logger.New("conn -> " + addr.String())
	done := make(chan struct{})
	defer close(done)

	log.Debug("connecting to peer")
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err = dialer.Dial(addr.Network(), addr.String())
	if err != nil {
		return
	}
	defer func(conn net.Conn) {
		if err != nil {
			conn.Close()
		}
	}(conn)
	go func(conn net.Conn) {
		select {
		case <-stopC:
			conn.Close()
		case <-done:
		}
	}(conn)

	// Handshake must be completed in the allowed duration.
	if err = conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return
	}
	if err = writeHandshake(conn, ih, ourID, ourExtensions); err != nil {
		return
	}

	var ihRead [20]byte
	peerExtensions, ihRead, err = readHandshake1(conn)
	if err != nil {
		return
	}
	if ihRead != ih {
		err = ErrInvalidInfoHash
		return
	}
	peerID, err = readHandshake2(conn)
	if err != nil {
		return
	}
	if peerID == ourID {
		err = ErrOwnConnection
		return
	}
	err = conn.SetDeadline(time.Time{})
	return
}
