// Package peerconn provides a message-oriented wrapper around a peer
// connection with separate reader and writer goroutines.
package peerconn

import (
	"net"

	"github.com/juju/ratelimit"
	"github.com/sleetbt/sleet/internal/logger"
	"github.com/sleetbt/sleet/internal/peerconn/peerreader"
	"github.com/sleetbt/sleet/internal/peerconn/peerwriter"
	"github.com/sleetbt/sleet/internal/peerprotocol"
)

// Conn is a peer connection that provides a channel for receiving messages
// and a method for sending messages.
type Conn struct {
	conn     net.Conn
	reader   *peerreader.PeerReader
	writer   *peerwriter.PeerWriter
	messages chan peerprotocol.Message
	log      logger.Logger
	closeC   chan struct{}
	doneC    chan struct{}
}

// New returns a new Conn by wrapping a net.Conn.
// A nil bucket disables download rate limiting.
func New(conn net.Conn, l logger.Logger, b *ratelimit.Bucket) *Conn {
	return &Conn{
		conn:     conn,
		reader:   peerreader.New(conn, l, b),
		writer:   peerwriter.New(conn, l),
		messages: make(chan peerprotocol.Message),
		log:      l,
		closeC:   make(chan struct{}),
		doneC:    make(chan struct{}),
	}
}

// String returns the remote address.
func (p *Conn) String() string {
	return p.conn.RemoteAddr().String()
}

// Logger for the peer that logs messages prefixed with the peer address.
func (p *Conn) Logger() logger.Logger {
	return p.log
}

// Close stops receiving and sending messages and closes the underlying net.Conn.
func (p *Conn) Close() {
	close(p.closeC)
	<-p.doneC
}

// Messages returns the channel that received messages are delivered on.
// The channel is closed if any error occurs while receiving or sending.
func (p *Conn) Messages() <-chan peerprotocol.Message {
	return p.messages
}

// SendMessage queues a message for sending. Does not block.
func (p *Conn) SendMessage(msg peerprotocol.Message) {
	p.writer.SendMessage(msg)
}

// Run starts receiving messages from the peer and sending queued messages.
// If any error happens, the connection and the underlying net.Conn are closed.
func (p *Conn) Run() {
	defer close(p.doneC)
	defer close(p.messages)

	p.log.Debugln("communicating with peer", p.conn.RemoteAddr())

	go p.reader.Run()
	defer func() { <-p.reader.Done() }()

	go p.writer.Run()
	defer func() { <-p.writer.Done() }()

	defer p.conn.Close()
	for {
		select {
		case msg := <-p.reader.Messages():
			select {
			case p.messages <- msg:
			case <-p.closeC:
			}
		case <-p.closeC:
			p.reader.Stop()
			p.writer.Stop()
			return
		case <-p.reader.Done():
			p.writer.Stop()
			return
		case <-p.writer.Done():
			p.reader.Stop()
			return
		}
	}
}
