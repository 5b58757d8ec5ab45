package peerreader

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/juju/ratelimit"
	"github.com/sleetbt/sleet/internal/logger"
	"github.com/sleetbt/sleet/internal/peerprotocol"
)

const (
	// MaxBlockSize is the largest block length we accept in a piece message.
	MaxBlockSize = 16 * 1024
	// time to wait for a message. peer must send keep-alive messages to keep connection alive.
	readTimeout = 2 * time.Minute
	// length + message id + request message
	readBufferSize = 4 + 1 + 12
	// piece message header + block
	maxPiecePayload = 8 + MaxBlockSize
	// Bound for all other payloads. Extension messages carry a metadata
	// piece plus its bencoded header, bitfield messages grow with the
	// torrent's piece count.
	maxPayloadLength = 8 * 1024 * 1024
)

// PeerReader reads frames from the connection and decodes them into peer
// protocol messages.
type PeerReader struct {
	conn     net.Conn
	r        io.Reader
	log      logger.Logger
	bucket   *ratelimit.Bucket
	messages chan peerprotocol.Message
	stopC    chan struct{}
	doneC    chan struct{}
}

// New returns a new PeerReader for the connection.
// A nil bucket disables download rate limiting.
func New(conn net.Conn, l logger.Logger, b *ratelimit.Bucket) *PeerReader {
	return &PeerReader{
		conn:     conn,
		r:        bufio.NewReaderSize(conn, readBufferSize),
		log:      l,
		bucket:   b,
		messages: make(chan peerprotocol.Message),
		stopC:    make(chan struct{}),
		doneC:    make(chan struct{}),
	}
}

// Messages returns the channel decoded messages are delivered on.
func (p *PeerReader) Messages() <-chan peerprotocol.Message {
	return p.messages
}

// Stop makes the reader quit its loop.
func (p *PeerReader) Stop() {
	close(p.stopC)
}

// Done is closed when the reader loop has returned.
func (p *PeerReader) Done() chan struct{} {
	return p.doneC
}

// Run reads messages until an error occurs or the reader is stopped.
// A malformed frame is fatal to the connection.
func (p *PeerReader) Run() {
	defer close(p.doneC)

	var err error
	defer func() {
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return
		}
		if _, ok := err.(*net.OpError); ok {
			return
		}
		select {
		case <-p.stopC: // don't log error if the reader is stopped
		default:
			p.log.Error(err)
		}
	}()

	for {
		err = p.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if err != nil {
			return
		}

		var length uint32
		err = binary.Read(p.r, binary.BigEndian, &length)
		if err != nil {
			return
		}

		if length == 0 { // keep-alive message
			p.log.Debug("received keep-alive")
			continue
		}

		var idByte byte
		idByte, err = readByte(p.r)
		if err != nil {
			return
		}
		id := peerprotocol.MessageID(idByte)
		length--

		if id == peerprotocol.Piece && length > maxPiecePayload {
			err = peerprotocol.ErrMalformedMessage
			return
		}
		if length > maxPayloadLength {
			err = peerprotocol.ErrMalformedMessage
			return
		}

		payload := make([]byte, length)
		if id == peerprotocol.Piece && p.bucket != nil {
			time.Sleep(p.bucket.Take(int64(length)))
		}
		_, err = io.ReadFull(p.r, payload)
		if err != nil {
			return
		}

		var msg peerprotocol.Message
		msg, err = peerprotocol.UnmarshalMessage(id, payload)
		if err != nil {
			return
		}

		select {
		case p.messages <- msg:
		case <-p.stopC:
			return
		}
	}
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	return b[0], err
}
