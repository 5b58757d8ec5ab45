// Package peerprotocol contains the messages of BitTorrent peer wire protocol
// and their binary encoding.
//
// Framing (the 4-byte length prefix and keep-alive detection) is the caller's
// responsibility. Given a complete frame, UnmarshalMessage validates the
// payload length against the message type.
package peerprotocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedMessage is returned by UnmarshalMessage when the frame does not
// match any known message type or its payload length is inconsistent.
var ErrMalformedMessage = errors.New("malformed peer message")

// Message is a peer message of the BitTorrent wire protocol.
type Message interface {
	ID() MessageID
	MarshalBinary() ([]byte, error)
}

type emptyMessage struct{}

func (m emptyMessage) MarshalBinary() ([]byte, error) { return nil, nil }

// ChokeMessage tells the peer to stop requesting pieces.
type ChokeMessage struct{ emptyMessage }

// UnchokeMessage tells the peer that it may request pieces.
type UnchokeMessage struct{ emptyMessage }

// InterestedMessage tells the peer that we want to request pieces.
type InterestedMessage struct{ emptyMessage }

// NotInterestedMessage tells the peer that we don't want anything from it.
type NotInterestedMessage struct{ emptyMessage }

func (m ChokeMessage) ID() MessageID         { return Choke }
func (m UnchokeMessage) ID() MessageID       { return Unchoke }
func (m InterestedMessage) ID() MessageID    { return Interested }
func (m NotInterestedMessage) ID() MessageID { return NotInterested }

// HaveMessage announces that the peer has the piece with Index.
type HaveMessage struct {
	Index uint32
}

func (m HaveMessage) ID() MessageID { return Have }

func (m HaveMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, m.Index)
	return b, nil
}

// BitfieldMessage is sent after the handshake to announce all pieces the peer has.
type BitfieldMessage struct {
	Data []byte
}

func (m BitfieldMessage) ID() MessageID { return Bitfield }

func (m BitfieldMessage) MarshalBinary() ([]byte, error) {
	return m.Data, nil
}

// RequestMessage asks the peer for a single block of a piece.
type RequestMessage struct {
	Index, Begin, Length uint32
}

func (m RequestMessage) ID() MessageID { return Request }

func (m RequestMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:4], m.Index)
	binary.BigEndian.PutUint32(b[4:8], m.Begin)
	binary.BigEndian.PutUint32(b[8:12], m.Length)
	return b, nil
}

// CancelMessage cancels a previously sent request.
type CancelMessage struct{ RequestMessage }

func (m CancelMessage) ID() MessageID { return Cancel }

// PieceMessage carries a single block of piece data.
type PieceMessage struct {
	Index, Begin uint32
	Data         []byte
}

func (m PieceMessage) ID() MessageID { return Piece }

func (m PieceMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8+len(m.Data))
	binary.BigEndian.PutUint32(b[0:4], m.Index)
	binary.BigEndian.PutUint32(b[4:8], m.Begin)
	copy(b[8:], m.Data)
	return b, nil
}

// PortMessage announces the UDP port of the peer's DHT node.
type PortMessage struct {
	Port uint16
}

func (m PortMessage) ID() MessageID { return Port }

func (m PortMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, m.Port)
	return b, nil
}

// ExtensionMessage wraps an extension-protocol payload (BEP 10).
// ExtendedID selects the handler on the receiving side. Payloads of ids
// unknown to the receiver are tolerated there, not here.
type ExtensionMessage struct {
	ExtendedID uint8
	Payload    []byte
}

func (m ExtensionMessage) ID() MessageID { return Extension }

func (m ExtensionMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 1+len(m.Payload))
	b[0] = m.ExtendedID
	copy(b[1:], m.Payload)
	return b, nil
}

// UnmarshalMessage parses the payload of a complete frame with the given
// message id. Unknown top-level ids and inconsistent payload lengths return
// an error wrapping ErrMalformedMessage.
func UnmarshalMessage(id MessageID, payload []byte) (Message, error) {
	switch id {
	case Choke, Unchoke, Interested, NotInterested:
		if len(payload) != 0 {
			return nil, malformed(id, "unexpected payload of length %d", len(payload))
		}
		switch id {
		case Choke:
			return ChokeMessage{}, nil
		case Unchoke:
			return UnchokeMessage{}, nil
		case Interested:
			return InterestedMessage{}, nil
		default:
			return NotInterestedMessage{}, nil
		}
	case Have:
		if len(payload) != 4 {
			return nil, malformed(id, "payload must be 4 bytes, got %d", len(payload))
		}
		return HaveMessage{Index: binary.BigEndian.Uint32(payload)}, nil
	case Bitfield:
		data := make([]byte, len(payload))
		copy(data, payload)
		return BitfieldMessage{Data: data}, nil
	case Request, Cancel:
		if len(payload) != 12 {
			return nil, malformed(id, "payload must be 12 bytes, got %d", len(payload))
		}
		rm := RequestMessage{
			Index:  binary.BigEndian.Uint32(payload[0:4]),
			Begin:  binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}
		if id == Cancel {
			return CancelMessage{rm}, nil
		}
		return rm, nil
	case Piece:
		if len(payload) < 8 {
			return nil, malformed(id, "payload must be at least 8 bytes, got %d", len(payload))
		}
		data := make([]byte, len(payload)-8)
		copy(data, payload[8:])
		return PieceMessage{
			Index: binary.BigEndian.Uint32(payload[0:4]),
			Begin: binary.BigEndian.Uint32(payload[4:8]),
			Data:  data,
		}, nil
	case Port:
		if len(payload) != 2 {
			return nil, malformed(id, "payload must be 2 bytes, got %d", len(payload))
		}
		return PortMessage{Port: binary.BigEndian.Uint16(payload)}, nil
	case Extension:
		if len(payload) < 1 {
			return nil, malformed(id, "missing extended message id")
		}
		data := make([]byte, len(payload)-1)
		copy(data, payload[1:])
		return ExtensionMessage{ExtendedID: payload[0], Payload: data}, nil
	default:
		return nil, malformed(id, "unknown message id")
	}
}

func malformed(id MessageID, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedMessage, id, fmt.Sprintf(format, args...))
}
