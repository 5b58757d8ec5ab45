package btconn

import (
	"encoding/binary"
	"io"
)

var pstr = [20]byte{19, 'B', 'i', 't', 'T', 'o', 'r', 'r', 'e', 'n', 't', ' ', 'p', 'r', 'o', 't', 'o', 'c', 'o', 'l'}

// extensionProtocolBit is bit 20 of the reserved bytes (BEP 10).
const (
	extensionReservedByte = 5
	extensionReservedBit  = 0x10
)

// NewExtensions returns the reserved bytes we advertise in the handshake.
func NewExtensions() [8]byte {
	var b [8]byte
	b[extensionReservedByte] |= extensionReservedBit
	return b
}

// SupportsExtensionProtocol reports whether the reserved bytes advertise
// extension-protocol support.
func SupportsExtensionProtocol(extensions [8]byte) bool {
	return extensions[extensionReservedByte]&extensionReservedBit != 0
}

func writeHandshake(w io.Writer, ih, id [20]byte, extensions [8]byte) error {
	h := struct {
		Pstr       [20]byte
		Extensions [8]byte
		InfoHash   [20]byte
		PeerID     [20]byte
	}{
		Pstr:       pstr,
		Extensions: extensions,
		InfoHash:   ih,
		PeerID:     id,
	}
	return binary.Write(w, binary.BigEndian, h)
}

func readHandshake1(r io.Reader) (extensions [8]byte, ih [20]byte, err error) {
	_, err = io.ReadFull(r, ih[:])
	if err != nil {
		return
	}
	if ih != pstr {
		err = ErrInvalidProtocol
		return
	}
	_, err = io.ReadFull(r, extensions[:])
	if err != nil {
		return
	}
	_, err = io.ReadFull(r, ih[:])
	return
}

func readHandshake2(r io.Reader) (id [20]byte, err error) {
	_, err = io.ReadFull(r, id[:])
	return
}
