package peerprotocol

import (
	"bytes"

	"github.com/zeebo/bencode"
)

const (
	// ExtensionIDHandshake is the id of the extension handshake message.
	ExtensionIDHandshake = 0
)

// ExtensionKeyMetadata is the dictionary key for the metadata extension (BEP 9).
const ExtensionKeyMetadata = "ut_metadata"

// Metadata extension message types.
const (
	MetadataTypeRequest = iota
	MetadataTypeData
	MetadataTypeReject
)

// ExtensionHandshakeMessage is the payload of the extended handshake.
// M maps extension names to the ids the sending side assigned for them.
type ExtensionHandshakeMessage struct {
	M            map[string]uint8 `bencode:"m"`
	V            string           `bencode:"v,omitempty"`
	MetadataSize uint32           `bencode:"metadata_size,omitempty"`
}

// NewExtensionHandshake returns the handshake message advertising our
// supported extensions.
func NewExtensionHandshake(version string, metadataSize uint32) ExtensionHandshakeMessage {
	return ExtensionHandshakeMessage{
		M: map[string]uint8{
			ExtensionKeyMetadata: 1,
		},
		V:            version,
		MetadataSize: metadataSize,
	}
}

// MetadataMessage is a single message of the metadata extension.
// For data messages the piece bytes follow the bencoded dictionary and are
// kept in Data.
type MetadataMessage struct {
	Type      int    `bencode:"msg_type"`
	Piece     uint32 `bencode:"piece"`
	TotalSize uint32 `bencode:"total_size,omitempty"`
	Data      []byte `bencode:"-"`
}

// EncodeMetadataMessage encodes m as an extension payload.
func EncodeMetadataMessage(m MetadataMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := bencode.NewEncoder(&buf).Encode(&m); err != nil {
		return nil, err
	}
	buf.Write(m.Data)
	return buf.Bytes(), nil
}

// DecodeMetadataMessage parses an extension payload into a MetadataMessage.
// Trailing bytes after the bencoded dictionary are the piece data.
func DecodeMetadataMessage(payload []byte) (MetadataMessage, error) {
	var m MetadataMessage
	dec := bencode.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&m); err != nil {
		return m, err
	}
	m.Data = payload[dec.BytesParsed():]
	return m, nil
}
