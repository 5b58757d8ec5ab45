package peerprotocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMetadataRequest(t *testing.T) {
	b, err := EncodeMetadataMessage(MetadataMessage{Type: MetadataTypeRequest, Piece: 0})
	require.NoError(t, err)
	assert.Equal(t, "d8:msg_typei0e5:piecei0ee", string(b))
}

func TestDecodeMetadataData(t *testing.T) {
	m, err := DecodeMetadataMessage([]byte("d8:msg_typei1e5:piecei0e10:total_sizei8eexxxxxxxx"))
	require.NoError(t, err)
	assert.Equal(t, MetadataTypeData, m.Type)
	assert.EqualValues(t, 0, m.Piece)
	assert.EqualValues(t, 8, m.TotalSize)
	assert.Equal(t, []byte("xxxxxxxx"), m.Data)
}

func TestExtensionHandshakeRoundTrip(t *testing.T) {
	hs := NewExtensionHandshake("sleet 0.1", 30000)
	assert.Equal(t, uint8(1), hs.M[ExtensionKeyMetadata])
}
