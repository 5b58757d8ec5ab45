package peerprotocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	messages := []Message{
		ChokeMessage{},
		UnchokeMessage{},
		InterestedMessage{},
		NotInterestedMessage{},
		HaveMessage{Index: 42},
		BitfieldMessage{Data: []byte{0xaa, 0x80}},
		RequestMessage{Index: 1, Begin: 16384, Length: 16384},
		CancelMessage{RequestMessage{Index: 1, Begin: 16384, Length: 16384}},
		PieceMessage{Index: 3, Begin: 32768, Data: []byte("block data")},
		PortMessage{Port: 6881},
		ExtensionMessage{ExtendedID: 1, Payload: []byte("d8:msg_typei0e5:piecei0ee")},
	}
	for _, msg := range messages {
		payload, err := msg.MarshalBinary()
		require.NoError(t, err)
		decoded, err := UnmarshalMessage(msg.ID(), payload)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	}
}

func TestUnmarshalUnknownID(t *testing.T) {
	_, err := UnmarshalMessage(13, nil)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestUnmarshalBadLength(t *testing.T) {
	cases := []struct {
		id      MessageID
		payload []byte
	}{
		{Choke, []byte{0}},
		{Have, []byte{0, 0, 0}},
		{Request, make([]byte, 11)},
		{Cancel, make([]byte, 13)},
		{Piece, make([]byte, 7)},
		{Port, []byte{0}},
		{Extension, nil},
	}
	for _, c := range cases {
		_, err := UnmarshalMessage(c.id, c.payload)
		assert.ErrorIs(t, err, ErrMalformedMessage, "id %s", c.id)
	}
}
