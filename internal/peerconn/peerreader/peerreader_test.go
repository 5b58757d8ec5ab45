package peerreader

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleetbt/sleet/internal/logger"
	"github.com/sleetbt/sleet/internal/peerprotocol"
)

// A data message of the metadata extension carries a full 16 KiB metadata
// piece plus its bencoded header, making its frame larger than any piece
// frame. The reader must deliver it intact.
func TestReadMetadataDataFrame(t *testing.T) {
	defer leaktest.Check(t)()

	c1, c2 := net.Pipe()
	p := New(c2, logger.New("reader"), nil)
	go p.Run()

	payload, err := peerprotocol.EncodeMetadataMessage(peerprotocol.MetadataMessage{
		Type:      peerprotocol.MetadataTypeData,
		Piece:     0,
		TotalSize: 2 * 16 * 1024,
		Data:      make([]byte, 16*1024),
	})
	require.NoError(t, err)

	frame := make([]byte, 4+1+1+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(2+len(payload)))
	frame[4] = byte(peerprotocol.Extension)
	frame[5] = 2
	copy(frame[6:], payload)
	go func() {
		_, _ = c1.Write(frame)
	}()

	select {
	case msg := <-p.Messages():
		em, ok := msg.(peerprotocol.ExtensionMessage)
		require.True(t, ok)
		assert.EqualValues(t, 2, em.ExtendedID)
		mm, err := peerprotocol.DecodeMetadataMessage(em.Payload)
		require.NoError(t, err)
		assert.Equal(t, peerprotocol.MetadataTypeData, mm.Type)
		assert.Len(t, mm.Data, 16*1024)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	p.Stop()
	c1.Close()
	<-p.Done()
}

func TestOversizedPieceFrameRejected(t *testing.T) {
	defer leaktest.Check(t)()

	c1, c2 := net.Pipe()
	defer c1.Close()
	p := New(c2, logger.New("reader"), nil)
	go p.Run()

	var header [5]byte
	binary.BigEndian.PutUint32(header[:], 1+maxPiecePayload+1)
	header[4] = byte(peerprotocol.Piece)
	go func() {
		_, _ = c1.Write(header[:])
	}()

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not reject the frame")
	}
}
