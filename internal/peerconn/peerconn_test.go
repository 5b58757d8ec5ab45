package peerconn

import (
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/sleetbt/sleet/internal/logger"
	"github.com/sleetbt/sleet/internal/peerprotocol"
	"github.com/stretchr/testify/assert"
)

// Messages written by one side must be decoded identically on the other side.
func TestSendReceive(t *testing.T) {
	defer leaktest.Check(t)()

	c1, c2 := net.Pipe()
	a := New(c1, logger.New("a"), nil)
	b := New(c2, logger.New("b"), nil)
	go a.Run()
	go b.Run()

	sent := []peerprotocol.Message{
		peerprotocol.UnchokeMessage{},
		peerprotocol.HaveMessage{Index: 7},
		peerprotocol.BitfieldMessage{Data: []byte{0xc0}},
		peerprotocol.RequestMessage{Index: 1, Begin: 0, Length: 16384},
		peerprotocol.PieceMessage{Index: 1, Begin: 0, Data: []byte("data")},
		peerprotocol.ExtensionMessage{ExtendedID: 0, Payload: []byte("d1:md11:ut_metadatai1eee")},
	}
	for _, msg := range sent {
		a.SendMessage(msg)
	}

	for _, want := range sent {
		select {
		case got := <-b.Messages():
			assert.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for message")
		}
	}

	a.Close()
	b.Close()
}
