// Package extension implements the extension-protocol dispatch mechanism
// (BEP 10). Handlers are constructed per connection after the extended
// handshake, keyed by the message id negotiated for their extension name.
package extension

import (
	"github.com/sleetbt/sleet/internal/logger"
	"github.com/sleetbt/sleet/internal/peerprotocol"
)

// Action is the outcome of a handler callback. Zero value means do nothing.
type Action struct {
	// Send contains messages to queue on this connection.
	Send []peerprotocol.ExtensionMessage
	// Notify is an extension-specific message for the manager, nil if none.
	Notify interface{}
}

// Handler processes the messages of a single negotiated extension on a
// single connection.
type Handler interface {
	// HandleMessage processes an incoming extension payload addressed to
	// this handler. A returned error is fatal to the connection only.
	HandleMessage(payload []byte) (Action, error)
	// OnActivated runs once when the connection enters its active state,
	// after the extended handshake completed.
	OnActivated() (Action, error)
}

// Params carries the per-connection values available to handler constructors.
type Params struct {
	InfoHash [20]byte
	// OutgoingID is the id the peer assigned for this extension in its
	// handshake. Outgoing messages must carry it.
	OutgoingID uint8
	// MetadataSize is the metadata_size value from the peer's handshake,
	// zero if absent.
	MetadataSize uint32
	// NeedInfo is true when we started from a magnet link and the torrent
	// metadata is still unknown.
	NeedInfo bool
	Log      logger.Logger
}

// NewHandler constructs the handler for a mutually supported extension name.
// Returns nil for unrecognized names.
func NewHandler(name string, p Params) Handler {
	switch name {
	case peerprotocol.ExtensionKeyMetadata:
		return newMetadataRequester(p)
	default:
		return nil
	}
}

// MetadataComplete is the manager notification sent when the full torrent
// metadata has been assembled and hash-verified.
type MetadataComplete struct {
	Bytes []byte
}
