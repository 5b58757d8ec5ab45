package extension

import (
	"bytes"
	"crypto/sha1" // nolint: gosec
	"errors"

	"github.com/sleetbt/sleet/internal/infodownloader"
	"github.com/sleetbt/sleet/internal/logger"
	"github.com/sleetbt/sleet/internal/peerprotocol"
)

var (
	// ErrMetadataSizeUnknown is returned when metadata is needed but the
	// peer did not advertise a metadata_size in its extended handshake.
	ErrMetadataSizeUnknown = errors.New("peer did not advertise metadata size")
	// ErrMetadataRejected is returned when the peer rejects a metadata
	// piece request.
	ErrMetadataRejected = errors.New("peer rejected metadata request")
	// ErrMetadataVerification is returned when the assembled metadata does
	// not hash to the info hash.
	ErrMetadataVerification = errors.New("assembled metadata failed hash verification")
)

// metadataRequester downloads torrent metadata from the peer with
// sequential ut_metadata piece requests (BEP 9).
type metadataRequester struct {
	infoHash     [20]byte
	outgoingID   uint8
	metadataSize uint32
	needInfo     bool
	log          logger.Logger
	dl           *infodownloader.InfoDownloader
	out          []peerprotocol.ExtensionMessage
}

func newMetadataRequester(p Params) *metadataRequester {
	r := &metadataRequester{
		infoHash:     p.InfoHash,
		outgoingID:   p.OutgoingID,
		metadataSize: p.MetadataSize,
		needInfo:     p.NeedInfo,
		log:          p.Log,
	}
	if p.NeedInfo && p.MetadataSize > 0 {
		r.dl = infodownloader.New(r)
	}
	return r
}

// MetadataSize implements infodownloader.Peer.
func (r *metadataRequester) MetadataSize() uint32 { return r.metadataSize }

// RequestMetadataPiece implements infodownloader.Peer by queueing an
// outgoing request message.
func (r *metadataRequester) RequestMetadataPiece(index uint32) {
	payload, err := peerprotocol.EncodeMetadataMessage(peerprotocol.MetadataMessage{
		Type:  peerprotocol.MetadataTypeRequest,
		Piece: index,
	})
	if err != nil {
		panic(err)
	}
	r.out = append(r.out, peerprotocol.ExtensionMessage{ExtendedID: r.outgoingID, Payload: payload})
}

func (r *metadataRequester) takeOut() []peerprotocol.ExtensionMessage {
	out := r.out
	r.out = nil
	return out
}

// OnActivated issues the first metadata piece request when metadata is needed.
func (r *metadataRequester) OnActivated() (Action, error) {
	if !r.needInfo {
		return Action{}, nil
	}
	if r.dl == nil {
		return Action{}, ErrMetadataSizeUnknown
	}
	r.dl.RequestBlocks(1)
	return Action{Send: r.takeOut()}, nil
}

// HandleMessage processes a ut_metadata message from the peer.
func (r *metadataRequester) HandleMessage(payload []byte) (Action, error) {
	msg, err := peerprotocol.DecodeMetadataMessage(payload)
	if err != nil {
		return Action{}, err
	}
	switch msg.Type {
	case peerprotocol.MetadataTypeRequest:
		// Serving metadata is not supported, reject the request.
		reject, err := peerprotocol.EncodeMetadataMessage(peerprotocol.MetadataMessage{
			Type:  peerprotocol.MetadataTypeReject,
			Piece: msg.Piece,
		})
		if err != nil {
			return Action{}, err
		}
		return Action{Send: []peerprotocol.ExtensionMessage{{ExtendedID: r.outgoingID, Payload: reject}}}, nil
	case peerprotocol.MetadataTypeReject:
		return Action{}, ErrMetadataRejected
	case peerprotocol.MetadataTypeData:
		if r.dl == nil {
			r.log.Debugln("unexpected metadata piece:", msg.Piece)
			return Action{}, nil
		}
		if err := r.dl.GotBlock(msg.Piece, msg.Data); err != nil {
			return Action{}, err
		}
		if !r.dl.Done() {
			r.dl.RequestBlocks(1)
			return Action{Send: r.takeOut()}, nil
		}
		hash := sha1.Sum(r.dl.Bytes) // nolint: gosec
		if !bytes.Equal(hash[:], r.infoHash[:]) {
			return Action{}, ErrMetadataVerification
		}
		return Action{Notify: MetadataComplete{Bytes: r.dl.Bytes}}, nil
	default:
		// Unknown message types inside the extension payload are tolerated.
		return Action{}, nil
	}
}
