package btconn

import "errors"

var (
	// ErrInvalidProtocol is returned when the peer does not speak the
	// BitTorrent protocol.
	ErrInvalidProtocol = errors.New("invalid protocol identifier")
	// ErrInvalidInfoHash is returned when the info hash in the peer's
	// handshake does not match ours.
	ErrInvalidInfoHash = errors.New("invalid info hash")
	// ErrOwnConnection is returned when we have connected to ourselves.
	ErrOwnConnection = errors.New("dropped own connection")
)
