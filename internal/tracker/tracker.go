// Package tracker provides support for announcing torrents to HTTP trackers.
package tracker

import (
	"context"
	"net"
	"time"
)

// NumWant is the number of peers requested from the tracker.
const NumWant = 50

// Tracker is the peer discovery source of a torrent.
type Tracker interface {
	// Announce the transfer to the tracker. Should be called periodically
	// with the interval returned in AnnounceResponse, and on specific
	// events.
	Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error)

	// URL of the tracker.
	URL() string
}

// AnnounceRequest is the state of the transfer sent in an announce.
type AnnounceRequest struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
}

// AnnounceResponse is the tracker's reply to an announce.
type AnnounceResponse struct {
	Interval time.Duration
	Seeders  int32
	Leechers int32
	Peers    []*net.TCPAddr
}

// Error is a failure reason sent by the tracker in an announce response.
type Error struct {
	FailureReason string
}

func (e *Error) Error() string { return e.FailureReason }

// Event type that is sent in an announce request.
type Event int32

// Tracker announce events.
const (
	EventNone Event = iota
	EventCompleted
	EventStarted
	EventStopped
)

var eventNames = [...]string{
	"empty",
	"completed",
	"started",
	"stopped",
}

// String returns the name of the event as represented in the HTTP tracker
// protocol.
func (e Event) String() string {
	return eventNames[e]
}
