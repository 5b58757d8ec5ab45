// Package torrent provides a BitTorrent client for downloading single
// torrents from HTTP trackers, with support for magnet links and resuming
// interrupted downloads.
package torrent

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"

	"github.com/juju/ratelimit"
	"github.com/rcrowley/go-metrics"

	"github.com/sleetbt/sleet/internal/filesection"
	"github.com/sleetbt/sleet/internal/logger"
	"github.com/sleetbt/sleet/internal/metainfo"
	"github.com/sleetbt/sleet/internal/piecemanager"
	"github.com/sleetbt/sleet/internal/piecepicker"
	"github.com/sleetbt/sleet/internal/resumer"
	"github.com/sleetbt/sleet/internal/storage"
	"github.com/sleetbt/sleet/internal/tracker"
)

// Version of the client. Sent to peers in the extended handshake.
var Version = "0.1.0"

// peerIDPrefix is the Azureus-style client identifier at the start of our
// peer id.
const peerIDPrefix = "-SL0001-"

// Options for creating a new Torrent.
type Options struct {
	// Info is the parsed torrent metadata. Nil when starting from a magnet
	// link, in which case the metadata is downloaded from peers.
	Info *metainfo.Info
	// InfoHash identifies the torrent.
	InfoHash [20]byte
	// Trackers in preference order. Only the first one is announced to.
	Trackers []string
	// FixedPeers are connected directly without a tracker announce.
	FixedPeers []*net.TCPAddr
	// Name of the torrent, used in log messages until the metadata is known.
	Name string
	// Dest is the directory the downloaded files are written into.
	Dest string
	// Resumer persists the download state. Nil disables resume support.
	Resumer resumer.Resumer
	// OnlyPieces restricts the download to the given pieces. Each verified
	// piece is written to PieceWriter at offset zero instead of the
	// torrent's files.
	OnlyPieces  []uint32
	PieceWriter io.WriterAt
	// Config overrides DefaultConfig when non-nil.
	Config *Config
}

// Torrent downloads a single torrent. All torrent state is owned by the
// run goroutine and other goroutines communicate with it over channels.
type Torrent struct {
	config   Config
	log      logger.Logger
	peerID   [20]byte
	infoHash [20]byte
	name     string
	dest     string

	tracker     tracker.Tracker
	fixedPeers  []*net.TCPAddr
	res         resumer.Resumer
	onlyPieces  map[uint32]struct{}
	pieceWriter io.WriterAt

	info    *metainfo.Info
	picker  *piecepicker.PiecePicker
	manager *piecemanager.Manager
	files   []filesection.FileInfo
	closers []io.Closer

	bucket *ratelimit.Bucket

	peers   map[*peer]struct{}
	addrs   []*net.TCPAddr
	dialing int
	known   map[string]struct{}

	downloadSpeed metrics.Meter
	bytesWasted   metrics.Counter

	messages     chan peerMessage
	peerDoneC    chan *peer
	newPeersC    chan []*net.TCPAddr
	dialResultC  chan *dialResult
	announceReqC chan *announceStateRequest
	statsC       chan *statsRequest

	completed bool
	// completedC is closed when the download completes, to wake announcers
	// for the completed event.
	completedC   chan struct{}
	lastError    error
	errDelivered bool
	closeC       chan struct{}
	doneC        chan struct{}
	errC         chan error
}

// New creates a Torrent from the options. The returned torrent is inactive
// until Start is called.
func New(o Options) (*Torrent, error) {
	cfg := DefaultConfig
	if o.Config != nil {
		cfg = *o.Config
	}
	name := o.Name
	if name == "" && o.Info != nil {
		name = o.Info.Name
	}
	t := &Torrent{
		config:        cfg,
		log:           logger.New("torrent " + name),
		infoHash:      o.InfoHash,
		name:          name,
		dest:          o.Dest,
		fixedPeers:    o.FixedPeers,
		res:           o.Resumer,
		pieceWriter:   o.PieceWriter,
		peers:         make(map[*peer]struct{}),
		known:         make(map[string]struct{}),
		downloadSpeed: metrics.NewMeter(),
		bytesWasted:   metrics.NewCounter(),
		messages:      make(chan peerMessage),
		peerDoneC:     make(chan *peer),
		newPeersC:     make(chan []*net.TCPAddr),
		dialResultC:   make(chan *dialResult),
		announceReqC:  make(chan *announceStateRequest),
		statsC:        make(chan *statsRequest),
		completedC:    make(chan struct{}),
		closeC:        make(chan struct{}),
		doneC:         make(chan struct{}),
		errC:          make(chan error, 1),
	}
	if len(o.OnlyPieces) > 0 {
		t.onlyPieces = make(map[uint32]struct{}, len(o.OnlyPieces))
		for _, i := range o.OnlyPieces {
			t.onlyPieces[i] = struct{}{}
		}
		if t.pieceWriter == nil {
			return nil, errors.New("piece writer is required when only pieces are selected")
		}
	}
	copy(t.peerID[:], peerIDPrefix)
	if _, err := rand.Read(t.peerID[len(peerIDPrefix):]); err != nil { // nolint: gosec
		return nil, err
	}
	if len(o.Trackers) > 0 {
		t.tracker = tracker.NewHTTPTracker(o.Trackers[0])
	}
	if cfg.DownloadRateLimit > 0 {
		t.bucket = ratelimit.NewBucketWithRate(float64(cfg.DownloadRateLimit), cfg.DownloadRateLimit)
	}

	var spec *resumer.Spec
	if t.res != nil {
		var err error
		spec, err = t.res.Read()
		if err != nil {
			return nil, err
		}
		if spec != nil {
			if !bytes.Equal(spec.InfoHash, t.infoHash[:]) {
				return nil, errors.New("resume file belongs to another torrent")
			}
			if o.Info == nil && len(spec.Info) > 0 {
				o.Info, err = metainfo.NewInfo(spec.Info)
				if err != nil {
					return nil, fmt.Errorf("cannot parse resume info: %s", err)
				}
			}
		} else {
			err = t.res.Write(&resumer.Spec{InfoHash: t.infoHash[:]})
			if err != nil {
				return nil, err
			}
		}
	}
	if o.Info != nil {
		if err := t.setInfo(o.Info, spec); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// setInfo prepares the piece state and the destination files once the
// torrent metadata is known.
func (t *Torrent) setInfo(info *metainfo.Info, spec *resumer.Spec) error {
	t.info = info
	if t.name == "" {
		t.name = info.Name
		t.log = logger.New("torrent " + t.name)
	}
	t.picker = piecepicker.New(info.NumPieces)
	var picker piecemanager.Picker = t.picker
	if t.onlyPieces != nil {
		picker = &filteredPicker{PiecePicker: t.picker, allowed: t.onlyPieces}
	}
	t.manager = piecemanager.New(piecemanager.Params{
		NumPieces:      info.NumPieces,
		PieceLength:    info.PieceLength,
		TotalLength:    info.TotalLength,
		Hashes:         info.Pieces,
		Picker:         picker,
		Capacity:       t.config.ParallelPieceDownloads,
		RequestTimeout: t.config.RequestTimeout,
	})
	if t.pieceWriter == nil {
		if err := t.openFiles(info); err != nil {
			return err
		}
	}
	if spec != nil && len(spec.Bitfield) > 0 {
		var pieces []piecemanager.PieceSnapshot
		if len(spec.Pieces) > 0 {
			if err := json.Unmarshal(spec.Pieces, &pieces); err != nil {
				return fmt.Errorf("cannot parse resume pieces: %s", err)
			}
		}
		if err := t.manager.Load(spec.Bitfield, pieces); err != nil {
			return err
		}
	}
	return nil
}

func (t *Torrent) openFiles(info *metainfo.Info) error {
	sto, err := storage.NewFileStorage(t.dest)
	if err != nil {
		return err
	}
	for _, fd := range info.GetFiles() {
		elems := fd.Path
		if info.MultiFile() {
			elems = append([]string{info.Name}, elems...)
		}
		f, _, err := sto.Open(filepath.Join(elems...), fd.Length)
		if err != nil {
			return err
		}
		t.files = append(t.files, filesection.FileInfo{File: f, Length: fd.Length})
		t.closers = append(t.closers, f)
	}
	return nil
}

// InfoHash returns the identifier of the torrent.
func (t *Torrent) InfoHash() [20]byte { return t.infoHash }

// Name returns the display name of the torrent.
func (t *Torrent) Name() string { return t.name }

// Start begins announcing and downloading.
func (t *Torrent) Start() {
	go t.run()
}

// ErrC returns the channel that delivers the terminal result of the
// download. A nil value means the download completed.
func (t *Torrent) ErrC() <-chan error { return t.errC }

// Close stops the download and releases all resources.
func (t *Torrent) Close() {
	close(t.closeC)
	<-t.doneC
}

// filteredPicker restricts piece selection to an allowed set.
type filteredPicker struct {
	*piecepicker.PiecePicker
	allowed map[uint32]struct{}
}

func (p *filteredPicker) PickAdmissible(n int, queued func(index uint32) bool) []uint32 {
	picked := p.PiecePicker.PickAdmissible(int(p.PiecePicker.NumPieces()), queued)
	filtered := picked[:0]
	for _, i := range picked {
		if _, ok := p.allowed[i]; ok {
			filtered = append(filtered, i)
		}
	}
	if len(filtered) > n {
		filtered = filtered[:n]
	}
	return filtered
}
