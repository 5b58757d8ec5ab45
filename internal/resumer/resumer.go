// Package resumer contains the interface for saving and loading the state
// of a download so it can continue after a restart.
package resumer

// Spec is the persisted state of a download.
type Spec struct {
	// InfoHash identifies the torrent. A resume file written for another
	// torrent must not be loaded.
	InfoHash []byte
	// Info is the raw bencoded info dictionary, saved once known so magnet
	// downloads do not fetch the metadata again.
	Info []byte
	// Bitfield marks the verified pieces.
	Bitfield []byte
	// Pieces is the JSON-encoded snapshots of partially downloaded pieces.
	Pieces []byte
}

// Resumer saves and loads the state of a single download.
type Resumer interface {
	// Write saves the complete spec, replacing any previous state.
	Write(spec *Spec) error
	// WriteInfo saves only the info dictionary.
	WriteInfo(info []byte) error
	// WriteState saves only the verified bitfield and the piece snapshots.
	WriteState(bitfield, pieces []byte) error
	// Read loads the saved spec. Returns nil spec when nothing was saved.
	Read() (*Spec, error)
	Close() error
}
