// Package boltdbresumer provides a Resumer implementation that uses a Bolt
// database file as storage.
package boltdbresumer

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/sleetbt/sleet/internal/resumer"
)

var bucketName = []byte("resume")

// Keys for the persistent storage.
var Keys = struct {
	InfoHash []byte
	Info     []byte
	Bitfield []byte
	Pieces   []byte
}{
	InfoHash: []byte("info_hash"),
	Info:     []byte("info"),
	Bitfield: []byte("bitfield"),
	Pieces:   []byte("pieces"),
}

// Resumer saves and loads the state of a download in a BoltDB database file.
type Resumer struct {
	db *bolt.DB
}

// New opens the database file at path, creating it if necessary.
func New(path string) (*Resumer, error) {
	db, err := bolt.Open(path, 0o640, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err2 := tx.CreateBucketIfNotExists(bucketName)
		return err2
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Resumer{db: db}, nil
}

// Write saves the complete spec.
func (r *Resumer) Write(spec *resumer.Spec) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if err := b.Put(Keys.InfoHash, spec.InfoHash); err != nil {
			return err
		}
		if err := b.Put(Keys.Info, spec.Info); err != nil {
			return err
		}
		if err := b.Put(Keys.Bitfield, spec.Bitfield); err != nil {
			return err
		}
		return b.Put(Keys.Pieces, spec.Pieces)
	})
}

// WriteInfo saves only the info dictionary.
func (r *Resumer) WriteInfo(info []byte) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(Keys.Info, info)
	})
}

// WriteState saves only the verified bitfield and the piece snapshots.
func (r *Resumer) WriteState(bitfield, pieces []byte) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if err := b.Put(Keys.Bitfield, bitfield); err != nil {
			return err
		}
		return b.Put(Keys.Pieces, pieces)
	})
}

// Read loads the saved spec. Returns nil when the database holds no state.
func (r *Resumer) Read() (*resumer.Spec, error) {
	var spec *resumer.Spec
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		value := b.Get(Keys.InfoHash)
		if value == nil {
			return nil
		}
		spec = new(resumer.Spec)
		spec.InfoHash = append([]byte(nil), value...)
		if value = b.Get(Keys.Info); value != nil {
			spec.Info = append([]byte(nil), value...)
		}
		if value = b.Get(Keys.Bitfield); value != nil {
			spec.Bitfield = append([]byte(nil), value...)
		}
		if value = b.Get(Keys.Pieces); value != nil {
			spec.Pieces = append([]byte(nil), value...)
		}
		return nil
	})
	return spec, err
}

// Close releases the database file.
func (r *Resumer) Close() error {
	return r.db.Close()
}
