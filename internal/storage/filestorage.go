package storage

import (
	"os"
	"path/filepath"
)

// FileStorage implements Storage using files on disk under a destination
// directory.
type FileStorage struct {
	dest string
}

// NewFileStorage returns a FileStorage rooted at dest.
func NewFileStorage(dest string) (*FileStorage, error) {
	dest, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	return &FileStorage{dest: dest}, nil
}

var _ Storage = (*FileStorage)(nil)

// Dest returns the destination directory.
func (s *FileStorage) Dest() string { return s.dest }

// Open opens the named file under dest, creating it and its containing
// directories if necessary, and sizes it to size.
func (s *FileStorage) Open(name string, size int64) (f File, exists bool, err error) {
	name = filepath.Join(s.dest, filepath.Clean(name))

	err = os.MkdirAll(filepath.Dir(name), os.ModeDir|0o750)
	if err != nil {
		return
	}

	var of *os.File
	defer func() {
		if err != nil && of != nil {
			_ = of.Close()
		}
	}()

	const mode = 0o640
	of, err = os.OpenFile(name, os.O_RDWR, mode) // nolint: gosec
	if os.IsNotExist(err) {
		of, err = os.OpenFile(name, os.O_RDWR|os.O_CREATE, mode) // nolint: gosec
		if err != nil {
			return
		}
		f = of
		err = of.Truncate(size)
		return
	}
	if err != nil {
		return
	}
	f = of
	exists = true
	fi, err := of.Stat()
	if err != nil {
		return
	}
	if fi.Size() != size {
		err = of.Truncate(size)
	}
	return
}
