// Package filesection maps the contiguous byte stream of a torrent onto its
// files.
package filesection

import "io"

// Section of a file.
type Section struct {
	File   ReadWriterAt
	Offset int64
	Length int64
}

// ReadWriterAt combines the positional read and write interfaces.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// Sections is contiguous sections of files. Piece hashes in the torrent are
// calculated over the concatenation of all files, so a piece may span file
// boundaries.
type Sections []Section

// FileInfo describes one open file of the torrent, in torrent order.
type FileInfo struct {
	File   ReadWriterAt
	Length int64
}

// Split returns the sections covering [offset, offset+length) of the
// concatenated files.
func Split(files []FileInfo, offset, length int64) Sections {
	var sections Sections
	for _, f := range files {
		if offset >= f.Length {
			offset -= f.Length
			continue
		}
		n := f.Length - offset
		if n > length {
			n = length
		}
		sections = append(sections, Section{File: f.File, Offset: offset, Length: n})
		length -= n
		offset = 0
		if length == 0 {
			break
		}
	}
	return sections
}

// ReadFull reads the full contents of the sections into buf.
func (s Sections) ReadFull(buf []byte) error {
	readers := make([]io.Reader, len(s))
	for i := range s {
		readers[i] = io.NewSectionReader(s[i].File, s[i].Offset, s[i].Length)
	}
	_, err := io.ReadFull(io.MultiReader(readers...), buf)
	return err
}

// Write writes the bytes in p into the files in s. Used when writing a
// verified piece. len(p) must equal the total length of the sections.
func (s Sections) Write(p []byte) (n int, err error) {
	var m int
	for _, sec := range s {
		m, err = sec.File.WriteAt(p[:sec.Length], sec.Offset)
		n += m
		if err != nil {
			return
		}
		if int64(m) < sec.Length {
			err = io.ErrShortWrite
			return
		}
		p = p[m:]
	}
	return
}
