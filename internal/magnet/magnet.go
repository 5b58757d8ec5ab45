// Package magnet provides support for parsing magnet links.
package magnet

import (
	"crypto/sha1" // nolint: gosec
	"encoding/base32"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"

	"github.com/multiformats/go-multihash"
)

// Magnet link contains the information to locate peers and download the
// torrent metadata from them.
type Magnet struct {
	InfoHash [20]byte
	Name     string
	Trackers []string
	Peers    []string
}

// New parses the string and returns a new Magnet.
func New(s string) (*Magnet, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "magnet" {
		return nil, errors.New("not a magnet link")
	}

	params := u.Query()

	xts := params["xt"]
	if len(xts) == 0 {
		return nil, errors.New("missing xt param")
	}

	var m Magnet
	m.InfoHash, err = parseInfoHash(xts[0])
	if err != nil {
		return nil, err
	}

	if names := params["dn"]; len(names) != 0 {
		m.Name = names[0]
	}
	m.Trackers = params["tr"]
	m.Peers = params["x.pe"]
	return &m, nil
}

func (m *Magnet) String() string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(hex.EncodeToString(m.InfoHash[:]))
	if m.Name != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(m.Name))
	}
	for _, tr := range m.Trackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tr))
	}
	for _, p := range m.Peers {
		b.WriteString("&x.pe=")
		b.WriteString(p)
	}
	return b.String()
}

// parseInfoHash parses the xt param. btih values must be 40 hex or 32
// base32 characters. btmh values must be a hex multihash with a 20-byte
// SHA-1 digest.
func parseInfoHash(xt string) ([20]byte, error) {
	var ih [20]byte
	var b []byte
	var err error
	switch {
	case strings.HasPrefix(xt, "urn:btih:"):
		xt = xt[9:]
		switch len(xt) {
		case 40:
			b, err = hex.DecodeString(xt)
		case 32:
			b, err = base32.StdEncoding.DecodeString(xt)
		default:
			return ih, errors.New("info hash must be 32 or 40 characters")
		}
		if err != nil {
			return ih, err
		}
	case strings.HasPrefix(xt, "urn:btmh:"):
		mh, err := multihash.FromHexString(xt[9:])
		if err != nil {
			return ih, err
		}
		dmh, err := multihash.Decode(mh)
		if err != nil {
			return ih, err
		}
		if dmh.Code != multihash.SHA1 || dmh.Length != sha1.Size {
			return ih, errors.New("multihash must be a 20-byte sha1")
		}
		b = dmh.Digest
	default:
		return ih, errors.New("invalid xt param: must start with \"urn:btih:\" or \"urn:btmh:\"")
	}
	copy(ih[:], b)
	return ih, nil
}
