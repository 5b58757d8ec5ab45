// Package metainfo provides support for reading torrent files.
package metainfo

import (
	"errors"
	"io"
	"strings"

	"github.com/zeebo/bencode"
)

// MetaInfo is a parsed torrent file.
type MetaInfo struct {
	Info     Info
	Trackers []string
}

// New reads a torrent from a bencoded stream.
func New(r io.Reader) (*MetaInfo, error) {
	var t struct {
		Info         bencode.RawMessage `bencode:"info"`
		Announce     bencode.RawMessage `bencode:"announce"`
		AnnounceList bencode.RawMessage `bencode:"announce-list"`
	}
	err := bencode.NewDecoder(r).Decode(&t)
	if err != nil {
		return nil, err
	}
	if len(t.Info) == 0 {
		return nil, errors.New("no info dict in torrent file")
	}
	var ret MetaInfo
	info, err := NewInfo(t.Info)
	if err != nil {
		return nil, err
	}
	ret.Info = *info
	if len(t.AnnounceList) > 0 {
		var tiers [][]string
		err = bencode.DecodeBytes(t.AnnounceList, &tiers)
		if err == nil {
			for _, tier := range tiers {
				for _, tr := range tier {
					if isTrackerSupported(tr) {
						ret.Trackers = append(ret.Trackers, tr)
					}
				}
			}
		}
	}
	if len(ret.Trackers) == 0 {
		var s string
		err = bencode.DecodeBytes(t.Announce, &s)
		if err == nil && isTrackerSupported(s) {
			ret.Trackers = append(ret.Trackers, s)
		}
	}
	return &ret, nil
}

func isTrackerSupported(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
