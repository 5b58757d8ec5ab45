package torrent

// Stats is a snapshot of the torrent's progress counters.
type Stats struct {
	Name string
	// HaveInfo is false while the metadata is still being downloaded.
	HaveInfo      bool
	BytesComplete int64
	BytesTotal    int64
	// BytesWasted counts discarded block data, from duplicates and hash
	// failures.
	BytesWasted int64
	// DownloadRate is the 1-minute moving average in bytes per second.
	DownloadRate float64
	Peers        int
}

type statsRequest struct {
	resp chan Stats
}

func (t *Torrent) stats() Stats {
	s := Stats{
		Name:         t.name,
		HaveInfo:     t.info != nil,
		BytesWasted:  t.bytesWasted.Count(),
		DownloadRate: t.downloadSpeed.Rate1(),
		Peers:        len(t.peers),
	}
	if t.manager != nil {
		s.BytesComplete = t.manager.BytesComplete()
		s.BytesTotal = t.info.TotalLength
	}
	return s
}

// Stats returns a snapshot of the torrent's progress counters.
func (t *Torrent) Stats() Stats {
	req := &statsRequest{resp: make(chan Stats, 1)}
	select {
	case t.statsC <- req:
		return <-req.resp
	case <-t.doneC:
		// The run loop has stopped, fields are no longer mutated.
		return t.stats()
	}
}
