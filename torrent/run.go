package torrent

import (
	"time"
)

// run is the torrent event loop. It owns all torrent state. Reader
// goroutines, dialers and announcers communicate with it over channels.
func (t *Torrent) run() {
	defer close(t.doneC)
	defer t.cleanup()

	t.log.Infoln("torrent started")
	if t.tracker != nil {
		go t.announcer(t.tracker)
	}
	if len(t.fixedPeers) > 0 {
		t.handleNewAddrs(t.fixedPeers)
	}
	t.checkCompletion()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-t.closeC:
			return
		case pm := <-t.messages:
			t.handlePeerMessage(pm)
		case pe := <-t.peerDoneC:
			t.closePeer(pe)
		case addrs := <-t.newPeersC:
			t.handleNewAddrs(addrs)
		case res := <-t.dialResultC:
			t.handleDialResult(res)
		case req := <-t.announceReqC:
			req.resp <- t.announceState()
		case req := <-t.statsC:
			req.resp <- t.stats()
		case <-ticker.C:
			// Re-run scheduling so requests expired by the timeout are
			// reassigned even when no message arrives.
			t.scheduleAll()
		}
	}
}

func (t *Torrent) cleanup() {
	for pe := range t.peers {
		pe.conn.Close()
	}
	t.saveState()
	for _, c := range t.closers {
		_ = c.Close()
	}
	if t.res != nil {
		_ = t.res.Close()
	}
	t.downloadSpeed.Stop()
	t.log.Infoln("torrent stopped")
}

// fail records a fatal error and delivers it on the error channel.
func (t *Torrent) fail(err error) {
	t.log.Errorln(err)
	if !t.errDelivered {
		t.lastError = err
		t.errDelivered = true
		t.errC <- err
	}
}
