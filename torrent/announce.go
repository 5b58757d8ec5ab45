package torrent

import (
	"context"
	"time"

	"github.com/sleetbt/sleet/internal/tracker"
)

var stoppedEventTimeout = 5 * time.Second

// announceState is the transfer progress reported to trackers.
type announceState struct {
	downloaded int64
	left       int64
	completed  bool
}

type announceStateRequest struct {
	resp chan announceState
}

func (t *Torrent) announceState() announceState {
	st := announceState{completed: t.completed}
	if t.manager != nil {
		st.downloaded = t.manager.BytesComplete()
		st.left = t.info.TotalLength - st.downloaded
	}
	return st
}

func (t *Torrent) getAnnounceState() (announceState, bool) {
	req := &announceStateRequest{resp: make(chan announceState, 1)}
	select {
	case t.announceReqC <- req:
		return <-req.resp, true
	case <-t.closeC:
		return announceState{}, false
	}
}

// announcer announces to a single tracker periodically. One goroutine per
// tracker.
func (t *Torrent) announcer(tr tracker.Tracker) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-t.closeC
		cancel()
	}()

	event := tracker.EventStarted
	sentCompleted := false
	wakeC := t.completedC
	interval := time.Minute
	for {
		st, ok := t.getAnnounceState()
		if !ok {
			break
		}
		if st.completed && !sentCompleted {
			event = tracker.EventCompleted
		}
		resp, err := tr.Announce(ctx, tracker.AnnounceRequest{
			InfoHash:   t.infoHash,
			PeerID:     t.peerID,
			Port:       t.config.Port,
			Downloaded: st.downloaded,
			Left:       st.left,
			Event:      event,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			t.log.Errorln("announce error:", err)
		} else {
			if event == tracker.EventCompleted {
				sentCompleted = true
				wakeC = nil
			}
			event = tracker.EventNone
			if resp.Interval > 0 {
				interval = resp.Interval
			}
			if len(resp.Peers) > 0 {
				select {
				case t.newPeersC <- resp.Peers:
				case <-t.closeC:
				}
			}
		}
		select {
		case <-time.After(interval):
		case <-wakeC:
			wakeC = nil
		case <-t.closeC:
		}
		select {
		case <-t.closeC:
			goto stopped
		default:
		}
	}
stopped:
	ctx2, cancel2 := context.WithTimeout(context.Background(), stoppedEventTimeout)
	defer cancel2()
	_, _ = tr.Announce(ctx2, tracker.AnnounceRequest{
		InfoHash: t.infoHash,
		PeerID:   t.peerID,
		Port:     t.config.Port,
		Event:    tracker.EventStopped,
	})
}
