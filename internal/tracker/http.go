package tracker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/zeebo/bencode"

	"github.com/sleetbt/sleet/internal/logger"
)

var httpTimeout = 30 * time.Second

// HTTPTracker announces to a tracker over the HTTP protocol.
type HTTPTracker struct {
	rawURL string
	log    logger.Logger
	http   *http.Client
}

// NewHTTPTracker returns a tracker client for the announce URL.
func NewHTTPTracker(rawURL string) *HTTPTracker {
	return &HTTPTracker{
		rawURL: rawURL,
		log:    logger.New("tracker " + rawURL),
		http: &http.Client{
			Timeout: httpTimeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
	}
}

// URL implements Tracker.
func (t *HTTPTracker) URL() string { return t.rawURL }

// Announce implements Tracker. Network errors are retried with exponential
// backoff until the context is done. Errors sent by the tracker itself are
// not retried.
func (t *HTTPTracker) Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error) {
	var resp *AnnounceResponse
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.Retry(func() error {
		var err error
		resp, err = t.announce(ctx, req)
		if err != nil {
			if _, ok := err.(*Error); ok {
				return backoff.Permanent(err)
			}
			t.log.Debugln("announce error:", err)
		}
		return err
	}, bo)
	return resp, err
}

func (t *HTTPTracker) announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error) {
	u, err := url.Parse(t.rawURL)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	q := u.Query()
	q.Set("info_hash", string(req.InfoHash[:]))
	q.Set("peer_id", string(req.PeerID[:]))
	q.Set("port", strconv.FormatUint(uint64(req.Port), 10))
	q.Set("uploaded", strconv.FormatInt(req.Uploaded, 10))
	q.Set("downloaded", strconv.FormatInt(req.Downloaded, 10))
	q.Set("left", strconv.FormatInt(req.Left, 10))
	q.Set("compact", "1")
	q.Set("no_peer_id", "1")
	q.Set("numwant", strconv.Itoa(NumWant))
	if req.Event != EventNone {
		q.Set("event", req.Event.String())
	}
	u.RawQuery = q.Encode()
	t.log.Debugf("making request to: %q", u.String())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	httpResp, err := t.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("status not 200 OK (status: %d body: %q)", httpResp.StatusCode, string(data))
	}

	var response announceResponse
	if err = bencode.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, backoff.Permanent(err)
	}
	if response.WarningMessage != "" {
		t.log.Warning(response.WarningMessage)
	}
	if response.FailureReason != "" {
		return nil, &Error{FailureReason: response.FailureReason}
	}

	// Peers may be in binary or dictionary model.
	var peers []*net.TCPAddr
	if len(response.Peers) > 0 {
		if response.Peers[0] == 'l' {
			peers, err = parsePeersDictionary(response.Peers)
		} else {
			var b []byte
			err = bencode.DecodeBytes(response.Peers, &b)
			if err == nil {
				peers, err = DecodePeersCompact(b)
			}
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
	}

	return &AnnounceResponse{
		Interval: time.Duration(response.Interval) * time.Second,
		Seeders:  response.Complete,
		Leechers: response.Incomplete,
		Peers:    peers,
	}, nil
}

type announceResponse struct {
	FailureReason  string             `bencode:"failure reason"`
	WarningMessage string             `bencode:"warning message"`
	Interval       int32              `bencode:"interval"`
	MinInterval    int32              `bencode:"min interval"`
	TrackerID      string             `bencode:"tracker id"`
	Complete       int32              `bencode:"complete"`
	Incomplete     int32              `bencode:"incomplete"`
	Peers          bencode.RawMessage `bencode:"peers"`
}

func parsePeersDictionary(b bencode.RawMessage) ([]*net.TCPAddr, error) {
	var peers []struct {
		IP   string `bencode:"ip"`
		Port uint16 `bencode:"port"`
	}
	if err := bencode.DecodeBytes(b, &peers); err != nil {
		return nil, err
	}
	addrs := make([]*net.TCPAddr, len(peers))
	for i, p := range peers {
		addrs[i] = &net.TCPAddr{IP: net.ParseIP(p.IP), Port: int(p.Port)}
	}
	return addrs, nil
}
