package torrent

import (
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	yaml "gopkg.in/yaml.v2"
)

// Config for downloads.
type Config struct {
	// Max number of blocks requested from a peer but not received yet.
	RequestQueueLength int `yaml:"request-queue-length"`
	// Time to wait for a requested block before the request is released so
	// another peer can pick it up.
	RequestTimeout time.Duration `yaml:"request-timeout"`
	// Max number of pieces downloaded in parallel.
	ParallelPieceDownloads int `yaml:"parallel-piece-downloads"`
	// Max number of outgoing connections to dial.
	MaxPeerDial int `yaml:"max-peer-dial"`
	// Time to wait for a TCP connection to open.
	PeerConnectTimeout time.Duration `yaml:"peer-connect-timeout"`
	// Time to wait for the BitTorrent handshake to complete.
	PeerHandshakeTimeout time.Duration `yaml:"peer-handshake-timeout"`
	// Download rate limit in bytes per second. Zero means unlimited.
	DownloadRateLimit int64 `yaml:"download-rate-limit"`
	// Port number advertised to trackers.
	Port uint16 `yaml:"port"`
}

// DefaultConfig for a new Torrent.
var DefaultConfig = Config{
	RequestQueueLength:     20,
	RequestTimeout:         20 * time.Second,
	ParallelPieceDownloads: 5,
	MaxPeerDial:            25,
	PeerConnectTimeout:     5 * time.Second,
	PeerHandshakeTimeout:   10 * time.Second,
	DownloadRateLimit:      0,
	Port:                   6881,
}

// LoadConfig reads the YAML file at path over the default values.
// "~" in path is expanded to the user's home directory.
func LoadConfig(path string) (*Config, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig
	if err = yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
