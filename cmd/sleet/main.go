// Command sleet is a BitTorrent client for downloading single torrents
// from the command line.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/log"
	"github.com/urfave/cli"
	"github.com/zeebo/bencode"

	"github.com/sleetbt/sleet/internal/btconn"
	"github.com/sleetbt/sleet/internal/logger"
	"github.com/sleetbt/sleet/internal/magnet"
	"github.com/sleetbt/sleet/internal/metainfo"
	"github.com/sleetbt/sleet/internal/resumer/boltdbresumer"
	"github.com/sleetbt/sleet/internal/tracker"
	"github.com/sleetbt/sleet/torrent"
)

var cfg = torrent.DefaultConfig

func main() {
	app := cli.NewApp()
	app.Name = "sleet"
	app.Usage = "BitTorrent client"
	app.Version = torrent.Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "read config from `FILE`",
			Value: "~/.sleet.yaml",
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "enable debug log",
		},
	}
	app.Before = handleBeforeCommand
	app.Commands = []cli.Command{
		{
			Name:      "decode",
			Usage:     "decode a bencoded value and print it as JSON",
			ArgsUsage: "<bencoded string>",
			Action:    handleDecode,
		},
		{
			Name:      "info",
			Usage:     "print metadata of a torrent file",
			ArgsUsage: "<torrent file>",
			Action:    handleInfo,
		},
		{
			Name:      "peers",
			Usage:     "print peers from the torrent's tracker",
			ArgsUsage: "<torrent file>",
			Action:    handlePeers,
		},
		{
			Name:      "handshake",
			Usage:     "do a protocol handshake with a peer",
			ArgsUsage: "<torrent file> <address>",
			Action:    handleHandshake,
		},
		{
			Name:      "download_piece",
			Usage:     "download a single piece and write it to a file",
			ArgsUsage: "<torrent file> <piece index>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:     "output, o",
					Usage:    "write piece to `FILE`",
					Required: true,
				},
			},
			Action: handleDownloadPiece,
		},
		{
			Name:      "download",
			Usage:     "download a torrent file or magnet link",
			ArgsUsage: "<torrent file or magnet link>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:     "output, o",
					Usage:    "write downloaded file to `FILE`",
					Required: true,
				},
			},
			Action: handleDownload,
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func handleBeforeCommand(c *cli.Context) error {
	if c.GlobalBool("debug") {
		logger.SetLevel(log.DEBUG)
	}
	configPath := c.GlobalString("config")
	lc, err := torrent.LoadConfig(configPath)
	if err != nil {
		if os.IsNotExist(err) && !c.GlobalIsSet("config") {
			return nil
		}
		return err
	}
	cfg = *lc
	return nil
}

func handleDecode(c *cli.Context) error {
	arg := c.Args().Get(0)
	if arg == "" {
		return errors.New("give a bencoded string as first argument")
	}
	var v interface{}
	if err := bencode.DecodeString(arg, &v); err != nil {
		return err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func readTorrent(path string) (*metainfo.MetaInfo, error) {
	f, err := os.Open(path) // nolint: gosec
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return metainfo.New(f)
}

func handleInfo(c *cli.Context) error {
	mi, err := readTorrent(c.Args().Get(0))
	if err != nil {
		return err
	}
	if len(mi.Trackers) > 0 {
		fmt.Printf("Tracker URL: %s\n", mi.Trackers[0])
	}
	fmt.Printf("Length: %d\n", mi.Info.TotalLength)
	fmt.Printf("Info Hash: %s\n", hex.EncodeToString(mi.Info.Hash[:]))
	fmt.Printf("Piece Length: %d\n", mi.Info.PieceLength)
	fmt.Println("Piece Hashes:")
	for i := uint32(0); i < mi.Info.NumPieces; i++ {
		fmt.Println(hex.EncodeToString(mi.Info.PieceHash(i)))
	}
	return nil
}

func newPeerID() ([20]byte, error) {
	var id [20]byte
	copy(id[:], "-SL0001-")
	_, err := rand.Read(id[8:])
	return id, err
}

func handlePeers(c *cli.Context) error {
	mi, err := readTorrent(c.Args().Get(0))
	if err != nil {
		return err
	}
	if len(mi.Trackers) == 0 {
		return errors.New("torrent has no tracker")
	}
	peerID, err := newPeerID()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	resp, err := tracker.NewHTTPTracker(mi.Trackers[0]).Announce(ctx, tracker.AnnounceRequest{
		InfoHash: mi.Info.Hash,
		PeerID:   peerID,
		Port:     cfg.Port,
		Left:     mi.Info.TotalLength,
		Event:    tracker.EventStarted,
	})
	if err != nil {
		return err
	}
	for _, addr := range resp.Peers {
		fmt.Println(addr.String())
	}
	return nil
}

func handleHandshake(c *cli.Context) error {
	mi, err := readTorrent(c.Args().Get(0))
	if err != nil {
		return err
	}
	addr, err := net.ResolveTCPAddr("tcp", c.Args().Get(1))
	if err != nil {
		return err
	}
	ourID, err := newPeerID()
	if err != nil {
		return err
	}
	conn, _, peerID, err := btconn.Dial(
		addr,
		cfg.PeerConnectTimeout,
		cfg.PeerHandshakeTimeout,
		btconn.NewExtensions(),
		mi.Info.Hash,
		ourID,
		make(chan struct{}),
	)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Printf("Peer ID: %s\n", hex.EncodeToString(peerID[:]))
	return nil
}

func handleDownloadPiece(c *cli.Context) error {
	output := c.String("output")
	mi, err := readTorrent(c.Args().Get(0))
	if err != nil {
		return err
	}
	index, err := strconv.ParseUint(c.Args().Get(1), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid piece index: %s", c.Args().Get(1))
	}
	if uint32(index) >= mi.Info.NumPieces {
		return fmt.Errorf("piece index out of range: %d", index)
	}
	f, err := os.Create(output) // nolint: gosec
	if err != nil {
		return err
	}
	defer f.Close()

	tor, err := torrent.New(torrent.Options{
		Info:        &mi.Info,
		InfoHash:    mi.Info.Hash,
		Trackers:    mi.Trackers,
		OnlyPieces:  []uint32{uint32(index)},
		PieceWriter: f,
		Config:      &cfg,
	})
	if err != nil {
		return err
	}
	if err = waitDownload(tor); err != nil {
		return err
	}
	fmt.Printf("Piece %d downloaded to %s.\n", index, output)
	return nil
}

func handleDownload(c *cli.Context) error {
	output := c.String("output")
	arg := c.Args().Get(0)

	opts := torrent.Options{
		Dest:   filepath.Dir(output),
		Config: &cfg,
	}
	if strings.HasPrefix(arg, "magnet:") {
		ma, err := magnet.New(arg)
		if err != nil {
			return err
		}
		opts.InfoHash = ma.InfoHash
		opts.Trackers = ma.Trackers
		opts.Name = ma.Name
		for _, p := range ma.Peers {
			addr, err := net.ResolveTCPAddr("tcp", p)
			if err != nil {
				continue
			}
			opts.FixedPeers = append(opts.FixedPeers, addr)
		}
	} else {
		mi, err := readTorrent(arg)
		if err != nil {
			return err
		}
		opts.Info = &mi.Info
		opts.InfoHash = mi.Info.Hash
		opts.Trackers = mi.Trackers
	}

	res, err := boltdbresumer.New(output + ".resume")
	if err != nil {
		return err
	}
	opts.Resumer = res

	tor, err := torrent.New(opts)
	if err != nil {
		_ = res.Close()
		return err
	}
	if err = waitDownload(tor); err != nil {
		return err
	}
	if err = renameOutput(tor, opts.Dest, output); err != nil {
		return err
	}
	_ = os.Remove(output + ".resume")
	fmt.Printf("Downloaded %s to %s.\n", arg, output)
	return nil
}

// waitDownload runs the torrent until it completes, fails or is
// interrupted.
func waitDownload(tor *torrent.Torrent) error {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigC)

	tor.Start()
	defer tor.Close()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-tor.ErrC():
			return err
		case sig := <-sigC:
			return fmt.Errorf("received signal: %s", sig)
		case <-ticker.C:
			s := tor.Stats()
			log.Infof("downloaded %d/%d bytes from %d peers (%.0f B/s)",
				s.BytesComplete, s.BytesTotal, s.Peers, s.DownloadRate)
		}
	}
}

// renameOutput moves a completed single file download to the requested
// output path. Multi file torrents stay in the destination directory.
func renameOutput(tor *torrent.Torrent, dest, output string) error {
	downloaded := filepath.Join(dest, tor.Name())
	if downloaded == filepath.Clean(output) {
		return nil
	}
	fi, err := os.Stat(downloaded)
	if err != nil || fi.IsDir() {
		return nil
	}
	return os.Rename(downloaded, output)
}
