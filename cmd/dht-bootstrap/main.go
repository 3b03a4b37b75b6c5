// Command dht-bootstrap runs a standalone DHT node with no friends:
// a pure bootstrap/rendezvous point other nodes can point at.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c2h5oh/datasize"
	logv3 "github.com/erigontech/erigon-lib/log/v3"

	"github.com/toktok/dhtcore/dht"
)

func main() {
	var (
		port       = flag.Int("port", 33445, "UDP port to listen on")
		holePunch  = flag.Bool("holepunch", true, "enable NAT hole punching")
		stunServer = flag.String("stun", "", "STUN server for WAN address discovery (host:port)")
		savePath   = flag.String("save", "", "path to persist/load DHT state")
		tcpEnabled = flag.Bool("tcp", false, "accept TCP relay family bytes in endpoints")
	)
	flag.Parse()

	log := logv3.Root()

	transport, err := dht.NewUDPTransport(uint16(*port))
	if err != nil {
		log.Error("dht-bootstrap: failed to open UDP transport", "err", err)
		os.Exit(1)
	}

	secretKey, publicKey, err := dht.GenerateIdentity()
	if err != nil {
		log.Error("dht-bootstrap: failed to generate identity", "err", err)
		os.Exit(1)
	}

	cfg := dht.Config{
		PublicKey:           publicKey,
		SecretKey:           secretKey,
		Transport:           transport,
		Log:                 log,
		HolePunchingEnabled: *holePunch,
		STUNServer:          *stunServer,
		TCPEnabled:          *tcpEnabled,
	}

	node, err := dht.New(cfg)
	if err != nil {
		log.Error("dht-bootstrap: failed to start DHT", "err", err)
		os.Exit(1)
	}
	defer node.Close()

	if *savePath != "" {
		if data, err := os.ReadFile(*savePath); err == nil {
			if err := node.Load(data); err != nil {
				log.Warn("dht-bootstrap: ignoring unreadable save file", "err", err)
			}
		}
	}

	log.Info("dht-bootstrap: listening",
		"port", *port,
		"public_key", publicKey,
		"max_packet_size", datasize.ByteSize(dht.MaxCryptoRequestSize).String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			if *savePath != "" {
				if err := os.WriteFile(*savePath, node.Save(), 0o600); err != nil {
					log.Error("dht-bootstrap: failed to persist state", "err", err)
				}
			}
			return
		case now := <-ticker.C:
			node.Tick(now)
			for {
				from, data, ok := transport.Recv()
				if !ok {
					break
				}
				node.HandlePacket(from, data)
			}
		}
	}
}
