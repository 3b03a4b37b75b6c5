// Package stunprobe performs one-shot STUN binding requests to
// discover our externally visible address, corroborating the
// routing-table consensus heuristic the DHT otherwise relies on.
package stunprobe

import (
	"net"
	"time"

	"github.com/pion/stun"

	logv3 "github.com/erigontech/erigon-lib/log/v3"
)

const requestTimeout = 2 * time.Second

// Prober sends STUN binding requests to a fixed server address.
type Prober struct {
	server string
	log    logv3.Logger
}

func New(server string, log logv3.Logger) *Prober {
	return &Prober{server: server, log: log}
}

// Probe performs one binding request over a fresh UDP socket and
// returns the reflexive address the server observed. ok is false on
// any failure (unreachable server, timeout, malformed response); the
// caller treats that as "no STUN candidate this round", never fatal.
func (p *Prober) Probe() (ip net.IP, port uint16, ok bool) {
	conn, err := net.Dial("udp4", p.server)
	if err != nil {
		p.log.Debug("stunprobe: dial failed", "err", err)
		return nil, 0, false
	}
	defer conn.Close()

	client, err := stun.NewClient(conn)
	if err != nil {
		p.log.Debug("stunprobe: client init failed", "err", err)
		return nil, 0, false
	}
	defer client.Close()

	message := stun.MustBuild(stun.TransactionID, stun.BindingRequest)

	var resultIP net.IP
	var resultPort uint16
	done := make(chan struct{})

	deadline := time.Now().Add(requestTimeout)
	_ = conn.SetDeadline(deadline)

	err = client.Do(message, func(res stun.Event) {
		defer close(done)
		if res.Error != nil {
			return
		}
		var xorAddr stun.XORMappedAddress
		if err := xorAddr.GetFrom(res.Message); err != nil {
			return
		}
		resultIP = xorAddr.IP
		resultPort = uint16(xorAddr.Port)
		ok = true
	})
	if err != nil {
		p.log.Debug("stunprobe: request failed", "err", err)
		return nil, 0, false
	}
	<-done
	return resultIP, resultPort, ok
}
