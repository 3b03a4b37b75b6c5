// Package natmap makes a single best-effort attempt to obtain a
// router port mapping for the DHT's UDP port: NAT-PMP first, falling
// back to UPnP IGD. Either outcome is logged and never fails startup;
// the attempt runs synchronously, so startup waits until gateway
// discovery succeeds or times out. It is purely additive to
// peer-assisted hole punching.
package natmap

import (
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"
	"github.com/huin/goupnp/dcps/internetgateway2"

	logv3 "github.com/erigontech/erigon-lib/log/v3"
)

const mappingLifetime = 2 * time.Hour

// Mapper holds whichever router control handle succeeded, so Unmap
// can tear the same mapping back down.
type Mapper struct {
	log logv3.Logger

	pmpClient *natpmp.Client
	igdClient *internetgateway2.WANIPConnection1
	port      uint16
	ok        bool
}

func New(log logv3.Logger) *Mapper {
	return &Mapper{log: log}
}

// MapPort attempts NAT-PMP then UPnP IGD for port, logging whichever
// succeeds (or that neither did). It never returns an error: the
// caller proceeds unconditionally.
func (m *Mapper) MapPort(port uint16) {
	m.port = port

	if gw, err := natpmp.DiscoverGateway(); err == nil {
		client := natpmp.NewClientWithTimeout(gw, 2*time.Second)
		if _, err := client.AddPortMapping("udp", int(port), int(port), int(mappingLifetime.Seconds())); err == nil {
			m.pmpClient = client
			m.ok = true
			m.log.Debug("natmap: NAT-PMP mapping established", "port", port)
			return
		}
	}

	clients, _, err := internetgateway2.NewWANIPConnection1Clients()
	if err == nil && len(clients) > 0 {
		c := clients[0]
		if err := c.AddPortMapping("", port, "UDP", port, "", true, "dhtcore", uint32(mappingLifetime.Seconds())); err == nil {
			m.igdClient = c
			m.ok = true
			m.log.Debug("natmap: UPnP IGD mapping established", "port", port)
			return
		}
	}

	m.log.Debug("natmap: no port mapping available", "port", port)
}

// Unmap removes whichever mapping MapPort established, if any.
func (m *Mapper) Unmap() {
	if !m.ok {
		return
	}
	if m.pmpClient != nil {
		_, _ = m.pmpClient.AddPortMapping("udp", int(m.port), 0, 0)
	}
	if m.igdClient != nil {
		_ = m.igdClient.DeletePortMapping("", m.port, "UDP")
	}
	m.ok = false
}
