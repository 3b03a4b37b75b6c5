package dht

import (
	"net"
	"strconv"
	"sync"
	"time"
)

// Transport is the UDP socket abstraction consumed by the DHT core.
// Send may fail with a transient error (EWOULDBLOCK and friends);
// such failures are swallowed by callers and treated as packet loss.
// Recv is non-blocking: it returns ok=false when nothing is pending,
// so the embedder's loop can alternate Recv/Tick without a dedicated
// reader goroutine in the core.
type Transport interface {
	Send(to Endpoint, data []byte) error
	Recv() (from Endpoint, data []byte, ok bool)
	LocalPort() uint16
	Close() error
}

// UDPTransport is the real Transport, a thin non-blocking wrapper
// around *net.UDPConn using ReadFromUDP/WriteToUDP.
type UDPTransport struct {
	conn *net.UDPConn
	buf  [1280]byte // discovery packets are bounded similarly to discv4's maxPacketSize
}

// NewUDPTransport opens a UDP socket on the given local port (0 for
// an ephemeral port) for both IPv4 and IPv6.
func NewUDPTransport(port uint16) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(port)})
	if err != nil {
		return nil, err
	}
	return &UDPTransport{conn: conn}, nil
}

func (t *UDPTransport) Send(to Endpoint, data []byte) error {
	_, err := t.conn.WriteToUDP(data, &net.UDPAddr{IP: to.IP, Port: int(to.Port)})
	return err
}

func (t *UDPTransport) Recv() (Endpoint, []byte, bool) {
	if err := t.conn.SetReadDeadline(time.Now()); err != nil {
		return Endpoint{}, nil, false
	}
	n, from, err := t.conn.ReadFromUDP(t.buf[:])
	if err != nil {
		return Endpoint{}, nil, false
	}
	out := make([]byte, n)
	copy(out, t.buf[:n])
	return Endpoint{IP: from.IP, Port: uint16(from.Port)}, out, true
}

func (t *UDPTransport) LocalPort() uint16 {
	return uint16(t.conn.LocalAddr().(*net.UDPAddr).Port)
}

func (t *UDPTransport) Close() error { return t.conn.Close() }

// MemoryTransport is an in-memory Transport used to drive unit and
// simulated-overlay tests without real sockets.
type MemoryTransport struct {
	mu      sync.Mutex
	self    Endpoint
	inbox   []memoryPacket
	network *MemoryNetwork
	closed  bool
}

type memoryPacket struct {
	from Endpoint
	data []byte
}

// MemoryNetwork routes packets between MemoryTransport endpoints,
// modeling perfect-delivery UDP, and lets tests inject packet loss
// through Drop. It has no hook for duplication or corruption.
type MemoryNetwork struct {
	mu    sync.Mutex
	peers map[string]*MemoryTransport
	// Drop, when non-nil, is consulted per packet; returning true
	// discards it, modeling transient I/O loss.
	Drop func(from, to Endpoint, data []byte) bool
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{peers: make(map[string]*MemoryTransport)}
}

// endpointKey turns an Endpoint into a comparable map key: net.IP is a
// slice and cannot be used as (or within) a map key directly.
func endpointKey(e Endpoint) string {
	return e.IP.String() + "/" + strconv.Itoa(int(e.Port))
}

// NewTransport registers and returns a new endpoint on the network.
func (n *MemoryNetwork) NewTransport(self Endpoint) *MemoryTransport {
	t := &MemoryTransport{self: self, network: n}
	n.mu.Lock()
	n.peers[endpointKey(self)] = t
	n.mu.Unlock()
	return t
}

func (t *MemoryTransport) Send(to Endpoint, data []byte) error {
	t.network.mu.Lock()
	dst, ok := t.network.peers[endpointKey(to)]
	drop := t.network.Drop
	t.network.mu.Unlock()
	if !ok {
		return nil // unreachable destination: indistinguishable from packet loss
	}
	if drop != nil && drop(t.self, to, data) {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	dst.mu.Lock()
	if !dst.closed {
		dst.inbox = append(dst.inbox, memoryPacket{from: t.self, data: cp})
	}
	dst.mu.Unlock()
	return nil
}

func (t *MemoryTransport) Recv() (Endpoint, []byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inbox) == 0 {
		return Endpoint{}, nil, false
	}
	p := t.inbox[0]
	t.inbox = t.inbox[1:]
	return p.from, p.data, true
}

func (t *MemoryTransport) LocalPort() uint16 { return t.self.Port }

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}
