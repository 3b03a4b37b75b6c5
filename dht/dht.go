// Package dht implements a Kademlia-style distributed hash table for
// peer rendezvous: XOR-distance routing, authenticated encrypted UDP
// packets, a shared-key cache, NAT hole punching, and a persistent
// state format.
package dht

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/toktok/dhtcore/internal/eventlog"
	"github.com/toktok/dhtcore/internal/natmap"
	"github.com/toktok/dhtcore/internal/stunprobe"
)

// FriendIPStatus is the result of FriendIP.
type FriendIPStatus int

const (
	FriendIPNotAFriend FriendIPStatus = iota - 1
	FriendIPNotFound
	FriendIPFound
)

// SelfEndpointStatus is the result of SelfEndpoint.
type SelfEndpointStatus int

const (
	SelfEndpointUnknown SelfEndpointStatus = iota
	SelfEndpointWAN
	SelfEndpointLAN
)

var (
	ErrPingArrayFull = errors.New("dht: ping array exhausted")
)

// DHT is a single node's routing table, packet protocol state, and
// maintenance loop. It is single-threaded cooperative: all mutation
// happens on whatever goroutine calls HandlePacket/Tick, and the
// caller must serialize access if it drives the DHT from more than
// one goroutine.
type DHT struct {
	cfg       Config
	publicKey PublicKey
	secretKey SecretKey

	now time.Time // cached clock sample, refreshed once per Tick/HandlePacket

	closeList  *closeList
	friends    *friendList
	sharedKeys *sharedKeyCache
	pingArray  *pingArray
	dedupe     *lru.Cache[dedupeKey, time.Time]

	cryptoHandlers [256]CryptoHandler
	onGetNodes     OnGetNodesResponse

	bootstrapQueue []Node

	selfReported selfEndpointTracker

	stats  Stats
	events *eventlog.Log

	natMapper  *natmap.Mapper
	stunProbe  *stunprobe.Prober
	lastSTUN   time.Time
	stunResult Endpoint
	haveSTUN   bool

	closed bool
}

// New constructs a DHT from cfg. It performs the one-shot ambient
// startup work (NAT port mapping, initial STUN probe) before
// returning; both are best-effort and never fail New.
func New(cfg Config) (*DHT, error) {
	cfg = cfg.withDefaults()
	if cfg.Transport == nil {
		return nil, errors.New("dht: Config.Transport is required")
	}

	dedupe, err := lru.New[dedupeKey, time.Time](dedupeCacheSize)
	if err != nil {
		return nil, err
	}

	d := &DHT{
		cfg:        cfg,
		publicKey:  cfg.PublicKey,
		secretKey:  cfg.SecretKey,
		now:        cfg.Clock.Now(),
		closeList:  newCloseList(cfg.PublicKey),
		friends:    newFriendList(),
		sharedKeys: newSharedKeyCache(),
		pingArray:  newPingArray(),
		dedupe:     dedupe,
		events:     eventlog.New(4096),
	}

	for i := 0; i < DHTFakeFriendCount; i++ {
		_, pub, err := cfg.PrivateKeyGenerator()
		if err != nil {
			return nil, fmt.Errorf("dht: generating fake friend key: %w", err)
		}
		d.friends.addFake(pub)
	}

	if cfg.HolePunchingEnabled {
		d.natMapper = natmap.New(cfg.Log)
		d.natMapper.MapPort(cfg.Transport.LocalPort())
	}
	if cfg.STUNServer != "" {
		d.stunProbe = stunprobe.New(cfg.STUNServer, cfg.Log)
		d.refreshSTUN()
	}

	return d, nil
}

// Close releases resources held by the DHT (the NAT port mapping, if
// any). It is immediate: there are no long-running operations to
// cancel.
func (d *DHT) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.natMapper != nil {
		d.natMapper.Unmap()
	}
	return d.cfg.Transport.Close()
}

// Events returns the append-only event façade.
func (d *DHT) Events() *eventlog.Log { return d.events }

// Size reports the number of occupied close-list entries.
func (d *DHT) Size() int { return d.closeList.size() }

// AddFriend starts tracking pub as a friend, or attaches an
// additional subscriber if it is already tracked. It returns the new
// subscriber's lock count, which DelFriend later needs to release
// exactly that subscription.
func (d *DHT) AddFriend(pub PublicKey, cb OnIPFound, userData any, corr int32) (uint16, error) {
	f := d.friends.addReal(pub)
	lockCount, err := f.addSubscriber(cb, userData, corr)
	if err != nil {
		if !f.activeSubscribers() {
			d.friends.remove(pub)
		}
		return 0, err
	}
	return lockCount, nil
}

// DelFriend releases one subscription on pub. Once the last
// subscriber releases its lock, the friend is dropped entirely.
func (d *DHT) DelFriend(pub PublicKey, lockCount uint16) error {
	f := d.friends.find(pub)
	if f == nil || f.isFake {
		return ErrFriendNotFound
	}
	if !f.releaseSubscriber(lockCount) {
		return ErrFriendNotFound
	}
	if !f.activeSubscribers() {
		d.friends.remove(pub)
		d.events.Append(eventKindFriendLost, friendLostFields(pub))
	}
	return nil
}

// FriendIP reports the best currently known endpoint for a friend.
func (d *DHT) FriendIP(pub PublicKey) (Endpoint, FriendIPStatus) {
	f := d.friends.find(pub)
	if f == nil || f.isFake {
		return Endpoint{}, FriendIPNotAFriend
	}
	for _, e := range f.clients {
		if e.occupied() && e.PublicKey == pub && !e.bad(d.now) {
			return e.Endpoint4or6(), FriendIPFound
		}
	}
	return Endpoint{}, FriendIPNotFound
}

// Bootstrap queues a get-nodes round against a known node, to be sent
// on the next Tick.
func (d *DHT) Bootstrap(addr Endpoint, pub PublicKey) {
	d.bootstrapQueue = append(d.bootstrapQueue, Node{PublicKey: pub, Endpoint: addr})
}

// BootstrapFromAddress resolves host synchronously and queues a
// bootstrap against the resulting address.
func (d *DHT) BootstrapFromAddress(ctx context.Context, host string, ipv6Enabled bool, port uint16, pub PublicKey) error {
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if ip.To4() == nil && !ipv6Enabled {
			continue
		}
		d.Bootstrap(Endpoint{IP: ip, Port: port}, pub)
		return nil
	}
	return fmt.Errorf("dht: no usable address for %s", host)
}

// RoutePacket sends data to a direct close-list neighbor identified
// by its public key.
func (d *DHT) RoutePacket(pub PublicKey, data []byte) error {
	for _, e := range d.closeList.all() {
		if e.PublicKey == pub {
			ep := e.Endpoint4or6()
			return d.cfg.Transport.Send(ep, data)
		}
	}
	return ErrFriendNotFound
}

// RouteToFriend sends packet to every entry of friendPub's own client
// list that has recently reported seeing it (see Friend.reporters),
// provided at least MinReportersForRoute of them exist. Close-list
// entries are not consulted. It returns the number of recipients.
func (d *DHT) RouteToFriend(friendPub PublicKey, packet []byte) int {
	f := d.friends.find(friendPub)
	if f == nil || f.isFake {
		return 0
	}
	reporters := f.reporters(d.now)
	if len(reporters) < MinReportersForRoute {
		return 0
	}
	n := 0
	for _, r := range reporters {
		if d.cfg.Transport.Send(r.Endpoint4or6(), packet) == nil {
			n++
		}
	}
	return n
}

// OnGetNodesResponse registers the callback fired for every node
// learned via any send-nodes reply.
func (d *DHT) OnGetNodesResponse(cb func(Node)) { d.onGetNodes = cb }

// RegisterCryptoHandler registers cb for crypto-request envelopes
// carrying the given request_id byte.
func (d *DHT) RegisterCryptoHandler(requestID byte, cb CryptoHandler) {
	d.cryptoHandlers[requestID] = cb
}

// SelfEndpoint reports our best-known external address, preferring
// routing-table consensus and falling back to a STUN-observed
// candidate when no consensus exists yet.
func (d *DHT) SelfEndpoint() (Endpoint, SelfEndpointStatus) {
	if ep, ok := d.selfReported.consensus(); ok {
		return ep, SelfEndpointWAN
	}
	if d.haveSTUN {
		return d.stunResult, SelfEndpointWAN
	}
	return Endpoint{}, SelfEndpointUnknown
}

// HandlePacket processes one received datagram. It never returns an
// error: malformed input is dropped and counted (error class 1).
func (d *DHT) HandlePacket(from Endpoint, data []byte) {
	d.now = d.cfg.Clock.Now()
	d.handlePacket(from, data)
}

