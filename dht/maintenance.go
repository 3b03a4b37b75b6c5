package dht

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/toktok/dhtcore/dht/dhtwire"
)

// Tick runs one pass of the maintenance loop: close-list refresh,
// per-friend search, bootstrap drains, ping-array expiry (lazy, on
// next use), and the NAT traversal tick. now is sampled once and
// cached for the duration of this call.
func (d *DHT) Tick(now time.Time) {
	d.now = now

	d.refreshCloseList()
	d.drainBootstrap()
	for _, f := range d.friends.friends {
		d.searchFriend(f)
	}
	for _, f := range d.friends.friends {
		d.tickNAT(f)
	}
	d.maybeRefreshSTUN()
}

// refreshCloseList pings close-list entries due for a liveness probe
// and evicts stale ones.
func (d *DHT) refreshCloseList() {
	d.closeList.forEachDueForPing(d.now, func(pub PublicKey, ep Endpoint) {
		d.closeList.markPinged(d.now, pub, ep)
		d.sendGetNodes(pub, ep, d.publicKey)
	})
	evicted := d.closeList.evictStale(d.now)
	d.stats.CloseListEvictions += uint64(evicted)
}

// searchFriend sends a get-nodes for the friend's key to up to
// MaxFriendClients/2 of its closest known nodes at FriendSearchInterval,
// plus occasionally to a random known node at the longer
// FriendSearchRandomInterval to escape local minima.
func (d *DHT) searchFriend(f *Friend) {
	if f.lastSearch.IsZero() || d.now.Sub(f.lastSearch) >= FriendSearchInterval {
		f.lastSearch = d.now
		for _, e := range f.closestKnown(d.now, MaxFriendClients/2) {
			d.sendGetNodes(e.PublicKey, e.Endpoint4or6(), f.PublicKey)
		}
	}
	if f.lastRandomSearch.IsZero() || d.now.Sub(f.lastRandomSearch) >= FriendSearchRandomInterval {
		f.lastRandomSearch = d.now
		known := f.closestKnown(d.now, MaxFriendClients)
		if len(known) > 0 {
			idx := randIndex(len(known))
			e := known[idx]
			d.sendGetNodes(e.PublicKey, e.Endpoint4or6(), f.PublicKey)
		}
	}
}

// drainBootstrap converts every queued bootstrap node into a single
// get-nodes request for our own key.
func (d *DHT) drainBootstrap() {
	if len(d.bootstrapQueue) == 0 {
		return
	}
	for _, n := range d.bootstrapQueue {
		d.sendGetNodes(n.PublicKey, n.Endpoint, d.publicKey)
		d.events.Append(eventKindBootstrapCompleted, bootstrapCompletedFields(n.PublicKey, n.Endpoint))
	}
	d.bootstrapQueue = d.bootstrapQueue[:0]
}

// tickNAT advances f's hole-punching state machine by one tick.
func (d *DHT) tickNAT(f *Friend) {
	if !d.cfg.HolePunchingEnabled {
		return
	}
	n := &f.nat
	switch n.state {
	case natIdle:
		if n.shouldActivate() && n.canSendPing(d.now) {
			pingID := randUint64()
			n.beginPingRound(d.now, pingID)
			for _, r := range f.reporters(d.now) {
				d.sendNATPingRequest(r.PublicKey, r.Endpoint4or6(), pingID)
			}
			if !f.isFake {
				d.events.Append(eventKindNATStateChanged, natStateFields(f.PublicKey, n.state))
			}
		}
	case natAwaitingPong:
		n.expirePongWait(d.now)
	case natPunching:
		if probe, ok := n.nextPunchProbe(); ok {
			d.sendRawProbe(probe)
		} else {
			n.giveUp()
			if !f.isFake {
				d.events.Append(eventKindNATStateChanged, natStateFields(f.PublicKey, n.state))
			}
		}
	}
}

func (d *DHT) sendNATPingRequest(pub PublicKey, ep Endpoint, pingID uint64) {
	req := &dhtwire.NATPing{Subtype: dhtwire.NATPingRequestSubtype, PingID: pingID}
	d.sendEncrypted(pub, ep, dhtwire.NATPingPacket, func() ([]byte, error) { return req.Marshal(), nil })
}

// sendRawProbe sends a one-byte (just the NAT-ping type byte),
// unauthenticated datagram to probe a
// predicted NAT mapping during the Punching state. The recipient will
// not parse it as a valid DHT packet; the goal is purely to open the
// NAT's outbound mapping on our side and, opportunistically, to be
// seen as a source address worth trying back.
func (d *DHT) sendRawProbe(ep Endpoint) {
	_ = d.cfg.Transport.Send(ep, []byte{dhtwire.NATPingPacket})
}

func randIndex(n int) int {
	if n <= 1 {
		return 0
	}
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return int(binary.BigEndian.Uint64(buf[:]) % uint64(n))
}

func randUint64() uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return binary.BigEndian.Uint64(buf[:])
}

func (d *DHT) maybeRefreshSTUN() {
	if d.stunProbe == nil {
		return
	}
	if !d.lastSTUN.IsZero() && d.now.Sub(d.lastSTUN) < STUNRefreshInterval {
		return
	}
	d.refreshSTUN()
}

func (d *DHT) refreshSTUN() {
	d.lastSTUN = d.now
	ip, port, ok := d.stunProbe.Probe()
	if !ok {
		return
	}
	d.stunResult = Endpoint{IP: ip, Port: port}
	d.haveSTUN = true
}
