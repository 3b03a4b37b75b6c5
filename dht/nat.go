package dht

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/time/rate"
)

// natState enumerates the per-friend NAT hole-punching state machine.
type natState int

const (
	natIdle natState = iota
	natAwaitingPong
	natPunching
)

func (s natState) String() string {
	switch s {
	case natIdle:
		return "idle"
	case natAwaitingPong:
		return "awaiting_pong"
	case natPunching:
		return "punching"
	default:
		return "unknown"
	}
}

// natRecord is the per-friend NAT sub-record driving hole punching.
type natRecord struct {
	state natState

	pingID   uint64
	pingedAt time.Time

	// limiter enforces NATPingRateLimit ("once per 3s") on entering a
	// new ping round. Checked against the cached tick clock, never
	// wall time, matching the single-threaded cooperative model.
	limiter *rate.Limiter

	// reporters is the set of friend-client node keys recorded as
	// reporting this friend since the last giveUp, gating activation.
	reporters mapset.Set[PublicKey]
	// confirmed is the subset of reporters that have replied pong for
	// the current pingID.
	confirmed mapset.Set[PublicKey]

	punchingIndex  int // index across reported endpoint variants
	punchingIndex2 int // index across predicted ports within a variant
	punchTries     int

	punchTargets []Endpoint
}

func newNATRecord() *natRecord {
	return &natRecord{
		reporters: mapset.NewThreadUnsafeSet[PublicKey](),
		confirmed: mapset.NewThreadUnsafeSet[PublicKey](),
		limiter:   rate.NewLimiter(rate.Every(NATPingRateLimit), 1),
	}
}

// addReporter records that reporter has recently told us it can see
// the owning friend.
func (n *natRecord) addReporter(reporter PublicKey) {
	n.reporters.Add(reporter)
}

// shouldActivate reports whether enough reporters exist to leave Idle
// and start a NAT-ping round.
func (n *natRecord) shouldActivate() bool {
	return n.state == natIdle && n.reporters.Cardinality() >= MinReportersForHolePunch
}

// beginPingRound transitions Idle -> AwaitingPong, recording a fresh
// ping id and consuming this round's rate-limit token. Call sites are
// responsible for sending the NAT-ping request to every reporter and
// for gating the call itself on canSendPing.
func (n *natRecord) beginPingRound(now time.Time, pingID uint64) {
	n.limiter.AllowN(now, 1)
	n.state = natAwaitingPong
	n.pingID = pingID
	n.pingedAt = now
	n.confirmed.Clear()
}

// canSendPing reports whether NATPingRateLimit allows another ping
// round to start now, without consuming the token: beginPingRound
// does that once the caller commits to starting the round.
func (n *natRecord) canSendPing(now time.Time) bool {
	r := n.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay <= 0
}

// recordPong records a confirming pong from reporter for pingID and
// reports whether a majority of known reporters have now confirmed,
// which promotes AwaitingPong -> Punching.
func (n *natRecord) recordPong(now time.Time, reporter PublicKey, pingID uint64, targets []Endpoint) bool {
	if n.state != natAwaitingPong || pingID != n.pingID {
		return false
	}
	if now.Sub(n.pingedAt) > NATPongWindow {
		n.state = natIdle
		return false
	}
	n.confirmed.Add(reporter)
	if n.confirmed.Cardinality()*2 <= n.reporters.Cardinality() {
		return false
	}
	n.state = natPunching
	n.punchingIndex = 0
	n.punchingIndex2 = 0
	n.punchTries = 0
	n.punchTargets = targets
	return true
}

// expirePongWait moves AwaitingPong back to Idle once the pong window
// has elapsed with no majority.
func (n *natRecord) expirePongWait(now time.Time) {
	if n.state == natAwaitingPong && now.Sub(n.pingedAt) > NATPongWindow {
		n.state = natIdle
	}
}

// nextPunchProbe returns the next (endpoint, port) candidate to probe
// during Punching, advancing punchingIndex/punchingIndex2 across
// reported endpoint variants and the ±punchPortSpan drift window.
// ok is false once the punch budget (MaxPunchTries) is exhausted, at
// which point the caller should call giveUp.
func (n *natRecord) nextPunchProbe() (Endpoint, bool) {
	if n.state != natPunching || len(n.punchTargets) == 0 {
		return Endpoint{}, false
	}
	if n.punchTries >= MaxPunchTries {
		return Endpoint{}, false
	}
	base := n.punchTargets[n.punchingIndex%len(n.punchTargets)]
	drift := n.punchingIndex2 - punchPortSpan
	probe := base
	probe.Port = uint16(int(base.Port) + drift)

	n.punchTries++
	n.punchingIndex2++
	if n.punchingIndex2 > 2*punchPortSpan {
		n.punchingIndex2 = 0
		n.punchingIndex++
	}
	return probe, true
}

// giveUp returns the record to Idle, e.g. after the punch budget is
// exhausted or the friend became reachable directly.
func (n *natRecord) giveUp() {
	n.state = natIdle
	n.punchTargets = nil
	n.reporters.Clear()
	n.confirmed.Clear()
}

// onDirectContact is called whenever a direct DHT packet arrives from
// the owning friend; it ends any in-progress punching.
func (n *natRecord) onDirectContact() {
	if n.state == natPunching {
		n.giveUp()
	}
}
