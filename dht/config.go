package dht

import (
	"time"

	logv3 "github.com/erigontech/erigon-lib/log/v3"
)

// Protocol constants.
const (
	MaxFriendClients     = 8 // max stored endpoints per friend
	LClientNodes         = MaxFriendClients
	LClientLength        = 128 // number of close-list buckets
	LClientList          = LClientLength * LClientNodes
	MaxSentNodes         = 4 // max nodes packed into one send-nodes reply
	PingArraySize        = 512
	DHTFriendMaxLocks    = 32
	DHTFakeFriendCount   = 2
	MaxCryptoRequestSize = 1024
	MaxKeysPerSlot       = 4
	SharedKeySlots       = 256

	PingTimeout    = 5 * time.Second
	PingInterval   = 60 * time.Second
	PingRoundtrip  = 2 * time.Second
	BadNodeTimeout = PingInterval + (PingInterval + PingRoundtrip) // 122s
	KeysTimeout    = 600 * time.Second

	// FriendSearchInterval and FriendSearchRandomInterval drive the
	// per-friend get-nodes cadence: frequent to the closest known
	// nodes, occasional to a random one to escape local minima.
	FriendSearchInterval       = PingInterval
	FriendSearchRandomInterval = 10 * PingInterval

	// NAT traversal cadence.
	NATPingRateLimit = 3 * time.Second
	NATPongWindow    = 3 * time.Second
	// MinReportersForHolePunch is MAX_FRIEND_CLIENTS/2.
	MinReportersForHolePunch = MaxFriendClients / 2
	// MinReportersForRoute is MAX_FRIEND_CLIENTS/4.
	MinReportersForRoute = MaxFriendClients / 4
	// MaxPunchTries bounds the number of probes sent in one Punching
	// episode, across all targets and drifted ports, before giving up.
	MaxPunchTries = 48
	punchPortSpan = 5 // port ± k for k in [0, punchPortSpan]

	// STUN/NAT-mapping refresh cadence.
	STUNRefreshInterval = 30 * time.Minute
)

// CryptoHandler processes a crypto-request packet multiplexed over
// the generic envelope.
type CryptoHandler func(senderPub PublicKey, from Endpoint, data []byte)

// OnIPFound is invoked once a friend's endpoint is (re)discovered.
type OnIPFound func(userData any, corr int32, endpoint Endpoint)

// OnGetNodesResponse fires for every node learned via any send-nodes
// reply.
type OnGetNodesResponse func(Node)

// Config configures a new DHT, following a Config/withDefaults
// pattern.
type Config struct {
	PublicKey PublicKey
	SecretKey SecretKey

	Transport Transport
	Clock     Clock
	Log       logv3.Logger

	// HolePunchingEnabled activates NAT traversal and, as an ambient
	// enrichment, a one-shot UPnP/NAT-PMP port-mapping attempt at
	// startup.
	HolePunchingEnabled bool

	// STUNServer, if set, is used for one-shot WAN-address discovery
	// at startup and every STUNRefreshInterval. Empty disables it.
	STUNServer string

	// TCPEnabled controls whether TCP_v4/TCP_v6 family bytes are
	// accepted when unpacking endpoints.
	TCPEnabled bool

	// PrivateKeyGenerator produces the keys of the fake friends, at New
	// and again on every Load. Defaults to crypto/rand-backed
	// generation.
	PrivateKeyGenerator func() (SecretKey, PublicKey, error)
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = RealClock{}
	}
	if c.Log == nil {
		c.Log = logv3.Root()
	}
	if c.PrivateKeyGenerator == nil {
		c.PrivateKeyGenerator = generateKeyPair
	}
	return c
}

// Clock abstracts the monotonic clock source. It is sampled at New and
// once per HandlePacket call, and the cached value threads through
// that call's state-machine transitions. Tick does not sample it: it
// caches the time its caller passes in.
type Clock interface {
	Now() time.Time
}

// RealClock uses the wall/monotonic clock exposed by time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
