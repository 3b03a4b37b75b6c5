package dht

import (
	"time"

	"github.com/toktok/dhtcore/dht/dhtwire"
)

// PublicKey and SecretKey are long-term X25519 keys. Keys are never
// negotiated by this package.
type PublicKey [dhtwire.PublicKeySize]byte
type SecretKey [dhtwire.PublicKeySize]byte

// Endpoint is IP_Port: an address family plus address and UDP port.
type Endpoint = dhtwire.Endpoint

// Node is a (public_key, endpoint) pair.
type Node struct {
	PublicKey PublicKey
	Endpoint  Endpoint
}

// Assoc is one address-family association for a client entry.
type Assoc struct {
	Endpoint Endpoint
	// LastHeard is the timestamp of the last successful authenticated
	// receipt from this endpoint. Monotonically non-decreasing.
	LastHeard time.Time
	// LastPinged is the timestamp of the last ping/get-nodes we sent.
	LastPinged time.Time
	// ReturnedEndpoint is the endpoint this node most recently
	// reported as ours, in a send-nodes reply's observed sender
	// address.
	ReturnedEndpoint Endpoint
	ReturnedAt       time.Time
	// ReturnedIsSelf is set when ReturnedEndpoint equals our own
	// currently believed endpoint.
	ReturnedIsSelf bool
}

// known reports whether this association has ever been populated.
func (a *Assoc) known() bool {
	return !a.LastHeard.IsZero()
}

// bad reports whether the association is stale per BadNodeTimeout.
func (a *Assoc) bad(now time.Time) bool {
	if !a.known() {
		return true
	}
	return now.Sub(a.LastHeard) > BadNodeTimeout
}

// ClientEntry is one close-list / friend-list slot: a public key plus
// one Assoc per address family.
type ClientEntry struct {
	PublicKey PublicKey
	Assoc4    Assoc
	Assoc6    Assoc
}

// occupied reports whether the slot holds a real entry.
func (c *ClientEntry) occupied() bool {
	return c.Assoc4.known() || c.Assoc6.known()
}

// bad reports whether both associations are stale, i.e. the whole
// entry is a bad node.
func (c *ClientEntry) bad(now time.Time) bool {
	if !c.occupied() {
		return true
	}
	if c.Assoc4.known() && !c.Assoc4.bad(now) {
		return false
	}
	if c.Assoc6.known() && !c.Assoc6.bad(now) {
		return false
	}
	return true
}

// lastHeard returns the most recent LastHeard across both families.
func (c *ClientEntry) lastHeard() time.Time {
	if c.Assoc4.LastHeard.After(c.Assoc6.LastHeard) {
		return c.Assoc4.LastHeard
	}
	return c.Assoc6.LastHeard
}

// assocFor returns a pointer to the association matching e's family.
func (c *ClientEntry) assocFor(e Endpoint) *Assoc {
	if e.IsV6() {
		return &c.Assoc6
	}
	return &c.Assoc4
}

// Endpoint4or6 returns whichever association is known, preferring
// IPv4, for callers that need a single representative endpoint.
func (c *ClientEntry) Endpoint4or6() Endpoint {
	if c.Assoc4.known() {
		return c.Assoc4.Endpoint
	}
	return c.Assoc6.Endpoint
}
