package dht

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"
)

var errPingArrayFull = errors.New("dht: ping array has no free or expired slot")

// pingArrayEntry is one outstanding challenge awaiting a matching reply.
type pingArrayEntry struct {
	used     bool
	nonce    uint64
	target   PublicKey
	endpoint Endpoint
	deadline time.Time
}

// pingArray is a fixed-size ring of outstanding ping/get-nodes
// nonces, binding a request to its future reply. Slot index is nonce
// mod capacity. This stays a flat array rather than a linked list
// plus timer goroutines because the core's cooperative
// single-threaded model rules out background timers: expiry is
// checked lazily, on the next add/check for that slot.
type pingArray struct {
	entries [PingArraySize]pingArrayEntry
}

func newPingArray() *pingArray {
	return &pingArray{}
}

// add records a new outstanding request for (targetKey, targetEndpoint)
// and returns its nonce. now is the cached per-tick clock sample.
func (p *pingArray) add(now time.Time, targetKey PublicKey, targetEndpoint Endpoint) (uint64, error) {
	var nonceBuf [8]byte
	if _, err := rand.Read(nonceBuf[:]); err != nil {
		return 0, err
	}
	random := binary.BigEndian.Uint64(nonceBuf[:])
	start := random % PingArraySize
	for i := uint64(0); i < PingArraySize; i++ {
		idx := (start + i) % PingArraySize
		e := &p.entries[idx]
		if !e.used || now.After(e.deadline) {
			// keep the random high bits, set the low bits to this slot
			nonce := random - random%PingArraySize + idx
			*e = pingArrayEntry{
				used:     true,
				nonce:    nonce,
				target:   targetKey,
				endpoint: targetEndpoint,
				deadline: now.Add(PingTimeout),
			}
			return nonce, nil
		}
	}
	return 0, errPingArrayFull
}

// check verifies that nonce is live, matches targetKey, and has not
// expired; on success it clears the slot and returns the stored
// endpoint. A send-nodes reply whose nonce fails this check must not
// mutate the routing table.
func (p *pingArray) check(now time.Time, nonce uint64, targetKey PublicKey) (Endpoint, bool) {
	idx := nonce % PingArraySize
	e := &p.entries[idx]
	if !e.used || e.nonce != nonce || e.target != targetKey {
		return Endpoint{}, false
	}
	if now.After(e.deadline) {
		*e = pingArrayEntry{}
		return Endpoint{}, false
	}
	endpoint := e.endpoint
	*e = pingArrayEntry{}
	return endpoint, true
}
