package dht

import "time"

// sharedKeyEntry is one cached Diffie-Hellman output.
type sharedKeyEntry struct {
	publicKey         PublicKey
	sharedKey         [32]byte
	timesRequested    uint32
	stored            bool
	timeLastRequested time.Time
}

// sharedKeyCache memoizes X25519 DH outputs keyed by peer public key,
// 256 slots (indexed by the peer key's first byte) of MaxKeysPerSlot
// entries each, LRU per slot.
//
// A global hashicorp/golang-lru cache does not express this shape: it
// is one pool with one global capacity, not 256 independent capacity-4
// pools, each evicting its entry with the oldest timeLastRequested
// (refreshed on every hit; see DESIGN.md's shared-key-cache entry).
type sharedKeyCache struct {
	slots [SharedKeySlots][MaxKeysPerSlot]sharedKeyEntry
}

func newSharedKeyCache() *sharedKeyCache {
	return &sharedKeyCache{}
}

// get returns the shared key for (secret, peerPub), computing and
// caching it on a miss. now is the cached per-tick clock sample.
func (c *sharedKeyCache) get(now time.Time, secret SecretKey, peerPub PublicKey) ([32]byte, error) {
	slot := &c.slots[peerPub[0]]
	for i := range slot {
		e := &slot[i]
		if e.stored && e.publicKey == peerPub {
			e.timesRequested++
			e.timeLastRequested = now
			return e.sharedKey, nil
		}
	}

	shared, err := deriveSharedKey(secret, peerPub)
	if err != nil {
		return shared, err
	}

	victim := &slot[0]
	for i := range slot {
		e := &slot[i]
		if !e.stored {
			victim = e
			break
		}
		if e.timeLastRequested.Before(victim.timeLastRequested) {
			victim = e
		}
	}
	*victim = sharedKeyEntry{
		publicKey:         peerPub,
		sharedKey:         shared,
		timesRequested:    1,
		stored:            true,
		timeLastRequested: now,
	}
	return shared, nil
}
