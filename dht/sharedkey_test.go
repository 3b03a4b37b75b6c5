package dht

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// The shared-key derivation is stable for a fixed pair, and DH
// duals agree on the same result.
func TestSharedKeyIsStableAndSymmetric(t *testing.T) {
	secA, pubA, err := generateKeyPair()
	require.NoError(t, err)
	secB, pubB, err := generateKeyPair()
	require.NoError(t, err)

	cacheA := newSharedKeyCache()
	cacheB := newSharedKeyCache()
	now := time.Now()

	k1, err := cacheA.get(now, secA, pubB)
	require.NoError(t, err)
	k2, err := cacheA.get(now, secA, pubB)
	require.NoError(t, err)
	require.Equal(t, k1, k2, "repeated lookups for the same pair must agree")

	k3, err := cacheB.get(now, secB, pubA)
	require.NoError(t, err)
	require.Equal(t, k1, k3, "DH duals must derive the same shared key")
}

// With 5 peers sharing the cache's first-byte slot, the 5th lookup
// evicts the entry with the oldest time_last_requested.
func TestSharedKeyLRUEvictsOldestInSlot(t *testing.T) {
	secret, _, err := generateKeyPair()
	require.NoError(t, err)
	cache := newSharedKeyCache()

	peers := make([]PublicKey, 5)
	for i := range peers {
		_, pub, err := generateKeyPair()
		require.NoError(t, err)
		pub[0] = 0x42 // force all 5 peers into the same slot
		peers[i] = pub
	}

	base := time.Now()
	for i, p := range peers[:4] {
		_, err := cache.get(base.Add(time.Duration(i)*time.Second), secret, p)
		require.NoError(t, err)
	}
	// Touch peer[1] so it is no longer the oldest.
	_, err = cache.get(base.Add(10*time.Second), secret, peers[1])
	require.NoError(t, err)

	// peers[0] is now the oldest untouched entry; the 5th distinct
	// peer's lookup must evict it, not an arbitrary slot.
	_, err = cache.get(base.Add(20*time.Second), secret, peers[4])
	require.NoError(t, err)

	slot := &cache.slots[0x42]
	var found0 bool
	for _, e := range slot {
		if e.stored && e.publicKey == peers[0] {
			found0 = true
		}
	}
	require.False(t, found0, "oldest entry should have been evicted")

	for _, p := range []PublicKey{peers[1], peers[2], peers[3], peers[4]} {
		var found bool
		for _, e := range slot {
			if e.stored && e.publicKey == p {
				found = true
			}
		}
		require.True(t, found, "recently used entry should remain cached")
	}
}

func TestSharedKeyCacheHitUpdatesTimestamp(t *testing.T) {
	secret, _, err := generateKeyPair()
	require.NoError(t, err)
	_, pub, err := generateKeyPair()
	require.NoError(t, err)
	cache := newSharedKeyCache()

	base := time.Now()
	_, err = cache.get(base, secret, pub)
	require.NoError(t, err)

	later := base.Add(time.Minute)
	_, err = cache.get(later, secret, pub)
	require.NoError(t, err)

	slot := &cache.slots[pub[0]]
	for _, e := range slot {
		if e.stored && e.publicKey == pub {
			require.Equal(t, later, e.timeLastRequested)
			require.Equal(t, uint32(2), e.timesRequested)
		}
	}
}
