package dht

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPingArrayAddCheckRoundTrip(t *testing.T) {
	p := newPingArray()
	now := time.Now()
	target := keyWithByte(1)
	ep := epFor(1)

	nonce, err := p.add(now, target, ep)
	require.NoError(t, err)

	got, ok := p.check(now.Add(time.Second), nonce, target)
	require.True(t, ok)
	require.Equal(t, ep.Port, got.Port)

	// A matching reply consumes the slot; checking again must fail
	// (no replay of an already-consumed nonce).
	_, ok = p.check(now.Add(time.Second), nonce, target)
	require.False(t, ok)
}

func TestPingArrayCheckRejectsWrongKey(t *testing.T) {
	p := newPingArray()
	now := time.Now()
	nonce, err := p.add(now, keyWithByte(1), epFor(1))
	require.NoError(t, err)

	_, ok := p.check(now, nonce, keyWithByte(2))
	require.False(t, ok, "an adversary's reply under a different key must not match")
}

func TestPingArrayCheckRejectsExpiredEntry(t *testing.T) {
	p := newPingArray()
	now := time.Now()
	nonce, err := p.add(now, keyWithByte(1), epFor(1))
	require.NoError(t, err)

	_, ok := p.check(now.Add(PingTimeout+time.Second), nonce, keyWithByte(1))
	require.False(t, ok)
}

func TestPingArrayCheckRejectsUnknownNonce(t *testing.T) {
	p := newPingArray()
	_, ok := p.check(time.Now(), 0xFFEEDDCCBBAA9988, keyWithByte(1))
	require.False(t, ok)
}

func TestPingArrayReusesExpiredSlot(t *testing.T) {
	p := newPingArray()
	now := time.Now()
	for i := 0; i < PingArraySize; i++ {
		_, err := p.add(now, keyWithByte(1), epFor(1))
		require.NoError(t, err)
	}
	// Every slot is now occupied but unexpired: a further add can only
	// succeed once entries expire.
	later := now.Add(PingTimeout + time.Second)
	_, err := p.add(later, keyWithByte(2), epFor(2))
	require.NoError(t, err)
}
