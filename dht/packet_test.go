package dht

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toktok/dhtcore/dht/dhtwire"
)

// deliver pumps every packet currently queued for d's transport through
// HandlePacket, looping until the inbox drains (a reply may itself
// enqueue further packets on the caller's side of a round trip, but
// draining a single node's inbox is enough for these point-to-point
// tests).
func deliver(d *DHT) {
	for {
		from, data, ok := d.cfg.Transport.Recv()
		if !ok {
			return
		}
		d.HandlePacket(from, data)
	}
}

func TestGetNodesSendNodesRoundTrip(t *testing.T) {
	net := NewMemoryNetwork()
	a := newTestDHTOnNetwork(t, net, epFor(1))
	b := newTestDHTOnNetwork(t, net, epFor(2))

	// Seed b's close list so it has something to report back.
	seeded := keyWithByte(0x77)
	b.closeList.addOrRefresh(b.now, seeded, epFor(5))

	a.sendGetNodes(b.publicKey, epFor(2), a.publicKey)
	deliver(b)
	deliver(a)

	found := false
	for _, e := range a.closeList.all() {
		if e.PublicKey == seeded {
			found = true
		}
	}
	require.True(t, found, "a must learn the node b reported")
}

// A reply carrying a nonce a's ping array never issued (or one
// already consumed) must not mutate the routing table.
func TestUnsolicitedSendNodesIsRejected(t *testing.T) {
	net := NewMemoryNetwork()
	a := newTestDHTOnNetwork(t, net, epFor(1))
	adversaryKey := keyWithByte(0x99)

	resp := &dhtwire.SendNodes{
		Nonce8: 0xFFFFFFFFFFFFFFFF, // never issued by a's ping array
		Nodes: []dhtwire.Node{
			{PublicKey: [32]byte(keyWithByte(0x66)), Endpoint: epFor(7)},
		},
	}
	plain, err := resp.Marshal()
	require.NoError(t, err)

	// a's shared-key derivation depends only on (a's secret, claimed
	// sender pub), so it is reproducible here without a real adversary
	// keypair: this isolates the ping-array authentication gate itself
	// rather than the box encryption.
	shared, err := a.sharedKeys.get(a.now, a.secretKey, adversaryKey)
	require.NoError(t, err)
	nonce, ciphertext, err := sealWithSharedKey(shared, plain)
	require.NoError(t, err)
	frame := &dhtwire.OuterFrame{
		Type:       dhtwire.SendNodesPacket,
		SenderPub:  [32]byte(adversaryKey),
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}

	a.HandlePacket(epFor(9), frame.Marshal())

	for _, e := range a.closeList.all() {
		require.NotEqual(t, keyWithByte(0x66), e.PublicKey, "forged send-nodes must not mutate the routing table")
	}
}

func TestNATPingRequestElicitsResponse(t *testing.T) {
	net := NewMemoryNetwork()
	a := newTestDHTOnNetwork(t, net, epFor(1))
	b := newTestDHTOnNetwork(t, net, epFor(2))

	_, err := a.AddFriend(b.publicKey, nil, nil, 0)
	require.NoError(t, err)
	_, err = b.AddFriend(a.publicKey, nil, nil, 0)
	require.NoError(t, err)

	req := &dhtwire.NATPing{Subtype: dhtwire.NATPingRequestSubtype, PingID: 1234}
	a.sendEncrypted(b.publicKey, epFor(2), dhtwire.NATPingPacket, func() ([]byte, error) { return req.Marshal(), nil })

	deliver(b)
	deliver(a)
	// a's friend record for b should now be tracking the pong via its
	// nat sub-record having seen a response, not erroring; nothing to
	// assert beyond "did not panic and no malformed-packet bump".
	require.Zero(t, a.stats.MalformedPackets)
	require.Zero(t, b.stats.MalformedPackets)
}

func newTestDHTOnNetwork(t *testing.T, net *MemoryNetwork, self Endpoint) *DHT {
	t.Helper()
	sec, pub, err := generateKeyPair()
	require.NoError(t, err)

	d, err := New(Config{
		PublicKey: pub,
		SecretKey: sec,
		Transport: net.NewTransport(self),
	})
	require.NoError(t, err)
	return d
}
