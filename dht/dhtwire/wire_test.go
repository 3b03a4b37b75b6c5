package dhtwire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackIPPortRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		ep   Endpoint
		tcp  bool
	}{
		{"v4", Endpoint{IP: net.ParseIP("203.0.113.7").To4(), Port: 33445}, false},
		{"v6", Endpoint{IP: net.ParseIP("2001:db8::1"), Port: 443}, false},
		{"tcp_v4", Endpoint{IP: net.ParseIP("192.0.2.1").To4(), Port: 80, TCP: true}, true},
		{"tcp_v6", Endpoint{IP: net.ParseIP("fe80::1"), Port: 9000, TCP: true}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			packed := PackIPPort(nil, c.ep)
			require.Len(t, packed, ipPortSize)

			got, n, err := UnpackIPPort(packed, c.tcp)
			require.NoError(t, err)
			require.Equal(t, ipPortSize, n)
			require.True(t, c.ep.IP.Equal(got.IP))
			require.Equal(t, c.ep.Port, got.Port)
			require.Equal(t, c.ep.TCP, got.TCP)
		})
	}
}

func TestUnpackIPPortRejectsTCPWhenDisabled(t *testing.T) {
	ep := Endpoint{IP: net.ParseIP("192.0.2.1").To4(), Port: 80, TCP: true}
	packed := PackIPPort(nil, ep)
	_, _, err := UnpackIPPort(packed, false)
	require.ErrorIs(t, err, ErrBadFamily)
}

func TestUnpackIPPortRejectsBadFamilyByte(t *testing.T) {
	buf := make([]byte, ipPortSize)
	buf[0] = 0x7F
	_, _, err := UnpackIPPort(buf, true)
	require.ErrorIs(t, err, ErrBadFamily)
}

func TestUnpackIPPortRejectsShortBuffer(t *testing.T) {
	_, _, err := UnpackIPPort(make([]byte, ipPortSize-1), true)
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestPackUnpackNodesRoundTrip(t *testing.T) {
	nodes := []Node{
		{PublicKey: pk(1), Endpoint: Endpoint{IP: net.ParseIP("198.51.100.2").To4(), Port: 1}},
		{PublicKey: pk(2), Endpoint: Endpoint{IP: net.ParseIP("2001:db8::2"), Port: 2}},
		{PublicKey: pk(3), Endpoint: Endpoint{IP: net.ParseIP("198.51.100.4").To4(), Port: 3}},
	}
	packed := PackNodes(nil, nodes)

	got, consumed, err := UnpackNodes(packed, len(nodes), false)
	require.NoError(t, err)
	require.Equal(t, len(packed), consumed)
	require.Len(t, got, len(nodes))
	for i, n := range nodes {
		require.Equal(t, n.PublicKey, got[i].PublicKey)
		require.True(t, n.Endpoint.IP.Equal(got[i].Endpoint.IP))
		require.Equal(t, n.Endpoint.Port, got[i].Endpoint.Port)
	}
}

// UnpackNodes must stop cleanly at a partial trailing record rather
// than erroring, so callers can tell padding from corruption by the
// returned consumed count.
func TestUnpackNodesStopsAtPartialRecord(t *testing.T) {
	nodes := []Node{
		{PublicKey: pk(9), Endpoint: Endpoint{IP: net.ParseIP("198.51.100.9").To4(), Port: 9}},
	}
	packed := PackNodes(nil, nodes)
	packed = append(packed, 0x02, 0x00, 0x00) // a few trailing garbage bytes, not a full record

	got, consumed, err := UnpackNodes(packed, 8, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, nodeSize, consumed)
}

func TestUnpackNodesRespectsMaxNodes(t *testing.T) {
	nodes := []Node{
		{PublicKey: pk(1), Endpoint: Endpoint{IP: net.ParseIP("198.51.100.1").To4(), Port: 1}},
		{PublicKey: pk(2), Endpoint: Endpoint{IP: net.ParseIP("198.51.100.2").To4(), Port: 2}},
	}
	packed := PackNodes(nil, nodes)
	got, consumed, err := UnpackNodes(packed, 1, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, nodeSize, consumed)
}

func pk(b byte) [PublicKeySize]byte {
	var k [PublicKeySize]byte
	k[0] = b
	return k
}
