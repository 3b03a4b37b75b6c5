package dhtwire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetNodesMarshalRoundTrip(t *testing.T) {
	req := &GetNodes{Target: pk(0xAB), Nonce8: 0x0102030405060708}
	got, err := UnmarshalGetNodes(req.Marshal())
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestUnmarshalGetNodesRejectsWrongSize(t *testing.T) {
	_, err := UnmarshalGetNodes(make([]byte, PublicKeySize))
	require.ErrorIs(t, err, ErrPacketTooSmall)
}

func TestSendNodesMarshalRoundTrip(t *testing.T) {
	resp := &SendNodes{
		Nodes: []Node{
			{PublicKey: pk(1), Endpoint: Endpoint{IP: net.ParseIP("198.51.100.1").To4(), Port: 11}},
			{PublicKey: pk(2), Endpoint: Endpoint{IP: net.ParseIP("2001:db8::5"), Port: 22}},
		},
		Nonce8: 0xDEADBEEF,
	}
	data, err := resp.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalSendNodes(data, false)
	require.NoError(t, err)
	require.Equal(t, resp.Nonce8, got.Nonce8)
	require.Len(t, got.Nodes, 2)
	require.Equal(t, resp.Nodes[0].PublicKey, got.Nodes[0].PublicKey)
}

func TestSendNodesMarshalRejectsTooManyNodes(t *testing.T) {
	var nodes []Node
	for i := 0; i < MaxSentNodes+1; i++ {
		nodes = append(nodes, Node{PublicKey: pk(byte(i))})
	}
	_, err := (&SendNodes{Nodes: nodes}).Marshal()
	require.ErrorIs(t, err, ErrTooManyNodes)
}

func TestUnmarshalSendNodesRejectsTruncatedNonce(t *testing.T) {
	resp := &SendNodes{Nodes: nil, Nonce8: 7}
	data, err := resp.Marshal()
	require.NoError(t, err)
	_, err = UnmarshalSendNodes(data[:len(data)-1], false)
	require.Error(t, err)
}

func TestNATPingMarshalRoundTrip(t *testing.T) {
	for _, subtype := range []byte{NATPingRequestSubtype, NATPingResponseSubtype} {
		p := &NATPing{Subtype: subtype, PingID: 0x1122334455667788}
		got, err := UnmarshalNATPing(p.Marshal())
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
}

func TestCryptoRequestMarshalRoundTrip(t *testing.T) {
	req := &CryptoRequest{
		RecipientPub: pk(1),
		SenderPub:    pk(2),
		Nonce:        [NonceSize]byte{1, 2, 3},
		Ciphertext:   []byte("sealed-bytes"),
	}
	got, err := UnmarshalCryptoRequest(req.Marshal())
	require.NoError(t, err)
	require.Equal(t, req.RecipientPub, got.RecipientPub)
	require.Equal(t, req.SenderPub, got.SenderPub)
	require.Equal(t, req.Nonce, got.Nonce)
	require.Equal(t, req.Ciphertext, got.Ciphertext)
}

func TestUnmarshalCryptoRequestRejectsWrongLeadingByte(t *testing.T) {
	req := &CryptoRequest{RecipientPub: pk(1), SenderPub: pk(2)}
	data := req.Marshal()
	data[0] = 0x21
	_, err := UnmarshalCryptoRequest(data)
	require.Error(t, err)
}

func TestOuterFrameMarshalRoundTrip(t *testing.T) {
	f := &OuterFrame{
		Type:       GetNodesPacket,
		SenderPub:  pk(5),
		Nonce:      [NonceSize]byte{9, 9, 9},
		Ciphertext: []byte("payload"),
	}
	got, err := UnmarshalOuterFrame(f.Marshal())
	require.NoError(t, err)
	require.Equal(t, f.Type, got.Type)
	require.Equal(t, f.SenderPub, got.SenderPub)
	require.Equal(t, f.Nonce, got.Nonce)
	require.Equal(t, f.Ciphertext, got.Ciphertext)
}

func TestUnmarshalOuterFrameRejectsShortBuffer(t *testing.T) {
	_, err := UnmarshalOuterFrame(make([]byte, outerFrameHeaderSize-1))
	require.ErrorIs(t, err, ErrPacketTooSmall)
}
