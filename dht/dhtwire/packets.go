package dhtwire

import (
	"encoding/binary"
	"errors"
)

// Outer packet type bytes.
const (
	GetNodesPacket      byte = 0x02
	SendNodesPacket     byte = 0x04
	NATPingPacket       byte = 0xFE // subtype byte follows inside the plaintext
	CryptoRequestPacket byte = 0x20
)

// NAT-ping subtypes, carried as the first byte of the NAT-ping
// plaintext.
const (
	NATPingRequestSubtype  byte = 0x00
	NATPingResponseSubtype byte = 0x01
)

// Crypto-request IDs multiplexed over the generic envelope.
const (
	RequestIDFriendRequest byte = 32
	RequestIDDHTPK         byte = 156
	RequestIDNATPing       byte = 254
)

// MaxSentNodes is the maximum number of nodes carried in one
// send-nodes response.
const MaxSentNodes = 4

// MaxCryptoRequestSize bounds every packet.
const MaxCryptoRequestSize = 1024

var (
	ErrPacketTooSmall  = errors.New("dhtwire: packet smaller than its fixed header")
	ErrPacketTooLarge  = errors.New("dhtwire: packet exceeds MAX_CRYPTO_REQUEST_SIZE")
	ErrTooManyNodes    = errors.New("dhtwire: more than MAX_SENT_NODES in send-nodes payload")
	ErrTruncatedNonce8 = errors.New("dhtwire: plaintext too short for a trailing 8-byte nonce")
)

// GetNodes is the plaintext of a get-nodes request: the key we ask
// about, and an 8-byte ping-array nonce the response must echo.
type GetNodes struct {
	Target [PublicKeySize]byte
	Nonce8 uint64
}

func (p *GetNodes) Marshal() []byte {
	buf := make([]byte, 0, PublicKeySize+8)
	buf = append(buf, p.Target[:]...)
	return binary.BigEndian.AppendUint64(buf, p.Nonce8)
}

func UnmarshalGetNodes(data []byte) (*GetNodes, error) {
	if len(data) != PublicKeySize+8 {
		return nil, ErrPacketTooSmall
	}
	p := &GetNodes{}
	copy(p.Target[:], data[:PublicKeySize])
	p.Nonce8 = binary.BigEndian.Uint64(data[PublicKeySize:])
	return p, nil
}

// SendNodes is the plaintext of a send-nodes response: up to
// MAX_SENT_NODES nodes, and the echoed get-nodes nonce.
type SendNodes struct {
	Nodes  []Node
	Nonce8 uint64
}

func (p *SendNodes) Marshal() ([]byte, error) {
	if len(p.Nodes) > MaxSentNodes {
		return nil, ErrTooManyNodes
	}
	buf := make([]byte, 0, 1+len(p.Nodes)*nodeSize+8)
	buf = append(buf, byte(len(p.Nodes)))
	buf = PackNodes(buf, p.Nodes)
	buf = binary.BigEndian.AppendUint64(buf, p.Nonce8)
	return buf, nil
}

func UnmarshalSendNodes(data []byte, tcpEnabled bool) (*SendNodes, error) {
	if len(data) < 1+8 {
		return nil, ErrPacketTooSmall
	}
	count := int(data[0])
	if count > MaxSentNodes {
		return nil, ErrTooManyNodes
	}
	nodes, consumed, err := UnpackNodes(data[1:], count, tcpEnabled)
	if err != nil {
		return nil, err
	}
	if len(nodes) != count {
		return nil, ErrPacketTooSmall
	}
	rest := data[1+consumed:]
	if len(rest) != 8 {
		return nil, ErrTruncatedNonce8
	}
	return &SendNodes{Nodes: nodes, Nonce8: binary.BigEndian.Uint64(rest)}, nil
}

// NATPing is the plaintext of both NAT-ping request and response,
// distinguished by the leading subtype byte.
type NATPing struct {
	Subtype byte
	PingID  uint64
}

func (p *NATPing) Marshal() []byte {
	buf := make([]byte, 0, 9)
	buf = append(buf, p.Subtype)
	return binary.BigEndian.AppendUint64(buf, p.PingID)
}

func UnmarshalNATPing(data []byte) (*NATPing, error) {
	if len(data) != 9 {
		return nil, ErrPacketTooSmall
	}
	return &NATPing{Subtype: data[0], PingID: binary.BigEndian.Uint64(data[1:])}, nil
}

// CryptoRequest is the generic one-shot encrypted envelope used by
// higher layers (friend requests, DHTPK announcements, NAT pings):
// [0x20][recipient_pub:32][sender_pub:32][nonce:24][encrypted(request_id||data)].
type CryptoRequest struct {
	RecipientPub [PublicKeySize]byte
	SenderPub    [PublicKeySize]byte
	Nonce        [NonceSize]byte
	Ciphertext   []byte
}

const cryptoRequestHeaderSize = 1 + PublicKeySize + PublicKeySize + NonceSize

func (p *CryptoRequest) Marshal() []byte {
	buf := make([]byte, 0, cryptoRequestHeaderSize+len(p.Ciphertext))
	buf = append(buf, CryptoRequestPacket)
	buf = append(buf, p.RecipientPub[:]...)
	buf = append(buf, p.SenderPub[:]...)
	buf = append(buf, p.Nonce[:]...)
	return append(buf, p.Ciphertext...)
}

func UnmarshalCryptoRequest(data []byte) (*CryptoRequest, error) {
	if len(data) < cryptoRequestHeaderSize {
		return nil, ErrPacketTooSmall
	}
	if data[0] != CryptoRequestPacket {
		return nil, errors.New("dhtwire: not a crypto-request packet")
	}
	p := &CryptoRequest{}
	off := 1
	copy(p.RecipientPub[:], data[off:off+PublicKeySize])
	off += PublicKeySize
	copy(p.SenderPub[:], data[off:off+PublicKeySize])
	off += PublicKeySize
	copy(p.Nonce[:], data[off:off+NonceSize])
	off += NonceSize
	p.Ciphertext = data[off:]
	return p, nil
}

// OuterFrame is the common envelope for the four DHT packet types:
// [type:1][sender_pub:32][nonce:24][ciphertext].
type OuterFrame struct {
	Type       byte
	SenderPub  [PublicKeySize]byte
	Nonce      [NonceSize]byte
	Ciphertext []byte
}

const outerFrameHeaderSize = 1 + PublicKeySize + NonceSize

func (f *OuterFrame) Marshal() []byte {
	buf := make([]byte, 0, outerFrameHeaderSize+len(f.Ciphertext))
	buf = append(buf, f.Type)
	buf = append(buf, f.SenderPub[:]...)
	buf = append(buf, f.Nonce[:]...)
	return append(buf, f.Ciphertext...)
}

// UnmarshalOuterFrame parses the common envelope. Callers must still
// enforce MaxCryptoRequestSize on the raw input before calling this.
func UnmarshalOuterFrame(data []byte) (*OuterFrame, error) {
	if len(data) < outerFrameHeaderSize {
		return nil, ErrPacketTooSmall
	}
	f := &OuterFrame{Type: data[0]}
	off := 1
	copy(f.SenderPub[:], data[off:off+PublicKeySize])
	off += PublicKeySize
	copy(f.Nonce[:], data[off:off+NonceSize])
	off += NonceSize
	f.Ciphertext = data[off:]
	return f, nil
}
