// Package dhtwire implements the wire codec for the DHT: IP_Port and
// node-list packing, and the packet frame shared by the four DHT
// packet types plus the generic crypto-request envelope.
package dhtwire

import (
	"encoding/binary"
	"errors"
	"net"
)

// Family tags, bit-exact with the wire protocol.
const (
	FamilyV4    byte = 2
	FamilyV6    byte = 10
	FamilyTCPv4 byte = FamilyV4 | 0x80
	FamilyTCPv6 byte = FamilyV6 | 0x80
)

const (
	// PublicKeySize is the size in bytes of a long-term X25519 public key.
	PublicKeySize = 32
	// NonceSize is the size in bytes of an XSalsa20-Poly1305 nonce.
	NonceSize = 24

	addrFieldSize = 16
	ipPortSize    = 1 + addrFieldSize + 2
	nodeSize      = ipPortSize + PublicKeySize
)

var (
	// ErrBadFamily is returned when a family byte is neither a
	// recognized UDP nor (when enabled) TCP variant.
	ErrBadFamily = errors.New("dhtwire: unrecognized address family byte")
	// ErrShortBuffer is returned when the input is too short to hold a
	// complete record.
	ErrShortBuffer = errors.New("dhtwire: buffer too short")
)

// Endpoint is the wire form of IP_Port: an address family, an IPv4 or
// IPv6 address, and a UDP port. TCP indicates the node is reachable
// via TCP relay on the same address/port (the TCP_v4/TCP_v6 variants).
type Endpoint struct {
	IP   net.IP
	Port uint16
	TCP  bool
}

// IsV6 reports whether the endpoint carries an IPv6 address.
func (e Endpoint) IsV6() bool {
	return e.IP.To4() == nil
}

// PackIPPort appends the packed form of e to dst and returns the
// result: one family byte, 16 bytes of address (IPv4 addresses
// left-padded with zeros to 16), then a big-endian 16-bit port.
func PackIPPort(dst []byte, e Endpoint) []byte {
	family := FamilyV4
	addr4 := e.IP.To4()
	var addrField [addrFieldSize]byte
	if addr4 == nil {
		family = FamilyV6
		copy(addrField[:], e.IP.To16())
	} else {
		// left-pad: the 4-byte address occupies the low-order (last)
		// bytes of the 16-byte field.
		copy(addrField[addrFieldSize-4:], addr4)
	}
	if e.TCP {
		family |= 0x80
	}
	dst = append(dst, family)
	dst = append(dst, addrField[:]...)
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], e.Port)
	return append(dst, portBuf[:]...)
}

// UnpackIPPort decodes one packed endpoint from the front of data.
// When tcpEnabled is false, TCP-flavored family bytes are rejected.
// It returns the endpoint and the number of bytes consumed.
func UnpackIPPort(data []byte, tcpEnabled bool) (Endpoint, int, error) {
	if len(data) < ipPortSize {
		return Endpoint{}, 0, ErrShortBuffer
	}
	family := data[0]
	tcp := false
	switch family {
	case FamilyTCPv4, FamilyTCPv6:
		if !tcpEnabled {
			return Endpoint{}, 0, ErrBadFamily
		}
		tcp = true
		family &^= 0x80
	case FamilyV4, FamilyV6:
	default:
		return Endpoint{}, 0, ErrBadFamily
	}

	addrField := data[1 : 1+addrFieldSize]
	var ip net.IP
	switch family {
	case FamilyV4:
		ip = net.IPv4(addrField[12], addrField[13], addrField[14], addrField[15])
	case FamilyV6:
		ip = make(net.IP, 16)
		copy(ip, addrField)
	default:
		return Endpoint{}, 0, ErrBadFamily
	}
	port := binary.BigEndian.Uint16(data[1+addrFieldSize : ipPortSize])
	return Endpoint{IP: ip, Port: port, TCP: tcp}, ipPortSize, nil
}

// Node is a (public_key, endpoint) pair as carried in get-nodes/
// send-nodes packets.
type Node struct {
	PublicKey [PublicKeySize]byte
	Endpoint  Endpoint
}

// PackNodes appends the packed form of nodes to dst: each record is
// packed_ip_port followed by the 32-byte public key.
func PackNodes(dst []byte, nodes []Node) []byte {
	for _, n := range nodes {
		dst = PackIPPort(dst, n.Endpoint)
		dst = append(dst, n.PublicKey[:]...)
	}
	return dst
}

// UnpackNodes decodes up to maxNodes node records from data, stopping
// cleanly at the first partial record. It returns the decoded nodes
// and the number of bytes consumed, so callers can tell padding from
// corruption.
func UnpackNodes(data []byte, maxNodes int, tcpEnabled bool) ([]Node, int, error) {
	var nodes []Node
	processed := 0
	for len(nodes) < maxNodes {
		rest := data[processed:]
		if len(rest) < nodeSize {
			break
		}
		ep, n, err := UnpackIPPort(rest, tcpEnabled)
		if err != nil {
			break
		}
		var node Node
		node.Endpoint = ep
		copy(node.PublicKey[:], rest[n:n+PublicKeySize])
		nodes = append(nodes, node)
		processed += n + PublicKeySize
	}
	return nodes, processed, nil
}
