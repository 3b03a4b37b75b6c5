package dht

import (
	"encoding/binary"
	"errors"

	"github.com/toktok/dhtcore/dht/dhtwire"
)

// ErrCorruptSave is returned by Load when the data is malformed: a bad
// magic, a bad section header or length, or a self-keypair or friends
// section of the wrong size. Unknown section types are tolerated and
// skipped. Load's only other failure is an error from
// Config.PrivateKeyGenerator while regenerating the fake friends.
var ErrCorruptSave = errors.New("dht: corrupt save data")

var saveMagic = [4]byte{'T', 'K', 'D', '1'}

const (
	sectionSelfKeypair uint16 = 0x0001
	sectionNodes       uint16 = 0x0002
	sectionFriends     uint16 = 0x0003
)

var sectionTag = [4]byte{0x11, 0xCE, 0x11, 0xED}

// Save serializes the self keypair, every known node (close list plus
// friend-list clients with a known endpoint), and the real friend
// list (fake friends excluded) into the tagged-section format.
func (d *DHT) Save() []byte {
	buf := append([]byte{}, saveMagic[:]...)

	buf = appendSection(buf, sectionSelfKeypair, func(p []byte) []byte {
		p = append(p, d.publicKey[:]...)
		return append(p, d.secretKey[:]...)
	})

	buf = appendSection(buf, sectionNodes, func(p []byte) []byte {
		for _, e := range d.closeList.all() {
			p = appendNodeEntry(p, e)
		}
		for _, f := range d.friends.friends {
			if f.isFake {
				continue
			}
			for _, e := range f.clients {
				if e.occupied() {
					p = appendNodeEntry(p, e)
				}
			}
		}
		return p
	})

	buf = appendSection(buf, sectionFriends, func(p []byte) []byte {
		for _, f := range d.friends.real() {
			p = append(p, f.PublicKey[:]...)
		}
		return p
	})

	return buf
}

func appendNodeEntry(p []byte, e ClientEntry) []byte {
	for _, assoc := range []Assoc{e.Assoc4, e.Assoc6} {
		if assoc.known() {
			n := dhtwire.Node{PublicKey: e.PublicKey, Endpoint: assoc.Endpoint}
			p = dhtwire.PackNodes(p, []dhtwire.Node{n})
		}
	}
	return p
}

func appendSection(buf []byte, sectionType uint16, write func([]byte) []byte) []byte {
	payload := write(nil)
	var header [10]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint16(header[4:6], sectionType)
	copy(header[6:10], sectionTag[:])
	buf = append(buf, header[:]...)
	return append(buf, payload...)
}

// Load resets the keypair, close list, friend list, shared-key cache,
// ping array and self-endpoint tally to their post-New state and
// replays data into them. On any framing error it returns ErrCorruptSave and leaves
// the receiver untouched: it decodes into scratch values first and
// swaps them in only once every section parses cleanly, so a
// corrupt save never causes a partial load.
func (d *DHT) Load(data []byte) error {
	if len(data) < len(saveMagic) || string(data[:len(saveMagic)]) != string(saveMagic[:]) {
		return ErrCorruptSave
	}
	data = data[len(saveMagic):]

	var pub PublicKey
	var sec SecretKey
	var havePair bool
	var nodes []Node
	var friendPubs []PublicKey

	for len(data) > 0 {
		if len(data) < 10 {
			return ErrCorruptSave
		}
		length := binary.LittleEndian.Uint32(data[0:4])
		sectionType := binary.LittleEndian.Uint16(data[4:6])
		if data[6] != sectionTag[0] || data[7] != sectionTag[1] || data[8] != sectionTag[2] || data[9] != sectionTag[3] {
			return ErrCorruptSave
		}
		data = data[10:]
		if uint64(length) > uint64(len(data)) {
			return ErrCorruptSave
		}
		payload := data[:length]
		data = data[length:]

		switch sectionType {
		case sectionSelfKeypair:
			if len(payload) != len(pub)+len(sec) {
				return ErrCorruptSave
			}
			copy(pub[:], payload[:len(pub)])
			copy(sec[:], payload[len(pub):])
			havePair = true
		case sectionNodes:
			parsed, _, err := dhtwire.UnpackNodes(payload, len(payload), d.cfg.TCPEnabled)
			if err != nil {
				return ErrCorruptSave
			}
			for _, n := range parsed {
				nodes = append(nodes, Node{PublicKey: n.PublicKey, Endpoint: n.Endpoint})
			}
		case sectionFriends:
			if len(payload)%32 != 0 {
				return ErrCorruptSave
			}
			for off := 0; off < len(payload); off += 32 {
				var fp PublicKey
				copy(fp[:], payload[off:off+32])
				friendPubs = append(friendPubs, fp)
			}
		default:
			// unknown section type: skip, per the tolerant-load contract
		}
	}

	newPublicKey := d.publicKey
	newSecretKey := d.secretKey
	if havePair {
		newPublicKey = pub
		newSecretKey = sec
	}

	realFriends := newFriendList()
	for _, fp := range friendPubs {
		realFriends.addReal(fp)
	}
	for i := 0; i < DHTFakeFriendCount; i++ {
		_, fakePub, err := d.cfg.PrivateKeyGenerator()
		if err != nil {
			return err
		}
		realFriends.addFake(fakePub)
	}

	// Every section parsed and the fake-friend keys generated cleanly:
	// only now do we swap the new state into the receiver.
	d.publicKey = newPublicKey
	d.secretKey = newSecretKey
	d.closeList = newCloseList(d.publicKey)
	d.friends = realFriends
	d.sharedKeys = newSharedKeyCache()
	d.pingArray = newPingArray()
	d.selfReported = selfEndpointTracker{}

	// Loaded nodes are bootstrap candidates, not trusted directly:
	// they enter the close list only after a live get-nodes round-trip.
	d.bootstrapQueue = append(d.bootstrapQueue[:0], nodes...)

	return nil
}
