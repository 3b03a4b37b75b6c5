package dht

import (
	"github.com/toktok/dhtcore/dht/dhtwire"
)

// dedupeCacheSize bounds the anti-replay LRU of recently seen
// crypto-request digests.
const dedupeCacheSize = 4096

type dedupeKey struct {
	sender PublicKey
	nonce  [dhtwire.NonceSize]byte
}

// handlePacket is HandlePacket's implementation: it parses the outer
// frame, decrypts it, and dispatches on the type byte. Malformed or
// undecryptable input is dropped silently and counted in Stats,
// exactly error class 1.
func (d *DHT) handlePacket(from Endpoint, data []byte) {
	if len(data) < 1 || len(data) > MaxCryptoRequestSize {
		d.stats.MalformedPackets++
		return
	}

	if data[0] == dhtwire.CryptoRequestPacket {
		d.handleCryptoRequestEnvelope(from, data)
		return
	}

	frame, err := dhtwire.UnmarshalOuterFrame(data)
	if err != nil {
		d.stats.MalformedPackets++
		return
	}

	senderPub := PublicKey(frame.SenderPub)
	shared, err := d.sharedKeys.get(d.now, d.secretKey, senderPub)
	if err != nil {
		d.stats.MalformedPackets++
		return
	}
	plain, err := openWithSharedKey(shared, frame.Nonce, frame.Ciphertext)
	if err != nil {
		d.stats.DecryptFailures++
		return
	}

	switch frame.Type {
	case dhtwire.GetNodesPacket:
		d.handleGetNodes(from, senderPub, plain)
	case dhtwire.SendNodesPacket:
		if !d.handleSendNodes(from, senderPub, plain) {
			return
		}
	case dhtwire.NATPingPacket:
		d.handleNATPing(from, senderPub, plain)
	default:
		d.stats.UnknownPacketType++
	}

	d.addToLists(d.now, senderPub, from)
}

func (d *DHT) handleGetNodes(from Endpoint, sender PublicKey, plain []byte) {
	req, err := dhtwire.UnmarshalGetNodes(plain)
	if err != nil {
		d.stats.MalformedPackets++
		return
	}
	nodes := d.getCloseNodes(PublicKey(req.Target), from.IsV6(), false)
	resp := &dhtwire.SendNodes{Nonce8: req.Nonce8}
	for _, n := range nodes {
		resp.Nodes = append(resp.Nodes, dhtwire.Node{PublicKey: n.PublicKey, Endpoint: n.Endpoint})
	}
	d.sendEncrypted(sender, from, dhtwire.SendNodesPacket, func() ([]byte, error) { return resp.Marshal() })
}

// handleSendNodes reports whether the reply was well-formed and echoed
// a verified nonce; only then may the sender itself be added to the
// routing table.
func (d *DHT) handleSendNodes(from Endpoint, sender PublicKey, plain []byte) bool {
	resp, err := dhtwire.UnmarshalSendNodes(plain, d.cfg.TCPEnabled)
	if err != nil {
		d.stats.MalformedPackets++
		return false
	}
	if _, ok := d.pingArray.check(d.now, resp.Nonce8, sender); !ok {
		// an unverified nonce must not mutate the routing table.
		d.stats.UnsolicitedReplies++
		return false
	}
	d.recordReturnedEndpoint(sender, from)
	for _, n := range resp.Nodes {
		pub := PublicKey(n.PublicKey)
		d.addToLists(d.now, pub, n.Endpoint)
		if d.onGetNodes != nil {
			d.onGetNodes(Node{PublicKey: pub, Endpoint: n.Endpoint})
		}
		d.events.Append(eventKindNodeLearned, nodeLearnedFields(pub, n.Endpoint))
	}
	return true
}

func (d *DHT) handleNATPing(from Endpoint, sender PublicKey, plain []byte) {
	np, err := dhtwire.UnmarshalNATPing(plain)
	if err != nil {
		d.stats.MalformedPackets++
		return
	}
	f := d.friends.find(sender)
	if f == nil {
		d.stats.UnsolicitedReplies++
		return
	}
	switch np.Subtype {
	case dhtwire.NATPingRequestSubtype:
		resp := &dhtwire.NATPing{Subtype: dhtwire.NATPingResponseSubtype, PingID: np.PingID}
		d.sendEncrypted(sender, from, dhtwire.NATPingPacket, func() ([]byte, error) { return resp.Marshal(), nil })
	case dhtwire.NATPingResponseSubtype:
		targets := d.reporterEndpoints(f)
		if f.nat.recordPong(d.now, sender, np.PingID, targets) {
			d.events.Append(eventKindNATStateChanged, natStateFields(f.PublicKey, f.nat.state))
		}
	default:
		d.stats.MalformedPackets++
	}
}

// handleCryptoRequestEnvelope parses the generic [0x20] envelope,
// verifies the recipient is us, decrypts, deduplicates, and
// dispatches to the handler registered for the embedded request_id.
func (d *DHT) handleCryptoRequestEnvelope(from Endpoint, data []byte) {
	req, err := dhtwire.UnmarshalCryptoRequest(data)
	if err != nil {
		d.stats.MalformedPackets++
		return
	}
	if PublicKey(req.RecipientPub) != d.publicKey {
		d.stats.MalformedPackets++
		return
	}
	key := dedupeKey{sender: PublicKey(req.SenderPub), nonce: req.Nonce}
	if _, seen := d.dedupe.Get(key); seen {
		return
	}
	shared, err := d.sharedKeys.get(d.now, d.secretKey, PublicKey(req.SenderPub))
	if err != nil {
		d.stats.MalformedPackets++
		return
	}
	plain, err := openWithSharedKey(shared, req.Nonce, req.Ciphertext)
	if err != nil {
		d.stats.DecryptFailures++
		return
	}
	if len(plain) < 1 {
		d.stats.MalformedPackets++
		return
	}
	d.dedupe.Add(key, d.now)

	requestID := plain[0]
	cb := d.cryptoHandlers[requestID]
	if cb == nil {
		d.stats.UnknownPacketType++
		return
	}
	cb(PublicKey(req.SenderPub), from, plain[1:])
}

// sendEncrypted seals build()'s output under the shared key for pub
// and sends the resulting outer frame to ep. Transport failures are
// swallowed (error class 3): the loss is indistinguishable from a
// dropped UDP packet.
func (d *DHT) sendEncrypted(pub PublicKey, ep Endpoint, packetType byte, build func() ([]byte, error)) {
	plain, err := build()
	if err != nil {
		return
	}
	shared, err := d.sharedKeys.get(d.now, d.secretKey, pub)
	if err != nil {
		return
	}
	nonce, ciphertext, err := sealWithSharedKey(shared, plain)
	if err != nil {
		return
	}
	frame := &dhtwire.OuterFrame{Type: packetType, SenderPub: d.publicKey, Nonce: nonce, Ciphertext: ciphertext}
	_ = d.cfg.Transport.Send(ep, frame.Marshal())
}

// sendGetNodes issues a get-nodes request for target to (pub, ep),
// recording the ping-array entry that validates the eventual reply.
func (d *DHT) sendGetNodes(pub PublicKey, ep Endpoint, target PublicKey) {
	nonce8, err := d.pingArray.add(d.now, pub, ep)
	if err != nil {
		d.stats.PingArrayFull++
		return
	}
	req := &dhtwire.GetNodes{Target: target, Nonce8: nonce8}
	d.sendEncrypted(pub, ep, dhtwire.GetNodesPacket, func() ([]byte, error) { return req.Marshal(), nil })
}
