package dht

import "time"

// addToLists is addto_lists: invoked whenever any authenticated DHT
// packet arrives from peer. It offers peer to our own close list and
// to every friend's client array (including fakes), each admission
// governed by that list's own bucket rule.
func (d *DHT) addToLists(now time.Time, peer PublicKey, ep Endpoint) {
	if peer == d.publicKey {
		return
	}
	d.closeList.addOrRefresh(now, peer, ep)
	for _, f := range d.friends.friends {
		f.addOrRefresh(now, peer, ep)
		if f.PublicKey == peer {
			f.nat.onDirectContact()
			d.noteFriendFound(f, ep)
		}
	}
}

// noteFriendFound fires a real friend's OnIPFound subscribers and
// appends the corresponding event the first time (or any time) we
// learn its endpoint, whether from a direct packet or a send-nodes
// reply that happened to name the friend itself.
func (d *DHT) noteFriendFound(f *Friend, ep Endpoint) {
	if f.isFake {
		return
	}
	f.notifyIPFound(ep)
	d.events.Append(eventKindFriendFound, friendFoundFields(f.PublicKey, ep))
}

// getCloseNodes is get_close_nodes: walks the close list and every
// friend list, keeping the MaxSentNodes closest entries to target
// among those matching the requested family and not bad. wantGood is
// an unused hook: the upstream system carries a longstanding TODO
// about a finer "only very fresh nodes" filter that was never
// implemented, and this preserves that as a no-op rather than
// inventing the missing behavior.
func (d *DHT) getCloseNodes(target PublicKey, wantIPv6 bool, wantGood bool) []Node {
	_ = wantGood
	buf := newClosestBuffer(target, MaxSentNodes)

	consider := func(e *ClientEntry) {
		if !e.occupied() {
			return
		}
		var assoc *Assoc
		if wantIPv6 {
			assoc = &e.Assoc6
		} else {
			assoc = &e.Assoc4
		}
		if !assoc.known() || assoc.bad(d.now) {
			return
		}
		buf.add(Node{PublicKey: e.PublicKey, Endpoint: assoc.Endpoint})
	}

	for b := range d.closeList.buckets {
		for i := range d.closeList.buckets[b] {
			consider(&d.closeList.buckets[b][i])
		}
	}
	for _, f := range d.friends.friends {
		for i := range f.clients {
			consider(&f.clients[i])
		}
	}
	return buf.result()
}

// recordReturnedEndpoint stores the endpoint a send-nodes sender
// claimed we appear to have, used by the WAN/LAN consensus heuristic
// and by reporter tracking for NAT traversal and routing.
func (d *DHT) recordReturnedEndpoint(sender PublicKey, observed Endpoint) {
	for b := range d.closeList.buckets {
		for i := range d.closeList.buckets[b] {
			e := &d.closeList.buckets[b][i]
			if e.occupied() && e.PublicKey == sender {
				assoc := e.assocFor(observed)
				assoc.ReturnedEndpoint = observed
				assoc.ReturnedAt = d.now
				assoc.ReturnedIsSelf = d.selfReported.matches(observed)
				d.selfReported.observe(observed, assoc.ReturnedIsSelf)
			}
		}
	}
	for _, f := range d.friends.friends {
		for i := range f.clients {
			e := &f.clients[i]
			if e.occupied() && e.PublicKey == sender {
				assoc := e.assocFor(observed)
				assoc.ReturnedEndpoint = observed
				assoc.ReturnedAt = d.now
				f.nat.addReporter(sender)
			}
		}
	}
}

// reporterEndpoints collects the distinct endpoints reported for f,
// used as NAT-punching targets once enough reporters confirm.
func (d *DHT) reporterEndpoints(f *Friend) []Endpoint {
	var out []Endpoint
	for _, e := range f.reporters(d.now) {
		out = append(out, e.Endpoint4or6())
	}
	return out
}

// selfEndpointTracker implements the WAN/LAN consensus half of
// ipport_self_copy: it counts how many close-list entries recently
// reported the same ret_endpoint as ours with ret_is_self set.
type selfEndpointTracker struct {
	candidate Endpoint
	count     int
}

// matches reports whether observed equals the currently leading
// candidate endpoint (the first step of forming consensus).
func (t *selfEndpointTracker) matches(observed Endpoint) bool {
	return t.candidate.IP != nil && sameEndpoint(t.candidate, observed)
}

func (t *selfEndpointTracker) observe(observed Endpoint, isSelf bool) {
	if t.candidate.IP == nil {
		t.candidate = observed
		t.count = 1
		return
	}
	if sameEndpoint(t.candidate, observed) {
		if isSelf {
			t.count++
		}
		return
	}
	// A different endpoint is being reported; let it challenge the
	// incumbent once it has been seen more than the current leader.
	t.candidate = observed
	t.count = 1
}

func (t *selfEndpointTracker) consensus() (Endpoint, bool) {
	if t.count >= MinReportersForHolePunch {
		return t.candidate, true
	}
	return Endpoint{}, false
}

func sameEndpoint(a, b Endpoint) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
