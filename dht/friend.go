package dht

import (
	"errors"
	"time"
)

var (
	ErrFriendsFull    = errors.New("dht: friend subscriber limit reached")
	ErrFriendNotFound = errors.New("dht: no friend with that public key")
)

// friendSubscriber is one external lock on a friend: an optional
// endpoint-found callback plus the opaque user data and correlation
// number the caller supplied to AddFriend.
type friendSubscriber struct {
	active   bool
	callback OnIPFound
	userData any
	corr     int32
}

// Friend is a tracked identity whose endpoint we actively search for:
// its public key, the MaxFriendClients closest known nodes to that
// key, a NAT sub-record for hole punching, and the set of external
// subscribers keeping it alive.
type Friend struct {
	PublicKey PublicKey
	isFake    bool

	clients [MaxFriendClients]ClientEntry

	nat natRecord

	subscribers [DHTFriendMaxLocks]friendSubscriber

	lastSearch       time.Time
	lastRandomSearch time.Time
}

func newFriend(pub PublicKey) *Friend {
	f := &Friend{PublicKey: pub}
	f.nat = *newNATRecord()
	return f
}

// addSubscriber attaches a new subscriber in the first free slot and
// returns its lock count: the slot's 1-based index, which DelFriend
// must echo back to release exactly that subscription. Returns
// ErrFriendsFull once DHTFriendMaxLocks subscribers are active.
func (f *Friend) addSubscriber(cb OnIPFound, userData any, corr int32) (uint16, error) {
	for i := range f.subscribers {
		if !f.subscribers[i].active {
			f.subscribers[i] = friendSubscriber{active: true, callback: cb, userData: userData, corr: corr}
			return uint16(i + 1), nil
		}
	}
	return 0, ErrFriendsFull
}

// releaseSubscriber clears one subscriber slot identified by the lock
// count addSubscriber returned for it.
func (f *Friend) releaseSubscriber(lockCount uint16) bool {
	if lockCount == 0 || lockCount > uint16(len(f.subscribers)) {
		return false
	}
	idx := int(lockCount) - 1
	if !f.subscribers[idx].active {
		return false
	}
	f.subscribers[idx] = friendSubscriber{}
	return true
}

// activeSubscribers reports whether any subscriber still holds a lock.
func (f *Friend) activeSubscribers() bool {
	for i := range f.subscribers {
		if f.subscribers[i].active {
			return true
		}
	}
	return false
}

// notifyIPFound invokes every active subscriber's callback with the
// newly found endpoint.
func (f *Friend) notifyIPFound(ep Endpoint) {
	for i := range f.subscribers {
		s := &f.subscribers[i]
		if s.active && s.callback != nil {
			s.callback(s.userData, s.corr, ep)
		}
	}
}

// addOrRefresh admits candidate into this friend's client array using
// the same slot-preference rule as the close list (free > bad >
// farther), scoped to closeness to the friend's own key rather than
// ours.
func (f *Friend) addOrRefresh(now time.Time, candidate PublicKey, ep Endpoint) bool {
	bucket := f.clients[:]
	for i := range bucket {
		e := &bucket[i]
		if e.occupied() && e.PublicKey == candidate {
			assoc := e.assocFor(ep)
			assoc.Endpoint = ep
			assoc.LastHeard = now
			return true
		}
	}
	slot := pickSlot(f.PublicKey, bucket, candidate, now)
	if slot == -1 {
		return false
	}
	e := &bucket[slot]
	*e = ClientEntry{PublicKey: candidate}
	assoc := e.assocFor(ep)
	assoc.Endpoint = ep
	assoc.LastHeard = now
	return true
}

// closestKnown returns up to n of this friend's client entries
// ordered by closeness to the friend's key, skipping bad ones.
func (f *Friend) closestKnown(now time.Time, n int) []ClientEntry {
	buf := newClosestBuffer(f.PublicKey, n)
	for i := range f.clients {
		e := &f.clients[i]
		if e.occupied() && !e.bad(now) {
			buf.add(Node{PublicKey: e.PublicKey, Endpoint: e.Endpoint4or6()})
		}
	}
	out := make([]ClientEntry, 0, len(buf.result()))
	for _, n := range buf.result() {
		for i := range f.clients {
			if f.clients[i].PublicKey == n.PublicKey {
				out = append(out, f.clients[i])
			}
		}
	}
	return out
}

// reporters returns the client entries that recently reported seeing
// this friend (a known association whose ReturnedAt is set and less
// than BadNodeTimeout old), used to gate hole punching and routing.
func (f *Friend) reporters(now time.Time) []ClientEntry {
	var out []ClientEntry
	for i := range f.clients {
		e := &f.clients[i]
		if !e.occupied() {
			continue
		}
		for _, a := range []Assoc{e.Assoc4, e.Assoc6} {
			if a.known() && !a.ReturnedAt.IsZero() && now.Sub(a.ReturnedAt) < BadNodeTimeout {
				out = append(out, *e)
				break
			}
		}
	}
	return out
}

// friendList holds every tracked friend plus DHTFakeFriendCount fake
// identities (random keys regenerated at startup) that diversify
// routing probes but are excluded from Save, RouteToFriend, and
// event-log emission.
type friendList struct {
	friends []*Friend
}

func newFriendList() *friendList {
	return &friendList{}
}

func (fl *friendList) find(pub PublicKey) *Friend {
	for _, f := range fl.friends {
		if f.PublicKey == pub {
			return f
		}
	}
	return nil
}

func (fl *friendList) addReal(pub PublicKey) *Friend {
	if f := fl.find(pub); f != nil {
		return f
	}
	f := newFriend(pub)
	fl.friends = append(fl.friends, f)
	return f
}

func (fl *friendList) addFake(pub PublicKey) *Friend {
	f := newFriend(pub)
	f.isFake = true
	fl.friends = append(fl.friends, f)
	return f
}

// remove drops a friend once it is fully unlocked.
func (fl *friendList) remove(pub PublicKey) {
	for i, f := range fl.friends {
		if f.PublicKey == pub {
			fl.friends = append(fl.friends[:i], fl.friends[i+1:]...)
			return
		}
	}
}

func (fl *friendList) real() []*Friend {
	out := make([]*Friend, 0, len(fl.friends))
	for _, f := range fl.friends {
		if !f.isFake {
			out = append(out, f)
		}
	}
	return out
}
