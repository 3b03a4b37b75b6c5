package dht

import (
	"time"

	"github.com/holiman/uint256"
)

// bucketIndex returns the index of the highest-order bit at which k
// differs from self, clamped to LClientLength-1. An exact key match
// has no bucket and is rejected by callers.
func bucketIndex(self, k PublicKey) (int, bool) {
	if self == k {
		return 0, false
	}
	for byteIdx := 0; byteIdx < len(self); byteIdx++ {
		diff := self[byteIdx] ^ k[byteIdx]
		if diff == 0 {
			continue
		}
		for bit := 7; bit >= 0; bit-- {
			if diff&(1<<uint(bit)) != 0 {
				idx := byteIdx*8 + (7 - bit)
				if idx >= LClientLength {
					idx = LClientLength - 1
				}
				return idx, true
			}
		}
	}
	return 0, false
}

// distance returns XOR(ref, k) as a 256-bit big-endian integer, used
// to total-order candidates by closeness.
func distance(ref, k PublicKey) *uint256.Int {
	var xor [32]byte
	for i := range ref {
		xor[i] = ref[i] ^ k[i]
	}
	return new(uint256.Int).SetBytes(xor[:])
}

// idClosest returns 1 if a is strictly closer to ref than b, 2 if b
// is strictly closer, 0 on a tie.
func idClosest(ref, a, b PublicKey) int {
	da := distance(ref, a)
	db := distance(ref, b)
	switch da.Cmp(db) {
	case -1:
		return 1
	case 1:
		return 2
	default:
		return 0
	}
}

// closeList is our own k-bucket table of nodes near self, split into
// LClientLength buckets of LClientNodes entries apiece.
type closeList struct {
	self    PublicKey
	buckets [LClientLength][LClientNodes]ClientEntry
}

func newCloseList(self PublicKey) *closeList {
	return &closeList{self: self}
}

// slotsFor returns the bucket slice a candidate key belongs in, or
// ok=false if the key is our own (never stored).
func (cl *closeList) slotsFor(k PublicKey) ([]ClientEntry, bool) {
	idx, ok := bucketIndex(cl.self, k)
	if !ok {
		return nil, false
	}
	return cl.buckets[idx][:], true
}

// pickSlot finds the slot within a bucket that should receive a
// candidate key, preferring (in order) a free slot, a bad slot, then
// the slot holding the entry farthest from self — provided that
// entry is farther than the candidate. Returns -1 if none qualifies,
// and -1 if candidate is already present (a refresh, not an admission).
func pickSlot(self PublicKey, bucket []ClientEntry, candidate PublicKey, now time.Time) int {
	freeIdx, badIdx, farIdx := -1, -1, -1
	for i := range bucket {
		e := &bucket[i]
		if !e.occupied() {
			if freeIdx == -1 {
				freeIdx = i
			}
			continue
		}
		if e.PublicKey == candidate {
			return -1
		}
		if e.bad(now) {
			if badIdx == -1 {
				badIdx = i
			}
			continue
		}
		if idClosest(self, candidate, e.PublicKey) == 1 {
			if farIdx == -1 || idClosest(self, e.PublicKey, bucket[farIdx].PublicKey) == 2 {
				farIdx = i
			}
		}
	}
	switch {
	case freeIdx != -1:
		return freeIdx
	case badIdx != -1:
		return badIdx
	default:
		return farIdx
	}
}

// addable reports whether inserting candidate would change its
// bucket: either the key is already tracked (refresh, not a new
// admission) or pickSlot would find a slot for it.
func (cl *closeList) addable(now time.Time, candidate PublicKey) bool {
	bucket, ok := cl.slotsFor(candidate)
	if !ok {
		return false
	}
	for i := range bucket {
		if bucket[i].occupied() && bucket[i].PublicKey == candidate {
			return true
		}
	}
	return pickSlot(cl.self, bucket, candidate, now) != -1
}

// addOrRefresh inserts/updates candidate's entry in the close list
// for the given endpoint observed at now. Returns true if the close
// list was modified.
func (cl *closeList) addOrRefresh(now time.Time, candidate PublicKey, ep Endpoint) bool {
	bucket, ok := cl.slotsFor(candidate)
	if !ok {
		return false
	}
	for i := range bucket {
		e := &bucket[i]
		if e.occupied() && e.PublicKey == candidate {
			assoc := e.assocFor(ep)
			assoc.Endpoint = ep
			assoc.LastHeard = now
			return true
		}
	}
	slot := pickSlot(cl.self, bucket, candidate, now)
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

// markPinged records that we just sent a liveness probe to candidate,
// if it is present in the close list.
func (cl *closeList) markPinged(now time.Time, candidate PublicKey, ep Endpoint) {
	bucket, ok := cl.slotsFor(candidate)
	if !ok {
		return
	}
	for i := range bucket {
		e := &bucket[i]
		if e.occupied() && e.PublicKey == candidate {
			e.assocFor(ep).LastPinged = now
		}
	}
}

// evictStale clears any close-list slot whose entry is bad, returning
// the count of evictions (used by the maintenance loop for Stats).
func (cl *closeList) evictStale(now time.Time) int {
	evicted := 0
	for b := range cl.buckets {
		for i := range cl.buckets[b] {
			e := &cl.buckets[b][i]
			if e.occupied() && e.bad(now) {
				*e = ClientEntry{}
				evicted++
			}
		}
	}
	return evicted
}

// forEachDueForPing invokes fn for every occupied close-list entry
// whose last ping is due (now - lastPinged >= PingInterval, or it has
// never been pinged at all).
func (cl *closeList) forEachDueForPing(now time.Time, fn func(PublicKey, Endpoint)) {
	for b := range cl.buckets {
		for i := range cl.buckets[b] {
			e := &cl.buckets[b][i]
			if !e.occupied() {
				continue
			}
			for _, assoc := range []*Assoc{&e.Assoc4, &e.Assoc6} {
				if !assoc.known() {
					continue
				}
				if assoc.LastPinged.IsZero() || now.Sub(assoc.LastPinged) >= PingInterval {
					fn(e.PublicKey, assoc.Endpoint)
				}
			}
		}
	}
}

// size reports the number of occupied close-list entries.
func (cl *closeList) size() int {
	n := 0
	for b := range cl.buckets {
		for i := range cl.buckets[b] {
			if cl.buckets[b][i].occupied() {
				n++
			}
		}
	}
	return n
}

// all returns every occupied close-list entry, for persistence and
// get_close_nodes scans.
func (cl *closeList) all() []ClientEntry {
	var out []ClientEntry
	for b := range cl.buckets {
		for i := range cl.buckets[b] {
			if cl.buckets[b][i].occupied() {
				out = append(out, cl.buckets[b][i])
			}
		}
	}
	return out
}

// closestBuffer is add_to_list: a fixed-capacity "K closest" buffer
// maintained by closeness to a reference key, worse entries pushed
// out as better ones arrive.
type closestBuffer struct {
	ref     PublicKey
	cap     int
	entries []Node
}

func newClosestBuffer(ref PublicKey, capacity int) *closestBuffer {
	return &closestBuffer{ref: ref, cap: capacity}
}

func (b *closestBuffer) add(n Node) {
	for _, existing := range b.entries {
		if existing.PublicKey == n.PublicKey {
			return
		}
	}
	if len(b.entries) < b.cap {
		b.entries = append(b.entries, n)
		b.sort()
		return
	}
	worst := b.entries[len(b.entries)-1]
	if idClosest(b.ref, n.PublicKey, worst.PublicKey) == 1 {
		b.entries[len(b.entries)-1] = n
		b.sort()
	}
}

func (b *closestBuffer) sort() {
	for i := 1; i < len(b.entries); i++ {
		j := i
		for j > 0 && idClosest(b.ref, b.entries[j].PublicKey, b.entries[j-1].PublicKey) == 1 {
			b.entries[j], b.entries[j-1] = b.entries[j-1], b.entries[j]
			j--
		}
	}
}

func (b *closestBuffer) result() []Node {
	return b.entries
}
