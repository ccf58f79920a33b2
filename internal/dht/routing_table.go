package dht

import (
	"context"
	"sync"
	"time"
)

// Pinger probes a contact's liveness; it is the caller-supplied RPC bridge
// to the transport layer (a ping over an existing p2p.Session, or a fresh
// dial). The routing table never dials or frames wire messages itself.
type Pinger func(ctx context.Context, c Contact) bool

// PingTimeout bounds how long a single liveness probe issued by Insert may
// take, matching the wider RPC timeout §4.D sets for DHT round-trips.
const PingTimeout = 2 * time.Second

// RoutingTable holds the local node's view of the network as 160 k-buckets
// indexed by XOR-distance prefix length from its own id. It follows §5's
// single-logical-owner rule for shared mutable state: all access is
// serialized behind one RWMutex.
type RoutingTable struct {
	mu     sync.RWMutex
	self   ID
	pinger Pinger
	kb     [IDSize * 8]bucket
}

// NewRoutingTable creates an empty table for self, using pinger to probe
// the head-of-bucket contact when a bucket is full and a new contact
// arrives (step 3 of the §4.D insertion rule). A nil pinger always treats
// the head contact as unresponsive, evicting it in favor of the newcomer.
func NewRoutingTable(self ID, pinger Pinger) *RoutingTable {
	return &RoutingTable{self: self, pinger: pinger}
}

// Self returns the table's local id.
func (rt *RoutingTable) Self() ID { return rt.self }

// Insert applies the §4.D three-step rule for observing a contact:
//  1. If already present in its bucket, move it to the tail (most recently
//     seen) and update its timestamp.
//  2. Else if its bucket has room, append it as most-recently-seen.
//  3. Else ping the bucket's least-recently-seen contact; if it responds,
//     discard the newcomer, else evict the stale head and append the
//     newcomer.
//
// Insert never adds the local id to any bucket.
func (rt *RoutingTable) Insert(ctx context.Context, c Contact) {
	if c.ID == rt.self {
		return
	}
	idx := bucketIndex(Distance(rt.self, c.ID))
	if idx < 0 {
		return
	}
	if c.SeenAt.IsZero() {
		c.SeenAt = time.Now()
	}

	rt.mu.Lock()
	b := &rt.kb[idx]
	if i := b.find(c.ID); i >= 0 {
		b.touch(i, c.SeenAt)
		rt.mu.Unlock()
		return
	}
	if !b.full() {
		b.pushBack(c)
		rt.mu.Unlock()
		return
	}
	head, ok := b.front()
	rt.mu.Unlock()
	if !ok {
		return
	}

	alive := false
	if rt.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
		alive = rt.pinger(pingCtx, head)
		cancel()
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if alive {
		return
	}
	// Re-check: the bucket may have changed shape while we pinged.
	if i := b.find(head.ID); i == 0 {
		b.dropFront()
	} else if i > 0 {
		b.remove(i)
	}
	if !b.full() {
		b.pushBack(c)
	}
}

// Remove deletes id from the table, if present.
func (rt *RoutingTable) Remove(id ID) {
	if id == rt.self {
		return
	}
	idx := bucketIndex(Distance(rt.self, id))
	if idx < 0 {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	b := &rt.kb[idx]
	if i := b.find(id); i >= 0 {
		b.remove(i)
	}
}

// Closest returns up to n contacts sorted by ascending XOR distance to
// target, drawn from across all buckets.
func (rt *RoutingTable) Closest(target ID, n int) []Contact {
	rt.mu.RLock()
	all := make([]Contact, 0, K)
	for i := range rt.kb {
		all = append(all, rt.kb[i].snapshot()...)
	}
	rt.mu.RUnlock()

	sortByDistance(all, target)
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// sortByDistance sorts contacts in place by ascending XOR distance to
// target. Insertion sort is sufficient: candidate lists are bounded by
// the bucket count and K, never large enough to need better than O(n^2).
func sortByDistance(contacts []Contact, target ID) {
	for i := 1; i < len(contacts); i++ {
		for j := i; j > 0; j-- {
			di := Distance(contacts[j].ID, target)
			dj := Distance(contacts[j-1].ID, target)
			if Less(di, dj) {
				contacts[j], contacts[j-1] = contacts[j-1], contacts[j]
			} else {
				break
			}
		}
	}
}

// Size returns the total number of contacts held across all buckets.
func (rt *RoutingTable) Size() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	n := 0
	for i := range rt.kb {
		n += len(rt.kb[i].contacts)
	}
	return n
}
