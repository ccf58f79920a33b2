package dht

import "time"

// K is the maximum number of contacts held in a single k-bucket, per §4.D.
const K = 20

// Contact is a known peer in the routing table.
type Contact struct {
	ID      ID
	Addr    string // host:port, as dialed/advertised over the wire
	SeenAt  time.Time
}

// bucket is a fixed-capacity, most-recently-seen-last list of contacts
// sharing a given XOR-distance prefix length from the local id.
type bucket struct {
	contacts []Contact
}

// find returns the index of id within b, or -1.
func (b *bucket) find(id ID) int {
	for i, c := range b.contacts {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// touch moves the contact at index i to the tail (most-recently-seen) and
// refreshes its SeenAt.
func (b *bucket) touch(i int, seenAt time.Time) {
	c := b.contacts[i]
	c.SeenAt = seenAt
	b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
	b.contacts = append(b.contacts, c)
}

// full reports whether the bucket has reached capacity K.
func (b *bucket) full() bool { return len(b.contacts) >= K }

// front returns the bucket's least-recently-seen contact, which is always
// the ping candidate under the §4.D replacement rule. ok is false for an
// empty bucket.
func (b *bucket) front() (Contact, bool) {
	if len(b.contacts) == 0 {
		return Contact{}, false
	}
	return b.contacts[0], true
}

// dropFront removes the least-recently-seen contact.
func (b *bucket) dropFront() {
	if len(b.contacts) == 0 {
		return
	}
	b.contacts = b.contacts[1:]
}

// pushBack appends a new contact as most-recently-seen.
func (b *bucket) pushBack(c Contact) {
	b.contacts = append(b.contacts, c)
}

// remove deletes the contact at index i.
func (b *bucket) remove(i int) {
	b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
}

// snapshot returns a copy of the bucket's contacts, oldest-seen first.
func (b *bucket) snapshot() []Contact {
	out := make([]Contact, len(b.contacts))
	copy(out, b.contacts)
	return out
}
