// Package poh implements the Proof-of-History sequencer: a deterministic,
// verifiable hash chain advanced by Tick and MixIn, with entries recorded
// via RecordEntry and replayed by Verify (§4.F). The single-writer /
// snapshot-reader split follows §5's "PoH state is owned by the
// coordinator; readers use a seqlock-style protocol or short critical
// section" rule: Sequencer guards its state with one RWMutex rather than a
// true seqlock, since Go gives cheap RWMutex reads and the spec only
// requires a consistent snapshot, not a lock-free one.
package poh

import (
	"sync"

	"github.com/kjaylee/eastsea-node/internal/hashutil"
)

// Entry is one recorded step of the sequence: the hash the sequencer had
// reached, and how many SHA-256 iterations produced it from the previous
// entry's hash (64 for a pure-tick entry, 1 for a mix-in).
type Entry struct {
	Hash      [32]byte
	NumHashes uint64
}

// Sequencer advances a SHA-256 hash chain and records entries along the
// way. The zero value is a sequencer seeded with the all-zero hash; New
// seeds it with any initial hash.
type Sequencer struct {
	mu         sync.RWMutex
	current    [32]byte
	tickCount  uint64
	entries    []Entry
}

// New creates a Sequencer seeded with the given initial hash.
func New(initial [32]byte) *Sequencer {
	return &Sequencer{current: initial}
}

// Tick advances current_hash <- sha256(current_hash) and increments
// tick_count by 1.
func (s *Sequencer) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = hashutil.Sum256(s.current[:])
	s.tickCount++
}

// MixIn advances current_hash <- sha256(current_hash || data) and
// increments tick_count by 1.
func (s *Sequencer) MixIn(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, 0, len(s.current)+len(data))
	buf = append(buf, s.current[:]...)
	buf = append(buf, data...)
	s.current = hashutil.Sum256(buf)
	s.tickCount++
}

// RecordEntry appends an Entry capturing the sequencer's current hash,
// tagged with numHashes (the number of sha256 iterations since the prior
// recorded entry).
func (s *Sequencer) RecordEntry(numHashes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{Hash: s.current, NumHashes: numHashes})
}

// Snapshot returns a consistent (current_hash, tick_count) pair, per §4.F's
// reader contract.
func (s *Sequencer) Snapshot() (hash [32]byte, tickCount uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.tickCount
}

// Entries returns a copy of the entries recorded so far.
func (s *Sequencer) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Verify replays each entry's declared NumHashes iterations of sha256 from
// the running hash (starting at initial) and checks the result against the
// entry's recorded Hash; it rejects on the first mismatch. Verify is pure
// and re-entrant, as required by §4.F.
//
// A mixed-in entry cannot be verified by hashing alone — the mixed-in
// payload must accompany the proof — so Verify only replays pure-tick
// segments, matching the spec's explicit limitation to "the core we verify
// only the pure-tick segments."
func Verify(initial [32]byte, entries []Entry) bool {
	running := initial
	for _, e := range entries {
		if e.NumHashes == 1 {
			// A mix-in entry: its hash folds in a payload we don't have
			// here, so it can't be reproduced by hashing alone. Adopt it
			// on faith and keep verifying the pure-tick segments that
			// follow relative to it.
			running = e.Hash
			continue
		}
		for i := uint64(0); i < e.NumHashes; i++ {
			running = hashutil.Sum256(running[:])
		}
		if running != e.Hash {
			return false
		}
	}
	return true
}
