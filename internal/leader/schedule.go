// Package leader implements the deterministic round-robin slot-to-leader
// mapping (§4.G). The schedule is static for the core; reshuffling is out
// of scope.
package leader

import "sync/atomic"

// Schedule holds an ordered list of leader ids and the current slot
// counter. CurrentSlot only ever moves forward via AdvanceSlot, so it is
// kept as an atomic counter rather than behind a mutex — the single writer
// (the node coordinator's timer task) and any number of readers never need
// more than that.
type Schedule struct {
	leaders []string
	slot    atomic.Uint64
}

// New creates a Schedule over leaders, starting at slot 0.
func New(leaders []string) *Schedule {
	cp := make([]string, len(leaders))
	copy(cp, leaders)
	return &Schedule{leaders: cp}
}

// LeaderFor returns leaders[slot % len(leaders)]. Returns "" if the
// schedule has no leaders configured.
func (s *Schedule) LeaderFor(slot uint64) string {
	if len(s.leaders) == 0 {
		return ""
	}
	return s.leaders[slot%uint64(len(s.leaders))]
}

// CurrentSlot returns the schedule's current slot number.
func (s *Schedule) CurrentSlot() uint64 {
	return s.slot.Load()
}

// AdvanceSlot increments the current slot by one.
func (s *Schedule) AdvanceSlot() {
	s.slot.Add(1)
}

// IsSelfLeader reports whether selfID is the leader for the current slot.
func (s *Schedule) IsSelfLeader(selfID string) bool {
	return s.LeaderFor(s.CurrentSlot()) == selfID
}

// Leaders returns a copy of the configured leader list.
func (s *Schedule) Leaders() []string {
	cp := make([]string, len(s.leaders))
	copy(cp, s.leaders)
	return cp
}
