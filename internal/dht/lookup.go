package dht

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Alpha is the lookup's concurrency parallelism factor, per §4.D.
const Alpha = 3

// LookupTimeout bounds a single FIND_NODE round-trip issued during a
// lookup.
const LookupTimeout = 2 * time.Second

// Finder issues a single FIND_NODE RPC against peer, asking it for the
// contacts it knows closest to target. Like Pinger, this is the caller's
// bridge into the transport layer.
type Finder func(ctx context.Context, peer Contact, target ID) ([]Contact, error)

// candidate tracks one contact's position in an in-progress lookup.
type candidate struct {
	Contact
	queried bool
}

// Lookup performs the iterative FIND_NODE procedure of §4.D: starting from
// seeds, it repeatedly queries up to Alpha of the closest not-yet-queried
// candidates in parallel, merges replies into the shortlist, and stops
// once a full round fails to produce a contact closer than the best seen
// so far (or every known candidate within n has been queried). It returns
// up to n contacts sorted by ascending distance to target.
func Lookup(ctx context.Context, target ID, seeds []Contact, n int, find Finder) []Contact {
	cands := make(map[ID]*candidate, len(seeds))
	for _, s := range seeds {
		cands[s.ID] = &candidate{Contact: s}
	}

	best := bestDistance(cands, target)
	sem := semaphore.NewWeighted(Alpha)

	for {
		round := pickUnqueried(cands, target, n, Alpha)
		if len(round) == 0 {
			break
		}

		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, cand := range round {
			cand.queried = true
			wg.Add(1)
			go func(c Contact) {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)

				rpcCtx, cancel := context.WithTimeout(ctx, LookupTimeout)
				replies, err := find(rpcCtx, c, target)
				cancel()
				if err != nil {
					return
				}
				mu.Lock()
				for _, r := range replies {
					if _, ok := cands[r.ID]; !ok {
						cands[r.ID] = &candidate{Contact: r}
					}
				}
				mu.Unlock()
			}(cand.Contact)
		}
		wg.Wait()

		if ctx.Err() != nil {
			break
		}

		next := bestDistance(cands, target)
		if !Less(next, best) {
			// This round queried its candidates but surfaced nothing
			// closer than what we already had: converged.
			break
		}
		best = next
	}

	all := make([]Contact, 0, len(cands))
	for _, c := range cands {
		all = append(all, c.Contact)
	}
	sortByDistance(all, target)
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// pickUnqueried returns up to max not-yet-queried candidates among the n
// closest known to target.
func pickUnqueried(cands map[ID]*candidate, target ID, n, max int) []*candidate {
	ordered := make([]*candidate, 0, len(cands))
	for _, c := range cands {
		ordered = append(ordered, c)
	}
	sortCandidates(ordered, target)
	if len(ordered) > n {
		ordered = ordered[:n]
	}

	out := make([]*candidate, 0, max)
	for _, c := range ordered {
		if !c.queried {
			out = append(out, c)
			if len(out) == max {
				break
			}
		}
	}
	return out
}

func sortCandidates(cs []*candidate, target ID) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0; j-- {
			di := Distance(cs[j].ID, target)
			dj := Distance(cs[j-1].ID, target)
			if Less(di, dj) {
				cs[j], cs[j-1] = cs[j-1], cs[j]
			} else {
				break
			}
		}
	}
}

// bestDistance returns the smallest distance-to-target among cands, or
// the maximal all-0xFF distance if cands is empty.
func bestDistance(cands map[ID]*candidate, target ID) ID {
	var best ID
	for i := range best {
		best[i] = 0xFF
	}
	first := true
	for _, c := range cands {
		d := Distance(c.ID, target)
		if first || Less(d, best) {
			best = d
			first = false
		}
	}
	return best
}
