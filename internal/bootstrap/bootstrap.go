// Package bootstrap implements the seed-list rejoin and periodic
// re-announce client of §4.E. Like dht, it is transport-agnostic: the
// Dialer/Announcer functions it calls are supplied by the coordinator,
// which owns the actual P2P sessions.
package bootstrap

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/kjaylee/eastsea-node/internal/logctx"
)

var log = logctx.Logger("BOOT")

// MaxStartupOutboundDials caps the number of new outbound connections the
// client will open while rejoining at startup (§4.E default 8).
const MaxStartupOutboundDials = 8

// ReannounceInterval is the default interval between BootstrapAnnounce
// re-sends to a seed, per §4.E.
const ReannounceInterval = 5 * time.Minute

// PeerAddr identifies a candidate peer by address.
type PeerAddr struct {
	Host string
	Port uint16
}

func (p PeerAddr) String() string { return p.Host + ":" + strconv.Itoa(int(p.Port)) }

// Dialer opens a P2P session to addr, returning an error if the peer is
// unreachable.
type Dialer func(ctx context.Context, addr PeerAddr) error

// PeersRequester asks seed for its known peer list.
type PeersRequester func(ctx context.Context, seed PeerAddr) ([]PeerAddr, error)

// Announcer sends a BootstrapAnnounce to seed.
type Announcer func(ctx context.Context, seed PeerAddr) error

// Client drives startup rejoin and periodic re-announce against a fixed
// seed list. An empty seed list puts the node in island mode: Rejoin only
// logs that fact and RunReannounce starts nothing, per §4.E.
type Client struct {
	Seeds              []PeerAddr
	Dial               Dialer
	RequestPeers       PeersRequester
	Announce           Announcer
	ReannounceInterval time.Duration

	mu       sync.Mutex
	dialed   map[string]bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a Client over seeds.
func New(seeds []PeerAddr, dial Dialer, requestPeers PeersRequester, announce Announcer, reannounce time.Duration) *Client {
	if reannounce <= 0 {
		reannounce = ReannounceInterval
	}
	return &Client{
		Seeds:              seeds,
		Dial:               dial,
		RequestPeers:       requestPeers,
		Announce:           announce,
		ReannounceInterval: reannounce,
		dialed:             make(map[string]bool),
		stopCh:             make(chan struct{}),
	}
}

// Rejoin performs the startup sequence: for each reachable seed, request
// its peer list and dial returned candidates that haven't already been
// dialed, until MaxStartupOutboundDials successful dials have been made in
// this call. Seed dials count toward that cap, but every seed is dialed
// regardless of it. Returns the peers learned
// of, regardless of how many were actually dialed, so the caller can feed
// them into the DHT routing table.
func (c *Client) Rejoin(ctx context.Context) []PeerAddr {
	if len(c.Seeds) == 0 {
		log.Infof("no seeds configured, running in island mode")
		return nil
	}

	var learned []PeerAddr
	dials := 0
	for _, seed := range c.Seeds {
		if err := c.Dial(ctx, seed); err != nil {
			log.Warnf("seed=%s unreachable during rejoin: %v", seed, err)
			continue
		}
		c.markDialed(seed)
		dials++

		peers, err := c.RequestPeers(ctx, seed)
		if err != nil {
			log.Warnf("seed=%s peers request failed: %v", seed, err)
			continue
		}
		learned = append(learned, peers...)

		for _, p := range peers {
			if dials >= MaxStartupOutboundDials {
				break
			}
			if c.alreadyDialed(p) {
				continue
			}
			if err := c.Dial(ctx, p); err != nil {
				log.Warnf("peer=%s dial failed during rejoin: %v", p, err)
				continue
			}
			c.markDialed(p)
			dials++
		}
	}
	return learned
}

func (c *Client) markDialed(p PeerAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialed[p.String()] = true
}

func (c *Client) alreadyDialed(p PeerAddr) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialed[p.String()]
}

// RunReannounce starts a goroutine that sends Announce to one seed (cycling
// through the list) every ReannounceInterval until Stop is called, and
// returns immediately. A no-op in island mode.
func (c *Client) RunReannounce() {
	if len(c.Seeds) == 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.ReannounceInterval)
		defer ticker.Stop()
		next := 0
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				seed := c.Seeds[next%len(c.Seeds)]
				next++
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := c.Announce(ctx, seed); err != nil {
					log.Warnf("seed=%s re-announce failed: %v", seed, err)
				}
				cancel()
			}
		}
	}()
}

// Stop halts the re-announce loop.
func (c *Client) Stop() {
	select {
	case <-c.stopCh:
		return
	default:
		close(c.stopCh)
	}
	c.wg.Wait()
}
