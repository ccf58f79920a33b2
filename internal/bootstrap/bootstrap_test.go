package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRejoinIslandModeWithNoSeeds(t *testing.T) {
	c := New(nil, nil, nil, nil, 0)
	got := c.Rejoin(context.Background())
	if got != nil {
		t.Fatalf("Rejoin with no seeds returned %v, want nil", got)
	}
}

func TestRejoinDialsReturnedPeersUpToCap(t *testing.T) {
	seed := PeerAddr{Host: "127.0.0.1", Port: 9000}
	var dialed []string

	dial := func(ctx context.Context, p PeerAddr) error {
		dialed = append(dialed, p.String())
		return nil
	}
	requestPeers := func(ctx context.Context, s PeerAddr) ([]PeerAddr, error) {
		peers := make([]PeerAddr, 0, 12)
		for i := 0; i < 12; i++ {
			peers = append(peers, PeerAddr{Host: "127.0.0.1", Port: uint16(9100 + i)})
		}
		return peers, nil
	}
	announce := func(ctx context.Context, s PeerAddr) error { return nil }

	c := New([]PeerAddr{seed}, dial, requestPeers, announce, time.Minute)
	learned := c.Rejoin(context.Background())

	if len(learned) != 12 {
		t.Fatalf("learned %d peers, want 12", len(learned))
	}
	if len(dialed) > MaxStartupOutboundDials {
		t.Fatalf("dialed %d peers, want at most %d", len(dialed), MaxStartupOutboundDials)
	}
}

func TestRejoinSkipsUnreachableSeed(t *testing.T) {
	seed := PeerAddr{Host: "127.0.0.1", Port: 9000}
	dial := func(ctx context.Context, p PeerAddr) error { return errors.New("refused") }
	requestPeers := func(ctx context.Context, s PeerAddr) ([]PeerAddr, error) {
		t.Fatal("RequestPeers should not be called for an unreachable seed")
		return nil, nil
	}
	announce := func(ctx context.Context, s PeerAddr) error { return nil }

	c := New([]PeerAddr{seed}, dial, requestPeers, announce, time.Minute)
	learned := c.Rejoin(context.Background())
	if learned != nil {
		t.Fatalf("learned %v, want nil after every seed dial failed", learned)
	}
}

func TestRunReannounceInvokesAnnouncer(t *testing.T) {
	seed := PeerAddr{Host: "127.0.0.1", Port: 9000}
	calls := make(chan struct{}, 4)
	announce := func(ctx context.Context, s PeerAddr) error {
		calls <- struct{}{}
		return nil
	}
	c := New([]PeerAddr{seed}, nil, nil, announce, 10*time.Millisecond)
	c.RunReannounce()
	defer c.Stop()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("Announce was never called")
	}
}
