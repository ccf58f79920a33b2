package coordinator

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/kjaylee/eastsea-node/internal/bootstrap"
	"github.com/kjaylee/eastsea-node/internal/chain"
	"github.com/kjaylee/eastsea-node/internal/config"
)

func testConfig(port uint16) *config.Config {
	cfg := &config.Config{}
	cfg.Port = port
	cfg.SlotDurationMS = 20
	cfg.TicksPerSlot = 2
	cfg.Difficulty = 1
	cfg.MiningReward = 50
	cfg.DHTTTLSeconds = 3600
	cfg.Alpha = 3
	cfg.KBucketSize = 20
	cfg.BootstrapReannounceSeconds = 60
	cfg.MaxStartupOutboundDials = 8
	cfg.LookupTimeoutMS = 200
	cfg.SweepIntervalMS = 50
	cfg.SendQueueSize = 64
	cfg.DrainDeadlineMS = 200
	cfg.PingIntervalMS = 1000
	cfg.PongTimeoutMS = 2000
	return cfg
}

func mustNewNode(t *testing.T, addr string, leaders []string, selfLeaderID string) *Node {
	t.Helper()
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("invalid addr %q: %v", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		t.Fatalf("invalid port in %q: %v", addr, err)
	}
	n, err := New(testConfig(uint16(port)), addr, leaders, selfLeaderID)
	if err != nil {
		t.Fatalf("New(%s) failed: %v", addr, err)
	}
	return n
}

func TestSubmitTransactionAddsToMempoolAndMixesPoH(t *testing.T) {
	n := mustNewNode(t, "127.0.0.1:19901", nil, "")

	_, beforeTicks := n.PoH.Snapshot()
	handle := n.SubmitTransaction(chain.NewTransaction("alice", "bob", 10, 0))
	if handle == "" {
		t.Fatal("SubmitTransaction returned empty correlation handle")
	}
	if got := n.Chain.Mempool().Len(); got != 1 {
		t.Fatalf("mempool len = %d, want 1", got)
	}
	_, afterTicks := n.PoH.Snapshot()
	if afterTicks <= beforeTicks {
		t.Fatalf("PoH tick_count did not advance: before=%d after=%d", beforeTicks, afterTicks)
	}
}

func TestAdvanceSlotMinesWhenLeaderAndMempoolNonEmpty(t *testing.T) {
	n := mustNewNode(t, "127.0.0.1:19902", []string{"self"}, "self")
	n.SubmitTransaction(chain.NewTransaction("alice", "bob", 10, 0))

	startHeight := n.Chain.Height()
	n.advanceSlot()
	if got := n.Chain.Height(); got != startHeight+1 {
		t.Fatalf("height after advanceSlot = %d, want %d", got, startHeight+1)
	}
	if got := n.Chain.Mempool().Len(); got != 0 {
		t.Fatalf("mempool len after mining = %d, want 0", got)
	}
}

func TestAdvanceSlotSkipsMiningWhenMempoolEmpty(t *testing.T) {
	n := mustNewNode(t, "127.0.0.1:19903", []string{"self"}, "self")

	startHeight := n.Chain.Height()
	n.advanceSlot()
	if got := n.Chain.Height(); got != startHeight {
		t.Fatalf("height after advanceSlot with empty mempool = %d, want unchanged %d", got, startHeight)
	}
}

func TestAdvanceSlotSkipsMiningWhenNotLeader(t *testing.T) {
	n := mustNewNode(t, "127.0.0.1:19904", []string{"someone-else"}, "self")
	n.SubmitTransaction(chain.NewTransaction("alice", "bob", 10, 0))

	startHeight := n.Chain.Height()
	n.advanceSlot()
	if got := n.Chain.Height(); got != startHeight {
		t.Fatalf("height after advanceSlot as non-leader = %d, want unchanged %d", got, startHeight)
	}
}

func TestLookupNodeWithNoPeersReturnsEmpty(t *testing.T) {
	n := mustNewNode(t, "127.0.0.1:19905", nil, "")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	target := n.SelfID
	target[0] ^= 0xff
	got := n.LookupNode(ctx, target)
	if len(got) != 0 {
		t.Fatalf("LookupNode with empty routing table returned %d contacts, want 0", len(got))
	}
}

func TestStartIslandModeThenShutdown(t *testing.T) {
	n := mustNewNode(t, "127.0.0.1:19906", nil, "")

	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestTwoNodesBootstrapAndPropagateBlock(t *testing.T) {
	a := mustNewNode(t, "127.0.0.1:19907", []string{"self"}, "self")
	b := mustNewNode(t, "127.0.0.1:19908", []string{"self"}, "")
	b.SetSeeds([]bootstrap.PeerAddr{{Host: "127.0.0.1", Port: 19907}})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("a.Start failed: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("b.Start failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
		_ = b.Shutdown(ctx)
	}()

	a.SubmitTransaction(chain.NewTransaction("alice", "bob", 5, 0))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if b.Chain.Height() > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("node b never observed a mined block, height=%d", b.Chain.Height())
}
