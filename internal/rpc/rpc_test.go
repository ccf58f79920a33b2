package rpc

import (
	"testing"

	"github.com/kjaylee/eastsea-node/internal/chain"
	"github.com/kjaylee/eastsea-node/internal/config"
	"github.com/kjaylee/eastsea-node/internal/coordinator"
)

func testNode(t *testing.T, addr string) *coordinator.Node {
	t.Helper()
	cfg := &config.Config{}
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

	n, err := coordinator.New(cfg, addr, []string{"self"}, "self")
	if err != nil {
		t.Fatalf("coordinator.New failed: %v", err)
	}
	return n
}

func TestGetHeightMatchesChain(t *testing.T) {
	n := testNode(t, "127.0.0.1:19920")
	svc := New(n)
	if got, want := svc.GetHeight(), n.Chain.Height(); got != want {
		t.Fatalf("GetHeight() = %d, want %d", got, want)
	}
}

func TestGetBlockReturnsGenesisAtZero(t *testing.T) {
	n := testNode(t, "127.0.0.1:19921")
	svc := New(n)
	b, err := svc.GetBlock(0)
	if err != nil {
		t.Fatalf("GetBlock(0) failed: %v", err)
	}
	if b.Height != 0 {
		t.Fatalf("GetBlock(0).Height = %d, want 0", b.Height)
	}
}

func TestGetBlockNotFound(t *testing.T) {
	n := testNode(t, "127.0.0.1:19922")
	svc := New(n)
	if _, err := svc.GetBlock(999); err != ErrNotFound {
		t.Fatalf("GetBlock(999) err = %v, want ErrNotFound", err)
	}
}

func TestSubmitTransactionThenGetTransaction(t *testing.T) {
	n := testNode(t, "127.0.0.1:19923")
	svc := New(n)

	tx := chain.NewTransaction("alice", "bob", 10, 0)
	handle := svc.SubmitTransaction(tx)
	if handle == "" {
		t.Fatal("SubmitTransaction returned empty handle")
	}

	n.Chain.MineBlock()

	got, err := svc.GetTransaction(tx.Hash())
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if got.From != "alice" || got.To != "bob" || got.Amount != 10 {
		t.Fatalf("GetTransaction returned %+v, want matching alice->bob:10", got)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	n := testNode(t, "127.0.0.1:19924")
	svc := New(n)
	var missing [32]byte
	if _, err := svc.GetTransaction(missing); err != ErrNotFound {
		t.Fatalf("GetTransaction err = %v, want ErrNotFound", err)
	}
}

func TestGetPeersEmptyBeforeAnyConnection(t *testing.T) {
	n := testNode(t, "127.0.0.1:19925")
	svc := New(n)
	if got := svc.GetPeers(); len(got) != 0 {
		t.Fatalf("GetPeers() = %v, want empty", got)
	}
}

func TestGetNodeInfoReflectsIdentity(t *testing.T) {
	n := testNode(t, "127.0.0.1:19926")
	svc := New(n)
	info := svc.GetNodeInfo()
	if info.Addr != "127.0.0.1:19926" {
		t.Fatalf("GetNodeInfo().Addr = %q, want 127.0.0.1:19926", info.Addr)
	}
	if info.NodeID != n.SelfID.String() {
		t.Fatalf("GetNodeInfo().NodeID = %q, want %q", info.NodeID, n.SelfID.String())
	}
	if !info.Running {
		t.Fatal("GetNodeInfo().Running = false, want true")
	}
}

func TestGetPoHStateReflectsSequencer(t *testing.T) {
	n := testNode(t, "127.0.0.1:19927")
	svc := New(n)
	wantHash, wantTicks := n.PoH.Snapshot()
	got := svc.GetPoHState()
	if got.Hash != wantHash || got.TickCount != wantTicks {
		t.Fatalf("GetPoHState() = %+v, want hash=%x ticks=%d", got, wantHash, wantTicks)
	}
}
