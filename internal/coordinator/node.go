// Package coordinator implements the node-level event loop of §4.I: it
// owns the transport, routing table, bootstrap client, PoH sequencer,
// leader schedule, and blockchain, and is the one place their lifecycles
// are wired together. The Start/Stop shape follows the teacher's
// consensus engine (stopChan + WaitGroup around a goroutine); the
// concurrent timer tasks are supervised with golang.org/x/sync/errgroup,
// so an error returned by one task cancels the context the other runs
// under, and Shutdown waits for both.
package coordinator

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kjaylee/eastsea-node/internal/bootstrap"
	"github.com/kjaylee/eastsea-node/internal/chain"
	"github.com/kjaylee/eastsea-node/internal/config"
	"github.com/kjaylee/eastsea-node/internal/dht"
	"github.com/kjaylee/eastsea-node/internal/leader"
	"github.com/kjaylee/eastsea-node/internal/logctx"
	"github.com/kjaylee/eastsea-node/internal/p2p"
	"github.com/kjaylee/eastsea-node/internal/poh"
	"github.com/kjaylee/eastsea-node/internal/wire"
)

var log = logctx.Logger("COOR")

// Node owns every subsystem of a single running instance and the one
// event loop binding them together.
type Node struct {
	cfg *config.Config

	SelfAddr  string
	SelfID    dht.ID
	LeaderID  string

	Transport *p2p.Transport
	Routing   *dht.RoutingTable
	Store     *dht.Store
	Bootstrap *bootstrap.Client
	PoH       *poh.Sequencer
	Leaders   *leader.Schedule
	Chain     *chain.Blockchain

	nextRPCID atomic.Uint64

	mu                sync.Mutex
	pendingFindNode   map[uint64]chan []wire.NodeInfo
	pendingFindValue  map[uint64]chan *wire.DhtFindValueReply
	pendingPeersReply map[string]chan *wire.BootstrapPeersRep

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New constructs a Node bound to cfg. leaders is the static leader
// schedule and selfLeaderID is this node's own entry in it (empty if this
// node never leads).
func New(cfg *config.Config, selfAddr string, leaders []string, selfLeaderID string) (*Node, error) {
	host, portStr, err := net.SplitHostPort(selfAddr)
	if err != nil {
		return nil, fmt.Errorf("coordinator: invalid self address %q: %w", selfAddr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("coordinator: invalid self port in %q: %w", selfAddr, err)
	}

	var salt []byte
	if cfg.DHTSalt != "" {
		salt = []byte(cfg.DHTSalt)
	}
	selfID := dht.NewLocalIDWithSalt(net.ParseIP(host), uint16(port), salt)

	n := &Node{
		cfg:              cfg,
		SelfAddr:         selfAddr,
		SelfID:           selfID,
		LeaderID:         selfLeaderID,
		Transport:        p2p.NewTransport(selfAddr, uint16(port), cfg.SendQueueSize, cfg.PingInterval(), cfg.PongTimeout()),
		Store:            dht.NewStore(),
		Bootstrap:        nil,
		PoH:              poh.New([32]byte{}),
		Leaders:          leader.New(leaders),
		Chain:            chain.New(chain.Config{MiningReward: cfg.MiningReward, Difficulty: cfg.Difficulty}),
		pendingFindNode:   make(map[uint64]chan []wire.NodeInfo),
		pendingFindValue:  make(map[uint64]chan *wire.DhtFindValueReply),
		pendingPeersReply: make(map[string]chan *wire.BootstrapPeersRep),
	}
	n.Routing = dht.NewRoutingTable(selfID, n.pingContact)
	n.Bootstrap = bootstrap.New(nil, n.dialPeer, n.requestPeers, n.announce, cfg.BootstrapReannounceInterval())

	n.registerHandlers()
	return n, nil
}

// SetSeeds installs the bootstrap seed list. Called before Start.
func (n *Node) SetSeeds(seeds []bootstrap.PeerAddr) {
	n.Bootstrap.Seeds = seeds
}

func (n *Node) registerHandlers() {
	n.Transport.HandleFunc(wire.MsgBlock, n.handleBlock)
	n.Transport.HandleFunc(wire.MsgTransaction, n.handleTransaction)
	n.Transport.HandleFunc(wire.MsgDhtFindNode, n.handleDhtFindNode)
	n.Transport.HandleFunc(wire.MsgDhtFindNodeReply, n.handleDhtFindNodeReply)
	n.Transport.HandleFunc(wire.MsgDhtStore, n.handleDhtStore)
	n.Transport.HandleFunc(wire.MsgDhtFindValue, n.handleDhtFindValue)
	n.Transport.HandleFunc(wire.MsgDhtFindValueReply, n.handleDhtFindValueReply)
	n.Transport.HandleFunc(wire.MsgBootstrapAnnounce, n.handleBootstrapAnnounce)
	n.Transport.HandleFunc(wire.MsgBootstrapPeersReq, n.handleBootstrapPeersReq)
	n.Transport.HandleFunc(wire.MsgBootstrapPeersRep, n.handleBootstrapPeersRep)
}

// Start binds the listener and launches every background task: the PoH
// slot loop, the DHT sweep, keepalive, and bootstrap rejoin/re-announce.
func (n *Node) Start(ctx context.Context) error {
	if err := n.Transport.Listen(n.SelfAddr); err != nil {
		return err
	}
	n.Transport.RunKeepalive()

	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	n.group = g

	g.Go(func() error { return n.runSlotLoop(gctx) })
	g.Go(func() error { n.runSweepLoop(gctx); return nil })

	learned := n.Bootstrap.Rejoin(runCtx)
	for _, p := range learned {
		n.Routing.Insert(runCtx, dht.Contact{
			ID:   dht.NewLocalID(net.ParseIP(p.Host), p.Port),
			Addr: p.String(),
		})
	}
	n.Bootstrap.RunReannounce()

	log.Infof("node started self=%s dht_id=%s", n.SelfAddr, n.SelfID)
	return nil
}

// runSlotLoop advances PoH/leader/mining on every slot_duration tick, per
// §4.I's bullet list.
func (n *Node) runSlotLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.SlotDuration())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.advanceSlot()
		}
	}
}

func (n *Node) advanceSlot() {
	for i := uint64(0); i < n.cfg.TicksPerSlot; i++ {
		n.PoH.Tick()
	}
	n.PoH.RecordEntry(n.cfg.TicksPerSlot)
	n.Leaders.AdvanceSlot()

	if n.LeaderID == "" || !n.Leaders.IsSelfLeader(n.LeaderID) {
		return
	}
	if n.Chain.Mempool().Len() == 0 {
		return
	}
	block, err := n.Chain.MineBlock()
	if err != nil {
		log.Warnf("mine_block failed: %v", err)
		return
	}
	data, err := chain.SerializeBlock(block)
	if err != nil {
		log.Warnf("serialize mined block failed: %v", err)
		return
	}
	n.PoH.MixIn(block.Hash[:])
	n.PoH.RecordEntry(1)
	n.Transport.Broadcast(&wire.BlockPayload{Data: data})
	log.Infof("height=%d mined and broadcast block", block.Height)
}

func (n *Node) runSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := n.Store.Sweep(); removed > 0 {
				log.Debugf("dht store sweep purged %d expired entries", removed)
			}
		}
	}
}

// LookupNode runs an iterative FIND_NODE for target, seeded from the
// routing table's own current view, and folds every contact discovered
// along the way back into the routing table.
func (n *Node) LookupNode(ctx context.Context, target dht.ID) []dht.Contact {
	seeds := n.Routing.Closest(target, dht.Alpha)
	found := dht.Lookup(ctx, target, seeds, dht.K, n.findNode)
	for _, c := range found {
		n.Routing.Insert(ctx, c)
	}
	return found
}

// SubmitTransaction adds tx to the mempool, mixes its identity into PoH,
// and returns a correlation handle for the caller to track it by,
// operationalizing §6's submit_transaction with uuid-based echoing.
func (n *Node) SubmitTransaction(tx chain.Transaction) string {
	n.Chain.Mempool().Add(tx)
	h := tx.Hash()
	n.PoH.MixIn(h[:])
	n.PoH.RecordEntry(1)
	handle := uuid.New().String()
	log.Infof("rpc_id=%s submitted transaction from=%s to=%s amount=%d", handle, tx.From, tx.To, tx.Amount)
	return handle
}

// Shutdown stops every background task and gracefully drains the
// transport, per §4.I.
func (n *Node) Shutdown(ctx context.Context) error {
	n.Bootstrap.Stop()
	if n.cancel != nil {
		n.cancel()
	}
	if n.group != nil {
		_ = n.group.Wait()
	}
	return n.Transport.Shutdown(ctx, n.cfg.DrainDeadline())
}
