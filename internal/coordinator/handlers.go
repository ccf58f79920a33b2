package coordinator

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/kjaylee/eastsea-node/internal/bootstrap"
	"github.com/kjaylee/eastsea-node/internal/chain"
	"github.com/kjaylee/eastsea-node/internal/dht"
	"github.com/kjaylee/eastsea-node/internal/p2p"
	"github.com/kjaylee/eastsea-node/internal/wire"
)

// handleBlock ingests a mined block announced by a peer (§4.H's network
// ingest path): decode, then hand straight to Blockchain.IngestBlock,
// which enforces height/prevHash/PoW and rejects divergent blocks (no fork
// handling, per §9.4); a rejected block is logged here and dropped.
func (n *Node) handleBlock(s *p2p.Session, msg wire.Payload) {
	bp := msg.(*wire.BlockPayload)
	block, err := chain.DeserializeBlock(bp.Data)
	if err != nil {
		log.Warnf("peer=%s failed to decode block: %v", s.Addr, err)
		return
	}
	if err := n.Chain.IngestBlock(block); err != nil {
		log.Warnf("peer=%s height=%d block rejected: %v", s.Addr, block.Height, err)
		return
	}
	log.Infof("peer=%s height=%d block ingested", s.Addr, block.Height)
}

// handleTransaction accepts a transaction relayed by a peer into the
// local mempool and mixes its identity into PoH, matching the treatment
// a locally submitted transaction gets.
func (n *Node) handleTransaction(s *p2p.Session, msg wire.Payload) {
	tp := msg.(*wire.TransactionPayload)
	tx, err := chain.DeserializeTransaction(tp.Data)
	if err != nil {
		log.Warnf("peer=%s failed to decode transaction: %v", s.Addr, err)
		return
	}
	n.Chain.Mempool().Add(tx)
	h := tx.Hash()
	n.PoH.MixIn(h[:])
	n.PoH.RecordEntry(1)
}

// handleDhtFindNode answers a FIND_NODE RPC with the K closest contacts
// this node knows to the requested target.
func (n *Node) handleDhtFindNode(s *p2p.Session, msg wire.Payload) {
	req := msg.(*wire.DhtFindNode)
	closest := n.Routing.Closest(req.Target, dht.K)
	reply := &wire.DhtFindNodeReply{RPCID: req.RPCID, Nodes: contactsToNodeInfo(closest)}
	_ = s.Enqueue(reply)
}

// handleDhtFindNodeReply delivers a FIND_NODE reply to whichever pending
// lookup is waiting on its RPCID.
func (n *Node) handleDhtFindNodeReply(s *p2p.Session, msg wire.Payload) {
	reply := msg.(*wire.DhtFindNodeReply)
	n.mu.Lock()
	ch, ok := n.pendingFindNode[reply.RPCID]
	n.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- reply.Nodes:
	default:
	}
}

// handleDhtStore accepts a key/value pair for the local store, kept for the
// configured DHT TTL, per §4.D.
func (n *Node) handleDhtStore(s *p2p.Session, msg wire.Payload) {
	store := msg.(*wire.DhtStore)
	n.Store.PutTTL(dht.ID(store.Key), store.Value, n.cfg.DHTTTL())
}

// handleDhtFindValue answers with the stored value if held locally, else
// falls back to the closest-known-nodes reply so the requester can
// continue its lookup elsewhere.
func (n *Node) handleDhtFindValue(s *p2p.Session, msg wire.Payload) {
	req := msg.(*wire.DhtFindValue)
	if val, ok := n.Store.Get(dht.ID(req.Key)); ok {
		_ = s.Enqueue(&wire.DhtFindValueReply{RPCID: req.RPCID, Found: true, Value: val})
		return
	}
	closest := n.Routing.Closest(dht.ID(req.Key), dht.K)
	_ = s.Enqueue(&wire.DhtFindValueReply{RPCID: req.RPCID, Found: false, Nodes: contactsToNodeInfo(closest)})
}

func (n *Node) handleDhtFindValueReply(s *p2p.Session, msg wire.Payload) {
	reply := msg.(*wire.DhtFindValueReply)
	n.mu.Lock()
	ch, ok := n.pendingFindValue[reply.RPCID]
	n.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- reply:
	default:
	}
}

func (n *Node) handleBootstrapAnnounce(s *p2p.Session, msg wire.Payload) {
	ann := msg.(*wire.BootstrapAnnounce)
	log.Debugf("peer=%s re-announced listen_port=%d", s.Addr, ann.ListenPort)
}

func (n *Node) handleBootstrapPeersReq(s *p2p.Session, msg wire.Payload) {
	req := msg.(*wire.BootstrapPeersReq)
	max := int(req.Max)
	if max == 0 || max > dht.K {
		max = dht.K
	}
	closest := n.Routing.Closest(n.SelfID, max)
	peers := make([]wire.PeerAddr, 0, len(closest))
	for _, c := range closest {
		host, portStr, err := net.SplitHostPort(c.Addr)
		if err != nil {
			continue
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			continue
		}
		var ip [16]byte
		copy(ip[:], net.ParseIP(host).To16())
		peers = append(peers, wire.PeerAddr{IP: ip, Port: uint16(port)})
	}
	_ = s.Enqueue(&wire.BootstrapPeersRep{Peers: peers})
}

func (n *Node) handleBootstrapPeersRep(s *p2p.Session, msg wire.Payload) {
	rep := msg.(*wire.BootstrapPeersRep)
	n.mu.Lock()
	ch, ok := n.pendingPeersReply[s.Addr]
	n.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- rep:
	default:
	}
}

func (n *Node) registerPeersReplyWaiter(addr string, ch chan *wire.BootstrapPeersRep) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pendingPeersReply[addr] = ch
}

func (n *Node) unregisterPeersReplyWaiter(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.pendingPeersReply, addr)
}

func contactsToNodeInfo(contacts []dht.Contact) []wire.NodeInfo {
	out := make([]wire.NodeInfo, 0, len(contacts))
	for _, c := range contacts {
		host, portStr, err := net.SplitHostPort(c.Addr)
		if err != nil {
			continue
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			continue
		}
		var ni wire.NodeInfo
		ni.ID = [dht.IDSize]byte(c.ID)
		copy(ni.IP[:], net.ParseIP(host).To16())
		ni.Port = uint16(port)
		out = append(out, ni)
	}
	return out
}

// pingContact is the dht.Pinger bridge: a contact is alive if we already
// hold a Connected session for it, or if a fresh dial+handshake succeeds
// within ctx.
func (n *Node) pingContact(ctx context.Context, c dht.Contact) bool {
	if s, ok := n.Transport.Session(c.Addr); ok && s.State() == p2p.Connected {
		return true
	}
	s, err := n.Transport.Dial(ctx, c.Addr)
	if err != nil {
		return false
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == p2p.Connected {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// findNode is the dht.Finder bridge used by dht.Lookup.
func (n *Node) findNode(ctx context.Context, peer dht.Contact, target dht.ID) ([]dht.Contact, error) {
	s, ok := n.Transport.Session(peer.Addr)
	if !ok || s.State() != p2p.Connected {
		var err error
		s, err = n.Transport.Dial(ctx, peer.Addr)
		if err != nil {
			return nil, err
		}
	}

	rpcID := n.nextRPCID.Add(1)
	ch := make(chan []wire.NodeInfo, 1)
	n.mu.Lock()
	n.pendingFindNode[rpcID] = ch
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		delete(n.pendingFindNode, rpcID)
		n.mu.Unlock()
	}()

	var tgt [dht.IDSize]byte = target
	if err := s.Enqueue(&wire.DhtFindNode{Target: tgt, RPCID: rpcID}); err != nil {
		return nil, err
	}

	select {
	case nodes := <-ch:
		return nodeInfoToContacts(nodes), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func nodeInfoToContacts(nodes []wire.NodeInfo) []dht.Contact {
	out := make([]dht.Contact, 0, len(nodes))
	for _, ni := range nodes {
		ip := net.IP(ni.IP[:])
		addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(ni.Port)))
		out = append(out, dht.Contact{ID: dht.ID(ni.ID), Addr: addr})
	}
	return out
}

// dialPeer is the bootstrap.Dialer bridge.
func (n *Node) dialPeer(ctx context.Context, p bootstrap.PeerAddr) error {
	_, err := n.Transport.Dial(ctx, p.String())
	return err
}

// requestPeers is the bootstrap.PeersRequester bridge: dial (or reuse)
// the seed's session, send BootstrapPeersReq, and wait for the
// corresponding Rep on the same session.
func (n *Node) requestPeers(ctx context.Context, seed bootstrap.PeerAddr) ([]bootstrap.PeerAddr, error) {
	s, ok := n.Transport.Session(seed.String())
	if !ok {
		var err error
		s, err = n.Transport.Dial(ctx, seed.String())
		if err != nil {
			return nil, err
		}
	}

	replyCh := make(chan *wire.BootstrapPeersRep, 1)
	n.registerPeersReplyWaiter(seed.String(), replyCh)
	defer n.unregisterPeersReplyWaiter(seed.String())

	if err := s.Enqueue(&wire.BootstrapPeersReq{Max: uint16(dht.K)}); err != nil {
		return nil, err
	}

	select {
	case rep := <-replyCh:
		return peerAddrsFromWire(rep.Peers), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func peerAddrsFromWire(peers []wire.PeerAddr) []bootstrap.PeerAddr {
	out := make([]bootstrap.PeerAddr, 0, len(peers))
	for _, p := range peers {
		ip := net.IP(p.IP[:])
		out = append(out, bootstrap.PeerAddr{Host: ip.String(), Port: p.Port})
	}
	return out
}

// announce is the bootstrap.Announcer bridge.
func (n *Node) announce(ctx context.Context, seed bootstrap.PeerAddr) error {
	s, ok := n.Transport.Session(seed.String())
	if !ok {
		var err error
		s, err = n.Transport.Dial(ctx, seed.String())
		if err != nil {
			return err
		}
	}
	_, portStr, _ := net.SplitHostPort(n.SelfAddr)
	port, _ := strconv.ParseUint(portStr, 10, 16)
	var nodeID [wire.NodeIDSize]byte
	copy(nodeID[:], n.SelfID[:])
	return s.Enqueue(&wire.BootstrapAnnounce{NodeID: nodeID, ListenPort: uint16(port)})
}
