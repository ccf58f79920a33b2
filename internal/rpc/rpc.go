// Package rpc implements the external interface contract of §6 as a
// concrete Go type bound directly to a running *coordinator.Node: no
// JSON-RPC framing (that server is named out of scope), only the seven
// operations an external collaborator would call. Mirrors the teacher's
// habit of exposing a thin typed wrapper around the engine it fronts
// rather than inventing a separate interface abstraction nothing else
// implements.
package rpc

import (
	"errors"

	"github.com/kjaylee/eastsea-node/internal/chain"
	"github.com/kjaylee/eastsea-node/internal/coordinator"
	"github.com/kjaylee/eastsea-node/internal/logctx"
)

var log = logctx.Logger("RPC")

// ErrNotFound is returned by get_block and get_transaction when the
// requested item does not exist.
var ErrNotFound = errors.New("rpc: not found")

// PeerInfo answers get_peers: one row per session the node currently
// tracks, connected or not.
type PeerInfo struct {
	Addr      string
	NodeID    string
	Connected bool
}

// NodeInfo answers get_node_info.
type NodeInfo struct {
	Addr      string
	Port      uint16
	PeerCount int
	Running   bool
	Height    uint64
	NodeID    string
}

// PoHState answers get_poh_state.
type PoHState struct {
	Hash      [32]byte
	TickCount uint64
}

// Service binds the §6 contract to one running node.
type Service struct {
	node *coordinator.Node
}

// New binds a Service to node.
func New(node *coordinator.Node) *Service {
	return &Service{node: node}
}

// GetHeight returns the current chain tip height.
func (s *Service) GetHeight() uint64 {
	return s.node.Chain.Height()
}

// GetBlock returns the block at height, or ErrNotFound.
func (s *Service) GetBlock(height uint64) (*chain.Block, error) {
	b, err := s.node.Chain.BlockAt(height)
	if err != nil {
		return nil, ErrNotFound
	}
	return b, nil
}

// GetTransaction scans the chain for a transaction matching hash
// (§6 permits the O(N) scan explicitly).
func (s *Service) GetTransaction(hash [32]byte) (chain.Transaction, error) {
	tx, ok := s.node.Chain.TransactionByHash(hash)
	if !ok {
		return chain.Transaction{}, ErrNotFound
	}
	return tx, nil
}

// GetPeers lists every session the node's transport currently tracks.
func (s *Service) GetPeers() []PeerInfo {
	sessions := s.node.Transport.Sessions()
	out := make([]PeerInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, PeerInfo{
			Addr:      sess.Addr,
			NodeID:    sess.RemoteNodeID(),
			Connected: sess.State().String() == "Connected",
		})
	}
	return out
}

// GetNodeInfo summarizes this node's identity and status.
func (s *Service) GetNodeInfo() NodeInfo {
	return NodeInfo{
		Addr:      s.node.SelfAddr,
		Port:      s.node.Transport.SelfPort,
		PeerCount: s.node.Transport.PeerCount(),
		Running:   true,
		Height:    s.node.Chain.Height(),
		NodeID:    s.node.SelfID.String(),
	}
}

// SubmitTransaction appends tx to the mempool (no signature check in
// core, per §6) and returns a correlation handle, not tx.Hash() itself —
// the handle is for tracking this particular submit_transaction call,
// distinct from the transaction's content hash that GetTransaction scans
// for.
func (s *Service) SubmitTransaction(tx chain.Transaction) string {
	handle := s.node.SubmitTransaction(tx)
	log.Debugf("rpc_id=%s submit_transaction accepted", handle)
	return handle
}

// GetPoHState reports the sequencer's current hash and tick count.
func (s *Service) GetPoHState() PoHState {
	hash, ticks := s.node.PoH.Snapshot()
	return PoHState{Hash: hash, TickCount: ticks}
}

