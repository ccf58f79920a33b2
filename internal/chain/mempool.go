package chain

import "sync"

// Mempool is the ordered, insertion-order-preserving buffer of pending
// transactions. §9.1 flags that the source accepts duplicate transactions
// without guessing at dedup intent; this Mempool preserves that behavior
// deliberately — Add never checks for an existing identical entry.
type Mempool struct {
	mu  sync.Mutex
	txs []Transaction
}

// NewMempool returns an empty Mempool.
func NewMempool() *Mempool {
	return &Mempool{}
}

// Add appends tx to the pool. No validation beyond the caller having
// constructed a well-formed Transaction — balance checking belongs to the
// wallet layer, not the mining path (§4.H).
func (mp *Mempool) Add(tx Transaction) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.txs = append(mp.txs, tx)
}

// Snapshot returns a copy of the pool's current contents in insertion order.
func (mp *Mempool) Snapshot() []Transaction {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([]Transaction, len(mp.txs))
	copy(out, mp.txs)
	return out
}

// Len returns the number of pending transactions.
func (mp *Mempool) Len() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return len(mp.txs)
}

// Clear empties the pool. Called by MineBlock after a successful mine
// (§4.H step 6: "append the block to the chain and clear the mempool").
func (mp *Mempool) Clear() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.txs = nil
}
