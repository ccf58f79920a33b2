// Package chain implements the blockchain state machine: block and
// transaction records, the mempool, proof-of-work mining, and chain
// validation (§4.H). It is grounded on the teacher's
// internal/blockchain/blockchain.go ownership model (one RWMutex-guarded
// in-memory slice plus a hash index) generalized from the teacher's
// account-ledger semantics to this spec's PoW/PoH-linked semantics.
package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kjaylee/eastsea-node/internal/logctx"
)

var log = logctx.Logger("CHAN")

// Errors returned by the blockchain engine (§7).
var (
	ErrInvalidPreviousHash = errors.New("chain: invalid previous hash")
	ErrPowNotMet           = errors.New("chain: proof of work not met")
	ErrHeightRegression    = errors.New("chain: height regression")
	ErrBlockNotFound       = errors.New("chain: block not found")
)

// NowFunc returns the current Unix time in seconds. Tests override it for
// determinism; production code leaves it at the default.
var NowFunc = func() int64 { return time.Now().Unix() }

// Blockchain owns the chain slice, the hash index, and the mempool. All
// mutations go through one logical critical section (mu), matching the
// "single logical owner" rule §5 places on shared resources.
type Blockchain struct {
	mu            sync.RWMutex
	blocks        []*Block
	byHash        map[[32]byte]*Block
	mempool       *Mempool
	MiningReward  uint64
	Difficulty    uint32
}

// Config configures a freshly constructed Blockchain.
type Config struct {
	MiningReward uint64
	Difficulty   uint32
}

// DefaultConfig mirrors the defaults spec.md implies: a small reward and a
// difficulty low enough that tests mine in milliseconds.
func DefaultConfig() Config {
	return Config{MiningReward: 50, Difficulty: 4}
}

// New creates a Blockchain seeded with the genesis block (§4.H: "created
// once at blockchain initialization").
func New(cfg Config) *Blockchain {
	bc := &Blockchain{
		blocks:       make([]*Block, 0, 1),
		byHash:       make(map[[32]byte]*Block),
		mempool:      NewMempool(),
		MiningReward: cfg.MiningReward,
		Difficulty:   cfg.Difficulty,
	}
	genesis := genesisBlock()
	bc.blocks = append(bc.blocks, genesis)
	bc.byHash[genesis.Hash] = genesis
	return bc
}

func genesisBlock() *Block {
	b := &Block{
		Height:       0,
		TimestampS:   0,
		PreviousHash: ZeroHash,
		Transactions: nil,
	}
	b.ComputeMerkleRoot()
	b.ComputeHash()
	return b
}

// Mempool returns the chain's mempool for submission/inspection.
func (bc *Blockchain) Mempool() *Mempool { return bc.mempool }

// Height returns the current chain tip height.
func (bc *Blockchain) Height() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tipLocked().Height
}

func (bc *Blockchain) tipLocked() *Block {
	return bc.blocks[len(bc.blocks)-1]
}

// Tip returns the current chain tip.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tipLocked()
}

// BlockAt returns the block at the given height.
func (bc *Blockchain) BlockAt(height uint64) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if height >= uint64(len(bc.blocks)) {
		return nil, ErrBlockNotFound
	}
	return bc.blocks[height], nil
}

// BlockByHash returns the block with the given hash.
func (bc *Blockchain) BlockByHash(hash [32]byte) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	b, ok := bc.byHash[hash]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return b, nil
}

// TransactionByHash performs the O(N) scan across every block's
// transaction list that §6's get_transaction contract explicitly allows.
func (bc *Blockchain) TransactionByHash(hash [32]byte) (Transaction, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	for _, b := range bc.blocks {
		for _, tx := range b.Transactions {
			if tx.Hash() == hash {
				return tx, true
			}
		}
	}
	return Transaction{}, false
}

// MineBlock executes §4.H's six-step mining procedure: snapshot the
// mempool, append the synthetic reward transaction, compute the Merkle
// root, link to the tip, search nonce space for proof of work, then append
// and clear the mempool.
func (bc *Blockchain) MineBlock() (*Block, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	txs := bc.mempool.Snapshot()
	reward := RewardTransaction(bc.MiningReward, NowFunc())
	txs = append(txs, reward)

	tip := bc.tipLocked()
	b := &Block{
		Height:       tip.Height + 1,
		TimestampS:   NowFunc(),
		PreviousHash: tip.Hash,
		Transactions: txs,
		Nonce:        0,
	}
	b.ComputeMerkleRoot()

	for {
		b.ComputeHash()
		if b.MeetsDifficulty(bc.Difficulty) {
			break
		}
		if b.Nonce == ^uint64(0) {
			return nil, fmt.Errorf("chain: mining gave up at height %d: nonce space exhausted", b.Height)
		}
		b.Nonce++
	}

	bc.blocks = append(bc.blocks, b)
	bc.byHash[b.Hash] = b
	bc.mempool.Clear()

	log.Infof("mined block height=%d hash=%s nonce=%d txs=%d", b.Height, hex.EncodeToString(b.Hash[:8]), b.Nonce, len(b.Transactions))
	return b, nil
}

// Validate walks heights 1..N-1 verifying linkage and the hash formula.
// §9.2 preserves a deliberate gap from the source: difficulty is NOT
// re-checked here, only during mining and during IngestBlock. A chain that
// once accepted a sub-difficulty block (e.g. via a buggy ingest path)
// would validate forever; this is documented, not fixed.
func (bc *Blockchain) Validate() bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	for i := 1; i < len(bc.blocks); i++ {
		cur, prev := bc.blocks[i], bc.blocks[i-1]
		if cur.PreviousHash != prev.Hash {
			return false
		}
		check := *cur
		check.ComputeMerkleRoot()
		check.ComputeHash()
		if check.Hash != cur.Hash {
			return false
		}
	}
	return true
}

// IngestBlock handles a Block message arriving from the network (§4.H):
// reject on height regression or a previous_hash that doesn't match the
// current tail, else verify the declared hash and proof of work and
// append. No rollback, no reorg (§9.4) — a divergent block is dropped and
// logged, never fatal to the node.
func (bc *Blockchain) IngestBlock(b *Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	tip := bc.tipLocked()
	if b.Height <= tip.Height {
		return fmt.Errorf("%w: height %d <= tip %d", ErrHeightRegression, b.Height, tip.Height)
	}
	if b.PreviousHash != tip.Hash {
		return fmt.Errorf("%w: block %d previous_hash does not match tip", ErrInvalidPreviousHash, b.Height)
	}

	check := *b
	check.ComputeMerkleRoot()
	check.ComputeHash()
	if check.Hash != b.Hash {
		return fmt.Errorf("chain: declared hash does not match recomputed hash for block %d", b.Height)
	}
	if !b.MeetsDifficulty(bc.Difficulty) {
		return fmt.Errorf("%w: block %d", ErrPowNotMet, b.Height)
	}

	bc.blocks = append(bc.blocks, b)
	bc.byHash[b.Hash] = b
	return nil
}
