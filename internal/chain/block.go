package chain

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strings"

	"github.com/kjaylee/eastsea-node/internal/hashutil"
)

// ZeroHash is the genesis block's previous_hash (§3: "32 zero bytes").
var ZeroHash [32]byte

// Block is the unit appended to the chain. Immutable once mined/appended;
// Hash and MerkleRoot are derived fields recomputed by ComputeHash and
// ComputeMerkleRoot respectively, never mutated directly by callers other
// than the mining loop and genesis construction.
type Block struct {
	Height       uint64        `json:"height"`
	TimestampS   int64         `json:"timestamp_s"`
	PreviousHash [32]byte      `json:"previous_hash"`
	MerkleRoot   [32]byte      `json:"merkle_root"`
	Transactions []Transaction `json:"transactions"`
	Nonce        uint64        `json:"nonce"`
	Hash         [32]byte      `json:"hash"`
}

// ComputeMerkleRoot derives the Merkle root over b.Transactions (§4.A) and
// stores it on the block.
func (b *Block) ComputeMerkleRoot() {
	leaves := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		leaves[i] = tx.Bytes()
	}
	b.MerkleRoot = hashutil.MerkleRoot(leaves)
}

// headerBytes returns the deterministic encoding of the fields the block
// hash formula covers: height, timestamp, merkle_root, previous_hash,
// nonce (§3's Block invariant).
func (b *Block) headerBytes() []byte {
	var buf bytes.Buffer
	var h [8]byte
	binary.LittleEndian.PutUint64(h[:], b.Height)
	buf.Write(h[:])
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(b.TimestampS))
	buf.Write(ts[:])
	buf.Write(b.MerkleRoot[:])
	buf.Write(b.PreviousHash[:])
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], b.Nonce)
	buf.Write(n[:])
	return buf.Bytes()
}

// ComputeHash applies the standard hash formula
// hash = SHA256(encode(height, timestamp, merkle_root, previous_hash, nonce))
// and stores it on the block.
func (b *Block) ComputeHash() {
	b.Hash = hashutil.Sum256(b.headerBytes())
}

// MeetsDifficulty reports whether b.Hash's lowercase-hex representation has
// at least `difficulty` leading '0' characters.
func (b *Block) MeetsDifficulty(difficulty uint32) bool {
	hexHash := hexLower(b.Hash[:])
	if uint32(len(hexHash)) < difficulty {
		return false
	}
	return strings.Trim(hexHash[:difficulty], "0") == ""
}

func hexLower(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = digits[v>>4]
		out[i*2+1] = digits[v&0x0f]
	}
	return string(out)
}

// SerializeBlock JSON-encodes b for the wire layer's BlockPayload.
func SerializeBlock(b *Block) ([]byte, error) {
	return json.Marshal(b)
}

// DeserializeBlock decodes bytes produced by SerializeBlock.
func DeserializeBlock(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
