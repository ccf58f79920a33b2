package chain

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
)

// Transaction is the unit of value transfer the mempool buffers and a
// block carries. Immutable once created; the mempool deliberately never
// deduplicates (see Mempool.Add), so two structurally identical
// transactions are distinct entries.
type Transaction struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      uint64 `json:"amount"`
	TimestampS  int64  `json:"timestamp_s"`
}

// NewTransaction constructs a Transaction with the given fields.
func NewTransaction(from, to string, amount uint64, timestampS int64) Transaction {
	return Transaction{From: from, To: to, Amount: amount, TimestampS: timestampS}
}

// Bytes returns a deterministic encoding of tx, used both as the Merkle
// leaf input and as the hash-keyed identity the RPC surface
// (get_transaction) scans for.
func (tx Transaction) Bytes() []byte {
	var buf bytes.Buffer
	writeVarString(&buf, tx.From)
	writeVarString(&buf, tx.To)
	var amt [8]byte
	binary.LittleEndian.PutUint64(amt[:], tx.Amount)
	buf.Write(amt[:])
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(tx.TimestampS))
	buf.Write(ts[:])
	return buf.Bytes()
}

func writeVarString(buf *bytes.Buffer, s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

// Hash returns the SHA-256 digest identifying tx, used by the RPC surface's
// get_transaction(hash) lookup.
func (tx Transaction) Hash() [32]byte {
	return sum256(tx.Bytes())
}

// SerializeTransaction JSON-encodes tx for the wire layer's
// TransactionPayload, matching the teacher's Serialize/Deserialize naming.
func SerializeTransaction(tx Transaction) ([]byte, error) {
	return json.Marshal(tx)
}

// DeserializeTransaction decodes bytes produced by SerializeTransaction.
func DeserializeTransaction(data []byte) (Transaction, error) {
	var tx Transaction
	err := json.Unmarshal(data, &tx)
	return tx, err
}

// RewardTransaction builds the synthetic miner-reward transaction appended
// to every mined block (§4.H step 2).
func RewardTransaction(reward uint64, timestampS int64) Transaction {
	return NewTransaction("system", "miner", reward, timestampS)
}
