package wire

import "io"

// ProtocolVersion is this node's handshake protocol version. A peer whose
// Handshake carries a different value is rejected with VersionMismatch.
const ProtocolVersion uint32 = 1

// NodeIDSize is the width of the 256-bit NodeId carried in a Handshake.
const NodeIDSize = 32

// DhtIDSize is the width of the 160-bit Kademlia id.
const DhtIDSize = 20

// MaxDhtValueSize caps a DhtStore value at 4 KiB (§4.B).
const MaxDhtValueSize = 4 * 1024

// --- 0x01 / 0x02 Handshake / HandshakeAck ---

// Handshake is the payload shared by Handshake and HandshakeAck (§4.B).
type Handshake struct {
	ProtocolVersion uint32
	NodeID          [NodeIDSize]byte
	ListenPort      uint16
	Timestamp       int64
}

func (h *Handshake) Type() MessageType { return MsgHandshake }

func (h *Handshake) Encode(w io.Writer) error {
	if err := writeUint32(w, h.ProtocolVersion); err != nil {
		return err
	}
	if err := writeFixed(w, h.NodeID[:]); err != nil {
		return err
	}
	if err := writeUint16(w, h.ListenPort); err != nil {
		return err
	}
	return writeInt64(w, h.Timestamp)
}

func (h *Handshake) Decode(r io.Reader) error {
	var err error
	if h.ProtocolVersion, err = readUint32(r); err != nil {
		return err
	}
	id, err := readFixed(r, NodeIDSize)
	if err != nil {
		return err
	}
	copy(h.NodeID[:], id)
	if h.ListenPort, err = readUint16(r); err != nil {
		return err
	}
	h.Timestamp, err = readInt64(r)
	return err
}

// HandshakeAck carries the identical field set as Handshake.
type HandshakeAck struct {
	Handshake
}

func (h *HandshakeAck) Type() MessageType { return MsgHandshakeAck }

// --- 0x03 / 0x04 Ping / Pong ---

type Ping struct {
	Timestamp uint64
	Nonce     uint64
}

func (p *Ping) Type() MessageType { return MsgPing }

func (p *Ping) Encode(w io.Writer) error {
	if err := writeUint64(w, p.Timestamp); err != nil {
		return err
	}
	return writeUint64(w, p.Nonce)
}

func (p *Ping) Decode(r io.Reader) error {
	var err error
	if p.Timestamp, err = readUint64(r); err != nil {
		return err
	}
	p.Nonce, err = readUint64(r)
	return err
}

// Pong echoes the Ping.Nonce it answers.
type Pong struct {
	Timestamp uint64
	Nonce     uint64
}

func (p *Pong) Type() MessageType { return MsgPong }

func (p *Pong) Encode(w io.Writer) error {
	if err := writeUint64(w, p.Timestamp); err != nil {
		return err
	}
	return writeUint64(w, p.Nonce)
}

func (p *Pong) Decode(r io.Reader) error {
	var err error
	if p.Timestamp, err = readUint64(r); err != nil {
		return err
	}
	p.Nonce, err = readUint64(r)
	return err
}

// --- 0x10 Block / 0x11 Transaction ---

// BlockPayload carries an opaque, already-serialized chain.Block. Keeping
// the wire layer ignorant of chain.Block's concrete encoding (it just
// frames a byte blob) avoids an import cycle between wire and chain; chain
// owns (De)SerializeBlock.
type BlockPayload struct {
	Data []byte
}

func (b *BlockPayload) Type() MessageType { return MsgBlock }

func (b *BlockPayload) Encode(w io.Writer) error {
	return writeVarBytes(w, b.Data)
}

func (b *BlockPayload) Decode(r io.Reader) error {
	data, err := readVarBytes(r, MaxPayloadSize)
	if err != nil {
		return err
	}
	b.Data = data
	return nil
}

// TransactionPayload carries an opaque, already-serialized chain.Transaction.
type TransactionPayload struct {
	Data []byte
}

func (t *TransactionPayload) Type() MessageType { return MsgTransaction }

func (t *TransactionPayload) Encode(w io.Writer) error {
	return writeVarBytes(w, t.Data)
}

func (t *TransactionPayload) Decode(r io.Reader) error {
	data, err := readVarBytes(r, MaxPayloadSize)
	if err != nil {
		return err
	}
	t.Data = data
	return nil
}

// --- 0x20..0x24 DHT ---

type DhtFindNode struct {
	Target [DhtIDSize]byte
	RPCID  uint64
}

func (m *DhtFindNode) Type() MessageType { return MsgDhtFindNode }

func (m *DhtFindNode) Encode(w io.Writer) error {
	if err := writeFixed(w, m.Target[:]); err != nil {
		return err
	}
	return writeUint64(w, m.RPCID)
}

func (m *DhtFindNode) Decode(r io.Reader) error {
	t, err := readFixed(r, DhtIDSize)
	if err != nil {
		return err
	}
	copy(m.Target[:], t)
	m.RPCID, err = readUint64(r)
	return err
}

// NodeInfo is one entry of a FIND_NODE reply's node list.
type NodeInfo struct {
	ID   [DhtIDSize]byte
	IP   [16]byte // IPv4-mapped or IPv6, net.IP.To16() form
	Port uint16
}

func writeNodeInfo(w io.Writer, n NodeInfo) error {
	if err := writeFixed(w, n.ID[:]); err != nil {
		return err
	}
	if err := writeFixed(w, n.IP[:]); err != nil {
		return err
	}
	return writeUint16(w, n.Port)
}

func readNodeInfo(r io.Reader) (NodeInfo, error) {
	var n NodeInfo
	id, err := readFixed(r, DhtIDSize)
	if err != nil {
		return n, err
	}
	copy(n.ID[:], id)
	ip, err := readFixed(r, 16)
	if err != nil {
		return n, err
	}
	copy(n.IP[:], ip)
	n.Port, err = readUint16(r)
	return n, err
}

type DhtFindNodeReply struct {
	RPCID uint64
	Nodes []NodeInfo
}

func (m *DhtFindNodeReply) Type() MessageType { return MsgDhtFindNodeReply }

func (m *DhtFindNodeReply) Encode(w io.Writer) error {
	if err := writeUint64(w, m.RPCID); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(m.Nodes))); err != nil {
		return err
	}
	for _, n := range m.Nodes {
		if err := writeNodeInfo(w, n); err != nil {
			return err
		}
	}
	return nil
}

func (m *DhtFindNodeReply) Decode(r io.Reader) error {
	var err error
	if m.RPCID, err = readUint64(r); err != nil {
		return err
	}
	count, err := readUint32(r)
	if err != nil {
		return err
	}
	m.Nodes = make([]NodeInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		n, err := readNodeInfo(r)
		if err != nil {
			return err
		}
		m.Nodes = append(m.Nodes, n)
	}
	return nil
}

type DhtStore struct {
	Key   [DhtIDSize]byte
	Value []byte
}

func (m *DhtStore) Type() MessageType { return MsgDhtStore }

func (m *DhtStore) Encode(w io.Writer) error {
	if err := writeFixed(w, m.Key[:]); err != nil {
		return err
	}
	return writeVarBytes(w, m.Value)
}

func (m *DhtStore) Decode(r io.Reader) error {
	k, err := readFixed(r, DhtIDSize)
	if err != nil {
		return err
	}
	copy(m.Key[:], k)
	m.Value, err = readVarBytes(r, MaxDhtValueSize)
	return err
}

type DhtFindValue struct {
	Key   [DhtIDSize]byte
	RPCID uint64
}

func (m *DhtFindValue) Type() MessageType { return MsgDhtFindValue }

func (m *DhtFindValue) Encode(w io.Writer) error {
	if err := writeFixed(w, m.Key[:]); err != nil {
		return err
	}
	return writeUint64(w, m.RPCID)
}

func (m *DhtFindValue) Decode(r io.Reader) error {
	k, err := readFixed(r, DhtIDSize)
	if err != nil {
		return err
	}
	copy(m.Key[:], k)
	m.RPCID, err = readUint64(r)
	return err
}

// DhtFindValueReply carries either the stored Value (Found=true) or a
// fallback node list to continue the lookup elsewhere.
type DhtFindValueReply struct {
	RPCID uint64
	Found bool
	Value []byte
	Nodes []NodeInfo
}

func (m *DhtFindValueReply) Type() MessageType { return MsgDhtFindValueReply }

func (m *DhtFindValueReply) Encode(w io.Writer) error {
	if err := writeUint64(w, m.RPCID); err != nil {
		return err
	}
	found := byte(0)
	if m.Found {
		found = 1
	}
	if err := writeFixed(w, []byte{found}); err != nil {
		return err
	}
	if m.Found {
		return writeVarBytes(w, m.Value)
	}
	if err := writeUint32(w, uint32(len(m.Nodes))); err != nil {
		return err
	}
	for _, n := range m.Nodes {
		if err := writeNodeInfo(w, n); err != nil {
			return err
		}
	}
	return nil
}

func (m *DhtFindValueReply) Decode(r io.Reader) error {
	var err error
	if m.RPCID, err = readUint64(r); err != nil {
		return err
	}
	found, err := readFixed(r, 1)
	if err != nil {
		return err
	}
	m.Found = found[0] != 0
	if m.Found {
		m.Value, err = readVarBytes(r, MaxDhtValueSize)
		return err
	}
	count, err := readUint32(r)
	if err != nil {
		return err
	}
	m.Nodes = make([]NodeInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		n, err := readNodeInfo(r)
		if err != nil {
			return err
		}
		m.Nodes = append(m.Nodes, n)
	}
	return nil
}

// --- 0x30..0x32 Bootstrap ---

type BootstrapAnnounce struct {
	NodeID     [NodeIDSize]byte
	ListenPort uint16
}

func (m *BootstrapAnnounce) Type() MessageType { return MsgBootstrapAnnounce }

func (m *BootstrapAnnounce) Encode(w io.Writer) error {
	if err := writeFixed(w, m.NodeID[:]); err != nil {
		return err
	}
	return writeUint16(w, m.ListenPort)
}

func (m *BootstrapAnnounce) Decode(r io.Reader) error {
	id, err := readFixed(r, NodeIDSize)
	if err != nil {
		return err
	}
	copy(m.NodeID[:], id)
	m.ListenPort, err = readUint16(r)
	return err
}

type BootstrapPeersReq struct {
	Max uint16
}

func (m *BootstrapPeersReq) Type() MessageType { return MsgBootstrapPeersReq }

func (m *BootstrapPeersReq) Encode(w io.Writer) error {
	return writeUint16(w, m.Max)
}

func (m *BootstrapPeersReq) Decode(r io.Reader) error {
	var err error
	m.Max, err = readUint16(r)
	return err
}

// PeerAddr is one (ip, port) entry of a BootstrapPeersRep.
type PeerAddr struct {
	IP   [16]byte
	Port uint16
}

type BootstrapPeersRep struct {
	Peers []PeerAddr
}

func (m *BootstrapPeersRep) Type() MessageType { return MsgBootstrapPeersRep }

func (m *BootstrapPeersRep) Encode(w io.Writer) error {
	if err := writeUint32(w, uint32(len(m.Peers))); err != nil {
		return err
	}
	for _, p := range m.Peers {
		if err := writeFixed(w, p.IP[:]); err != nil {
			return err
		}
		if err := writeUint16(w, p.Port); err != nil {
			return err
		}
	}
	return nil
}

func (m *BootstrapPeersRep) Decode(r io.Reader) error {
	count, err := readUint32(r)
	if err != nil {
		return err
	}
	m.Peers = make([]PeerAddr, 0, count)
	for i := uint32(0); i < count; i++ {
		ip, err := readFixed(r, 16)
		if err != nil {
			return err
		}
		port, err := readUint16(r)
		if err != nil {
			return err
		}
		var addr PeerAddr
		copy(addr.IP[:], ip)
		addr.Port = port
		m.Peers = append(m.Peers, addr)
	}
	return nil
}
