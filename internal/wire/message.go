// Package wire implements the binary-framed message codec shared by every
// P2P session: a fixed header (magic, type, length, checksum) followed by
// a typed payload. The framing and the Encode/Decode split mirrors the
// BtcEncode/BtcDecode convention EXCCoin-exccd's wire package uses for its
// own messages, adapted to this node's own message set (§4.B).
package wire

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic identifies a well-formed frame of this protocol.
const Magic uint32 = 0xEA575EA0

// MaxPayloadSize caps a single frame's payload at 16 MiB.
const MaxPayloadSize = 16 * 1024 * 1024

// HeaderSize is the byte length of the fixed frame header.
const HeaderSize = 4 + 1 + 4 + 4

// MessageType enumerates the wire protocol's stable message identifiers.
type MessageType uint8

const (
	MsgHandshake    MessageType = 0x01
	MsgHandshakeAck MessageType = 0x02
	MsgPing         MessageType = 0x03
	MsgPong         MessageType = 0x04

	MsgBlock       MessageType = 0x10
	MsgTransaction MessageType = 0x11

	MsgDhtFindNode       MessageType = 0x20
	MsgDhtFindNodeReply  MessageType = 0x21
	MsgDhtStore          MessageType = 0x22
	MsgDhtFindValue      MessageType = 0x23
	MsgDhtFindValueReply MessageType = 0x24

	MsgBootstrapAnnounce MessageType = 0x30
	MsgBootstrapPeersReq MessageType = 0x31
	MsgBootstrapPeersRep MessageType = 0x32
)

func (t MessageType) String() string {
	switch t {
	case MsgHandshake:
		return "Handshake"
	case MsgHandshakeAck:
		return "HandshakeAck"
	case MsgPing:
		return "Ping"
	case MsgPong:
		return "Pong"
	case MsgBlock:
		return "Block"
	case MsgTransaction:
		return "Transaction"
	case MsgDhtFindNode:
		return "DhtFindNode"
	case MsgDhtFindNodeReply:
		return "DhtFindNodeReply"
	case MsgDhtStore:
		return "DhtStore"
	case MsgDhtFindValue:
		return "DhtFindValue"
	case MsgDhtFindValueReply:
		return "DhtFindValueReply"
	case MsgBootstrapAnnounce:
		return "BootstrapAnnounce"
	case MsgBootstrapPeersReq:
		return "BootstrapPeersReq"
	case MsgBootstrapPeersRep:
		return "BootstrapPeersRep"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

// Errors returned by Decode/Encode. Codec errors are confined to the
// offending frame (§7). After ErrUnknownMessageType the frame has been
// fully consumed and the stream stays aligned, so the p2p session logs it
// and keeps reading; every other decode error closes the session.
var (
	ErrInvalidMagic       = errors.New("wire: invalid magic")
	ErrPayloadTooLarge     = errors.New("wire: payload exceeds maximum size")
	ErrChecksumMismatch    = errors.New("wire: checksum mismatch")
	ErrTruncatedFrame      = errors.New("wire: truncated frame")
	ErrUnknownMessageType  = errors.New("wire: unknown message type")
)

// Payload is implemented by every typed message body.
type Payload interface {
	Type() MessageType
	Encode(w io.Writer) error
	Decode(r io.Reader) error
}

// Header is the fixed-size frame prefix preceding every payload.
type Header struct {
	Magic      uint32
	Type       MessageType
	PayloadLen uint32
	Checksum   uint32
}

func checksumOf(payload []byte) uint32 {
	sum := sha256.Sum256(payload)
	return binary.LittleEndian.Uint32(sum[:4])
}

// Encode writes payload's frame (header + body) to w.
func Encode(w io.Writer, p Payload) error {
	var body bytes.Buffer
	if err := p.Encode(&body); err != nil {
		return fmt.Errorf("wire: encode payload: %w", err)
	}
	if body.Len() > MaxPayloadSize {
		return ErrPayloadTooLarge
	}

	hdr := Header{
		Magic:      Magic,
		Type:       p.Type(),
		PayloadLen: uint32(body.Len()),
		Checksum:   checksumOf(body.Bytes()),
	}
	if err := writeHeader(w, hdr); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

func writeHeader(w io.Writer, hdr Header) error {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], hdr.Magic)
	buf[4] = byte(hdr.Type)
	binary.LittleEndian.PutUint32(buf[5:9], hdr.PayloadLen)
	binary.LittleEndian.PutUint32(buf[9:13], hdr.Checksum)
	_, err := w.Write(buf[:])
	return err
}

// ReadHeader reads and validates the fixed header from r, without touching
// the payload. Callers use this to decide whether to read (known type) or
// skip (unknown type, still must consume PayloadLen bytes) the body.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return Header{}, ErrTruncatedFrame
		}
		return Header{}, err
	}
	hdr := Header{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Type:       MessageType(buf[4]),
		PayloadLen: binary.LittleEndian.Uint32(buf[5:9]),
		Checksum:   binary.LittleEndian.Uint32(buf[9:13]),
	}
	if hdr.Magic != Magic {
		return Header{}, ErrInvalidMagic
	}
	if hdr.PayloadLen > MaxPayloadSize {
		return Header{}, ErrPayloadTooLarge
	}
	return hdr, nil
}

// ReadPayload reads PayloadLen bytes declared by hdr from r, verifies the
// checksum, and returns the raw payload bytes for the caller to decode
// into the type-specific struct once it knows hdr.Type.
func ReadPayload(r io.Reader, hdr Header) ([]byte, error) {
	body := make([]byte, hdr.PayloadLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, ErrTruncatedFrame
	}
	if checksumOf(body) != hdr.Checksum {
		return nil, ErrChecksumMismatch
	}
	return body, nil
}

// Decode reads one complete frame from r and returns its decoded payload.
// An unknown message type is reported as ErrUnknownMessageType with the
// frame already fully consumed from r, so the caller can log and continue
// reading the stream (§4.B: "logged and dropped; the session continues").
func Decode(r io.Reader) (Payload, error) {
	hdr, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	body, err := ReadPayload(r, hdr)
	if err != nil {
		return nil, err
	}

	p, ok := newPayload(hdr.Type)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownMessageType, uint8(hdr.Type))
	}
	if err := p.Decode(bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("wire: decode %s payload: %w", hdr.Type, err)
	}
	return p, nil
}

func newPayload(t MessageType) (Payload, bool) {
	switch t {
	case MsgHandshake:
		return &Handshake{}, true
	case MsgHandshakeAck:
		return &HandshakeAck{}, true
	case MsgPing:
		return &Ping{}, true
	case MsgPong:
		return &Pong{}, true
	case MsgBlock:
		return &BlockPayload{}, true
	case MsgTransaction:
		return &TransactionPayload{}, true
	case MsgDhtFindNode:
		return &DhtFindNode{}, true
	case MsgDhtFindNodeReply:
		return &DhtFindNodeReply{}, true
	case MsgDhtStore:
		return &DhtStore{}, true
	case MsgDhtFindValue:
		return &DhtFindValue{}, true
	case MsgDhtFindValueReply:
		return &DhtFindValueReply{}, true
	case MsgBootstrapAnnounce:
		return &BootstrapAnnounce{}, true
	case MsgBootstrapPeersReq:
		return &BootstrapPeersReq{}, true
	case MsgBootstrapPeersRep:
		return &BootstrapPeersRep{}, true
	default:
		return nil, false
	}
}

// --- shared primitive codec helpers ---

func writeUint16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrTruncatedFrame
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrTruncatedFrame
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrTruncatedFrame
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeInt64(w io.Writer, v int64) error {
	return writeUint64(w, uint64(v))
}

func readInt64(r io.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func writeFixed(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func readFixed(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrTruncatedFrame
	}
	return b, nil
}

func writeVarBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader, max uint32) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, ErrPayloadTooLarge
	}
	return readFixed(r, int(n))
}

func writeString(w io.Writer, s string) error {
	return writeVarBytes(w, []byte(s))
}

func readString(r io.Reader, max uint32) (string, error) {
	b, err := readVarBytes(r, max)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
