package p2p

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kjaylee/eastsea-node/internal/hashutil"
	"github.com/kjaylee/eastsea-node/internal/wire"
)

// Handler processes one decoded payload from one session. Registered per
// wire.MessageType via Transport.HandleFunc.
type Handler func(s *Session, msg wire.Payload)

// Transport owns the listener, the set of active sessions, and per-type
// handler registration — the single logical owner of the peer map, per
// §5's ownership rule.
type Transport struct {
	SelfAddr   string
	SelfPort   uint16
	QueueSize  int

	PingInterval time.Duration
	PongTimeout  time.Duration

	ln net.Listener

	mu       sync.RWMutex
	sessions map[string]*Session
	handlers map[wire.MessageType]Handler

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewTransport creates a Transport with the given send-queue capacity and
// keepalive intervals (§4.C defaults: 1024 queue, 30s ping, 60s pong
// timeout). selfPort is advertised in this node's Handshake payload.
func NewTransport(selfAddr string, selfPort uint16, queueSize int, pingInterval, pongTimeout time.Duration) *Transport {
	return &Transport{
		SelfAddr:     selfAddr,
		SelfPort:     selfPort,
		QueueSize:    queueSize,
		PingInterval: pingInterval,
		PongTimeout:  pongTimeout,
		sessions:     make(map[string]*Session),
		handlers:     make(map[wire.MessageType]Handler),
		stopCh:       make(chan struct{}),
	}
}

// selfNodeID derives this node's 32-byte wire-level NodeID from its
// advertised listen address, via the shared sha256 helper the rest of the
// node uses for content identity.
func (t *Transport) selfNodeID() [wire.NodeIDSize]byte {
	h := hashutil.Sum256([]byte(t.SelfAddr))
	return [wire.NodeIDSize]byte(h)
}

func (t *Transport) handshakePayload() wire.Handshake {
	return wire.Handshake{
		ProtocolVersion: wire.ProtocolVersion,
		NodeID:          t.selfNodeID(),
		ListenPort:      t.SelfPort,
		Timestamp:       time.Now().Unix(),
	}
}

// HandleFunc registers h to receive every Connected-state dispatch of
// message type t. Handshake/HandshakeAck/Ping/Pong are handled internally
// by the transport and should not be re-registered by callers.
func (t *Transport) HandleFunc(mt wire.MessageType, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[mt] = h
}

// Listen binds addr and starts accepting inbound connections in the
// background.
func (t *Transport) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("p2p: listen %s: %w", addr, err)
	}
	t.ln = ln
	t.wg.Add(1)
	go t.acceptLoop()
	return nil
}

func (t *Transport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			select {
			case <-t.stopCh:
				return
			default:
				log.Warnf("accept error: %v", err)
				return
			}
		}
		s := NewSession(conn, false, t.QueueSize)
		t.addSession(s)
		s.Start(t.dispatch)
	}
}

// Dial opens an outbound session to addr and performs the handshake.
func (t *Transport) Dial(ctx context.Context, addr string) (*Session, error) {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("p2p: %w: %v", ErrConnectRefused, err)
	}
	s := NewSession(conn, true, t.QueueSize)
	t.addSession(s)
	s.Start(t.dispatch)
	s.setState(Handshaking)

	hs := t.handshakePayload()
	if err := s.Enqueue(&hs); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

var ErrConnectRefused = errors.New("p2p: connection refused")

func (t *Transport) addSession(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[s.Addr] = s
}

func (t *Transport) removeSession(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, addr)
}

// Session returns the session for addr, if any.
func (t *Transport) Session(addr string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[addr]
	return s, ok
}

// PeerCount returns the number of currently Connected sessions.
func (t *Transport) PeerCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.sessions {
		if s.State() == Connected {
			n++
		}
	}
	return n
}

// Sessions returns a snapshot of every currently tracked session.
func (t *Transport) Sessions() []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast fans msg out to every Connected session, per §4.C.
func (t *Transport) Broadcast(msg wire.Payload) {
	for _, s := range t.Sessions() {
		if s.State() != Connected {
			continue
		}
		if err := s.Enqueue(msg); err != nil {
			log.Warnf("peer=%s broadcast enqueue failed: %v", s.Addr, err)
		}
	}
}

// dispatch handles handshake and keepalive internally, and routes every
// other message type to its registered Handler.
func (t *Transport) dispatch(s *Session, msg wire.Payload) {
	switch m := msg.(type) {
	case *wire.Handshake:
		t.handleHandshake(s, m)
		return
	case *wire.HandshakeAck:
		if m.ProtocolVersion != wire.ProtocolVersion {
			log.Warnf("peer=%s version mismatch in handshake ack: %d", s.Addr, m.ProtocolVersion)
			s.Close()
			return
		}
		s.SetRemoteNodeID(hex.EncodeToString(m.NodeID[:]))
		s.setState(Connected)
		log.Infof("peer=%s handshake complete", s.Addr)
		return
	case *wire.Ping:
		_ = s.Enqueue(&wire.Pong{Nonce: m.Nonce, Timestamp: uint64(time.Now().Unix())})
		return
	case *wire.Pong:
		s.MarkPong(m.Nonce)
		return
	}

	t.mu.RLock()
	h, ok := t.handlers[msg.Type()]
	t.mu.RUnlock()
	if !ok {
		log.Debugf("peer=%s no handler registered for type=%s, dropping", s.Addr, msg.Type())
		return
	}
	h(s, msg)
}

func (t *Transport) handleHandshake(s *Session, m *wire.Handshake) {
	s.setState(Handshaking)
	if m.ProtocolVersion != wire.ProtocolVersion {
		log.Warnf("peer=%s version mismatch: %d", s.Addr, m.ProtocolVersion)
		s.Close()
		return
	}
	ack := &wire.HandshakeAck{Handshake: t.handshakePayload()}
	if err := s.Enqueue(ack); err != nil {
		log.Warnf("peer=%s failed to ack handshake: %v", s.Addr, err)
		s.Close()
		return
	}
	s.SetRemoteNodeID(hex.EncodeToString(m.NodeID[:]))
	s.setState(Connected)
	log.Infof("peer=%s accepted handshake from node_id=%x", s.Addr, m.NodeID)
}

// RunKeepalive pings every Connected session on PingInterval and closes
// any peer whose last matching Pong is older than PongTimeout, until
// stopped via Shutdown. A peer that has never answered a Ping is not
// closed by this check.
func (t *Transport) RunKeepalive() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stopCh:
				return
			case <-ticker.C:
				t.pingAll()
			}
		}
	}()
}

func (t *Transport) pingAll() {
	for _, s := range t.Sessions() {
		if s.State() != Connected {
			continue
		}
		if !s.LastPongAt().IsZero() && time.Since(s.LastPongAt()) > t.PongTimeout {
			log.Warnf("peer=%s unresponsive, closing", s.Addr)
			s.Close()
			t.removeSession(s.Addr)
			continue
		}
		nonce := randomNonce()
		s.SetLastPingNonce(nonce)
		if err := s.Enqueue(&wire.Ping{Nonce: nonce, Timestamp: uint64(time.Now().Unix())}); err != nil {
			log.Warnf("peer=%s ping enqueue failed: %v", s.Addr, err)
		}
	}
}

func randomNonce() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// Shutdown stops accepting new connections, signals every session to
// close, and waits up to drainDeadline for their queues to drain before
// returning, per §4.I's graceful shutdown contract.
func (t *Transport) Shutdown(ctx context.Context, drainDeadline time.Duration) error {
	close(t.stopCh)
	if t.ln != nil {
		_ = t.ln.Close()
	}

	sessions := t.Sessions()
	deadline := time.NewTimer(drainDeadline)
	defer deadline.Stop()

	drainUntil := time.Now().Add(drainDeadline)
	for _, s := range sessions {
		for s.State() != Closed && s.QueueDepth() > 0 && time.Now().Before(drainUntil) {
			time.Sleep(5 * time.Millisecond)
		}
	}

	for _, s := range sessions {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		for _, s := range sessions {
			s.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-deadline.C:
		log.Warnf("shutdown drain deadline exceeded with %d sessions outstanding", len(sessions))
	case <-ctx.Done():
		return ctx.Err()
	}

	t.wg.Wait()
	return nil
}
