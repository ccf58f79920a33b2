// Package p2p implements the transport layer (§4.C): a listener/dialer
// pair, a per-peer Session state machine, keepalive, and a bounded
// outbound queue with the documented drop-oldest backpressure policy. The
// event-loop shape (stopChan + sync.WaitGroup around a goroutine) follows
// the teacher's consensus engine Start/Stop pattern.
package p2p

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kjaylee/eastsea-node/internal/logctx"
	"github.com/kjaylee/eastsea-node/internal/wire"
)

var log = logctx.Logger("PEER")

// State is a Session's position in the §4.C state machine.
type State int

const (
	Dialing State = iota
	Accepted
	Handshaking
	Connected
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Dialing:
		return "Dialing"
	case Accepted:
		return "Accepted"
	case Handshaking:
		return "Handshaking"
	case Connected:
		return "Connected"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var (
	ErrSendQueueFull    = errors.New("p2p: send queue full")
	ErrSessionClosed    = errors.New("p2p: session is closed")
	ErrHandshakeTimeout = errors.New("p2p: handshake timeout")
	ErrVersionMismatch  = errors.New("p2p: version mismatch")
)

// criticalEnqueueDeadline bounds how long Enqueue blocks for a critical
// message (Block, Transaction) before giving up and closing the session,
// per §5's backpressure policy.
const criticalEnqueueDeadline = time.Second

// isCritical reports whether a message type must never be silently
// dropped under backpressure. Everything else (Ping, Pong, DHT traffic) is
// a drop-oldest candidate.
func isCritical(t wire.MessageType) bool {
	return t == wire.MsgBlock || t == wire.MsgTransaction
}

// Session owns one peer connection and its state machine, handshake
// gating, and bounded outbound queue.
type Session struct {
	Addr     string
	Outbound bool

	conn net.Conn

	mu    sync.Mutex
	state State

	sendCh chan wire.Payload
	queueN int

	closeOnce sync.Once
	closedCh  chan struct{}
	wg        sync.WaitGroup

	dropped atomic.Uint64

	lastPingNonce uint64
	lastPongAt    atomic.Int64 // unix millis

	remoteDHTID string // filled in once the handshake completes, informational
}

// NewSession wraps conn in a Session. outbound distinguishes a Dialing
// session (we initiated) from an Accepted one (peer initiated); queueSize
// is the bounded outbound queue's capacity (§4.C default 1024).
func NewSession(conn net.Conn, outbound bool, queueSize int) *Session {
	s := &Session{
		Addr:     conn.RemoteAddr().String(),
		Outbound: outbound,
		conn:     conn,
		sendCh:   make(chan wire.Payload, queueSize),
		queueN:   queueSize,
		closedCh: make(chan struct{}),
	}
	if outbound {
		s.state = Dialing
	} else {
		s.state = Accepted
	}
	return s
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState transitions the session's state.
func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// SetRemoteNodeID records the peer's advertised DHT node id once its
// handshake has been read, for get_peers-style introspection.
func (s *Session) SetRemoteNodeID(id string) {
	s.mu.Lock()
	s.remoteDHTID = id
	s.mu.Unlock()
}

// RemoteNodeID returns the peer's advertised DHT node id, or "" before the
// handshake completes.
func (s *Session) RemoteNodeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteDHTID
}

// QueueDepth returns the number of messages currently queued for send,
// giving tests and operators visibility into backpressure per §3's
// supplemented observability requirement.
func (s *Session) QueueDepth() int { return len(s.sendCh) }

// DroppedCount returns the number of non-critical messages dropped under
// backpressure over the session's lifetime.
func (s *Session) DroppedCount() uint64 { return s.dropped.Load() }

// Enqueue queues msg for send. Non-critical messages (Ping, Pong, DHT
// replies) are dropped-oldest on overflow: the session stays open and the
// newest message always wins a full queue. Critical messages (Block,
// Transaction) block up to criticalEnqueueDeadline; if the queue is still
// full after that, the session is force-closed rather than stalling the
// broadcast path, per §5.
func (s *Session) Enqueue(msg wire.Payload) error {
	if s.State() == Closed {
		return ErrSessionClosed
	}

	if !isCritical(msg.Type()) {
		select {
		case s.sendCh <- msg:
			return nil
		default:
			select {
			case <-s.sendCh:
				s.dropped.Add(1)
			default:
			}
			select {
			case s.sendCh <- msg:
				return nil
			default:
				s.dropped.Add(1)
				return nil
			}
		}
	}

	select {
	case s.sendCh <- msg:
		return nil
	case <-time.After(criticalEnqueueDeadline):
		s.Close()
		return fmt.Errorf("p2p: %w: critical message dropped, closing session", ErrSendQueueFull)
	}
}

// writeLoop drains sendCh to the underlying connection until the session
// closes.
func (s *Session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case msg, ok := <-s.sendCh:
			if !ok {
				return
			}
			if err := wire.Encode(s.conn, msg); err != nil {
				log.Warnf("peer=%s write error, closing: %v", s.Addr, err)
				s.Close()
				return
			}
		case <-s.closedCh:
			return
		}
	}
}

// Dispatcher routes a decoded message to whatever subsystem handles its
// type; registered per wire.MessageType by the owning Transport.
type Dispatcher func(s *Session, msg wire.Payload)

// readLoop decodes frames from the connection and hands each to dispatch,
// enforcing handshake gating: only Handshake/HandshakeAck may be
// dispatched before the session reaches Connected. A frame of unknown
// message type is logged and skipped; any other decode error closes the
// session.
func (s *Session) readLoop(dispatch Dispatcher) {
	defer s.wg.Done()
	for {
		msg, err := wire.Decode(s.conn)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownMessageType) {
				log.Warnf("peer=%s dropped frame: %v", s.Addr, err)
				continue
			}
			if !errors.Is(err, io.EOF) {
				log.Warnf("peer=%s decode error, closing: %v", s.Addr, err)
			}
			s.Close()
			return
		}

		st := s.State()
		if st != Connected && msg.Type() != wire.MsgHandshake && msg.Type() != wire.MsgHandshakeAck {
			log.Warnf("peer=%s dropped non-handshake message type=%s in state=%s", s.Addr, msg.Type(), st)
			s.Close()
			return
		}
		dispatch(s, msg)
	}
}

// Start launches the session's read and write loops. dispatch handles
// decoded inbound messages.
func (s *Session) Start(dispatch Dispatcher) {
	s.wg.Add(2)
	go s.writeLoop()
	go s.readLoop(dispatch)
}

// MarkPong records a pong observed for nonce, advancing the liveness
// clock used for unresponsive-peer detection.
func (s *Session) MarkPong(nonce uint64) {
	if nonce == s.lastPingNonce {
		s.lastPongAt.Store(time.Now().UnixMilli())
	}
}

// SetLastPingNonce records the nonce of the most recently sent Ping.
func (s *Session) SetLastPingNonce(nonce uint64) { s.lastPingNonce = nonce }

// LastPongAt returns the time of the last matching Pong, or the zero time
// if none has been observed.
func (s *Session) LastPongAt() time.Time {
	ms := s.lastPongAt.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Close transitions the session to Closed, shuts down its loops, and
// closes the underlying connection. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(Closing)
		close(s.closedCh)
		_ = s.conn.Close()
		s.setState(Closed)
	})
}

// Done returns a channel closed once the session has fully closed.
func (s *Session) Done() <-chan struct{} { return s.closedCh }

// Wait blocks until both of the session's loops have returned.
func (s *Session) Wait() { s.wg.Wait() }
