package p2p

import (
	"net"
	"testing"
	"time"

	"github.com/kjaylee/eastsea-node/internal/wire"
)

func pipeSessions(t *testing.T, queueSize int) (*Session, *Session) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return NewSession(a, true, queueSize), NewSession(b, false, queueSize)
}

func TestSessionInitialStates(t *testing.T) {
	s1, s2 := pipeSessions(t, 4)
	if s1.State() != Dialing {
		t.Fatalf("outbound session state = %s, want Dialing", s1.State())
	}
	if s2.State() != Accepted {
		t.Fatalf("inbound session state = %s, want Accepted", s2.State())
	}
}

func TestEnqueueNonCriticalDropsOldestOnOverflow(t *testing.T) {
	s, _ := pipeSessions(t, 2)
	defer s.Close()

	for i := 0; i < 2; i++ {
		if err := s.Enqueue(&wire.Ping{Nonce: uint64(i)}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	if s.QueueDepth() != 2 {
		t.Fatalf("QueueDepth() = %d, want 2", s.QueueDepth())
	}

	if err := s.Enqueue(&wire.Ping{Nonce: 99}); err != nil {
		t.Fatalf("Enqueue on full queue returned error: %v", err)
	}
	if s.DroppedCount() != 1 {
		t.Fatalf("DroppedCount() = %d, want 1", s.DroppedCount())
	}
	if s.QueueDepth() != 2 {
		t.Fatalf("QueueDepth() = %d after overflow, want still 2", s.QueueDepth())
	}
}

func TestEnqueueCriticalClosesSessionWhenQueueNeverDrains(t *testing.T) {
	s, _ := pipeSessions(t, 1)
	defer s.Close()

	if err := s.Enqueue(&wire.BlockPayload{}); err != nil {
		t.Fatalf("first critical enqueue failed: %v", err)
	}

	start := time.Now()
	err := s.Enqueue(&wire.BlockPayload{})
	elapsed := time.Since(start)
	if err == nil {
		t.Fatal("expected critical enqueue on a permanently full queue to error")
	}
	if elapsed < criticalEnqueueDeadline {
		t.Fatalf("enqueue returned after %v, want at least %v", elapsed, criticalEnqueueDeadline)
	}
	if s.State() != Closed {
		t.Fatalf("session state = %s, want Closed after a stalled critical enqueue", s.State())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _ := pipeSessions(t, 1)
	s.Close()
	s.Close()
	if s.State() != Closed {
		t.Fatal("Close should be safe to call more than once")
	}
}

func TestEnqueueOnClosedSessionErrors(t *testing.T) {
	s, _ := pipeSessions(t, 1)
	s.Close()
	if err := s.Enqueue(&wire.Ping{}); err == nil {
		t.Fatal("expected error enqueuing on a closed session")
	}
}
