package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/kjaylee/eastsea-node/internal/wire"
)

func newTestTransport(t *testing.T, addr string, port uint16) *Transport {
	tr := NewTransport(addr, port, 8, 50*time.Millisecond, time.Second)
	if err := tr.Listen(addr); err != nil {
		t.Fatalf("Listen(%s) failed: %v", addr, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tr.Shutdown(ctx, time.Second)
	})
	return tr
}

func waitForState(t *testing.T, getState func() State, want State) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if getState() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, last seen %s", want, getState())
}

func TestDialHandshakeReachesConnected(t *testing.T) {
	a := newTestTransport(t, "127.0.0.1:18801", 18801)
	b := newTestTransport(t, "127.0.0.1:18802", 18802)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := a.Dial(ctx, "127.0.0.1:18802")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	waitForState(t, s.State, Connected)
	waitForState(t, func() State {
		if b.PeerCount() > 0 {
			return Connected
		}
		return Accepted
	}, Connected)
}

func TestBroadcastDeliversToHandler(t *testing.T) {
	a := newTestTransport(t, "127.0.0.1:18811", 18811)
	b := newTestTransport(t, "127.0.0.1:18812", 18812)

	received := make(chan struct{}, 1)
	b.HandleFunc(wire.MsgTransaction, func(sess *Session, msg wire.Payload) {
		received <- struct{}{}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := a.Dial(ctx, "127.0.0.1:18812")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	waitForState(t, s.State, Connected)

	a.Broadcast(&wire.TransactionPayload{})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the broadcast transaction")
	}
}
