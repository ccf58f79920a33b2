package dht

import (
	"context"
	"testing"
	"time"
)

func contactAt(i byte) Contact {
	var id ID
	id[0] = 0x80 // pins bucketIndex to 159 regardless of the rest
	id[19] = i
	return Contact{ID: id, Addr: "127.0.0.1:0", SeenAt: time.Now()}
}

func TestInsertThenCloserLookupFindsIt(t *testing.T) {
	rt := NewRoutingTable(ID{}, nil)
	c := contactAt(1)
	rt.Insert(context.Background(), c)
	if rt.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", rt.Size())
	}
	got := rt.Closest(c.ID, 1)
	if len(got) != 1 || got[0].ID != c.ID {
		t.Fatal("Closest did not return the inserted contact")
	}
}

func TestInsertIgnoresSelf(t *testing.T) {
	self := contactAt(5).ID
	rt := NewRoutingTable(self, nil)
	rt.Insert(context.Background(), Contact{ID: self, Addr: "x"})
	if rt.Size() != 0 {
		t.Fatal("local id must never be inserted into the table")
	}
}

func TestInsertMovesExistingToTail(t *testing.T) {
	rt := NewRoutingTable(ID{}, nil)
	ctx := context.Background()
	c := contactAt(1)
	rt.Insert(ctx, c)
	rt.Insert(ctx, c) // re-observe; must refresh rather than duplicate
	if rt.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 after re-inserting the same contact", rt.Size())
	}
}

func TestInsertEvictsUnresponsiveHeadWhenBucketFull(t *testing.T) {
	// A pinger that always reports the old contact as dead.
	rt := NewRoutingTable(ID{}, func(ctx context.Context, c Contact) bool { return false })
	ctx := context.Background()
	for i := 0; i < K; i++ {
		rt.Insert(ctx, contactAt(byte(i)))
	}
	if rt.Size() != K {
		t.Fatalf("Size() = %d, want %d", rt.Size(), K)
	}

	newcomer := contactAt(200)
	rt.Insert(ctx, newcomer)
	if rt.Size() != K {
		t.Fatalf("Size() = %d after overflow insert, want still %d", rt.Size(), K)
	}
	got := rt.Closest(newcomer.ID, K)
	found := false
	for _, c := range got {
		if c.ID == newcomer.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("newcomer should have replaced the unresponsive head contact")
	}
}

func TestInsertKeepsFullBucketWhenHeadResponds(t *testing.T) {
	rt := NewRoutingTable(ID{}, func(ctx context.Context, c Contact) bool { return true })
	ctx := context.Background()
	var head Contact
	for i := 0; i < K; i++ {
		c := contactAt(byte(i))
		if i == 0 {
			head = c
		}
		rt.Insert(ctx, c)
	}
	rt.Insert(ctx, contactAt(200))
	if rt.Size() != K {
		t.Fatalf("Size() = %d, want %d", rt.Size(), K)
	}
	got := rt.Closest(head.ID, K)
	found := false
	for _, c := range got {
		if c.ID == head.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("live head contact should have been retained over the newcomer")
	}
}

func TestRemove(t *testing.T) {
	rt := NewRoutingTable(ID{}, nil)
	c := contactAt(3)
	rt.Insert(context.Background(), c)
	rt.Remove(c.ID)
	if rt.Size() != 0 {
		t.Fatal("Remove did not delete the contact")
	}
}
