package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryLog_AppendAssignsSequence(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		e := &Entry{Kind: EntryJobSubmitted, JobID: uuid.New()}
		if err := l.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
		if e.Seq != int64(i) {
			t.Errorf("got seq %d, want %d", e.Seq, i)
		}
	}

	n, err := l.LastSeq(ctx)
	if err != nil || n != 3 {
		t.Errorf("LastSeq = %d, %v; want 3", n, err)
	}
}

func TestMemoryLog_ReplayInOrder(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		l.Append(ctx, &Entry{Kind: EntryJobSubmitted, JobID: id})
	}

	var got []uuid.UUID
	var lastSeq int64
	err := l.Replay(ctx, func(e Entry) error {
		if e.Seq <= lastSeq {
			t.Errorf("seq %d not ascending after %d", e.Seq, lastSeq)
		}
		lastSeq = e.Seq
		got = append(got, e.JobID)
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Errorf("entry %d: got %s, want %s", i, got[i], ids[i])
		}
	}
}

func TestMemoryCustomers(t *testing.T) {
	m := NewMemoryCustomers()
	ctx := context.Background()

	c := &Customer{ID: uuid.New(), Name: "atelier-north", RateLimit: 5, RateLimitBurst: 10}
	if err := m.CreateCustomer(ctx, c, "hash-1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := m.GetCustomerByAPIKeyHash(ctx, "hash-1")
	if err != nil || got.ID != c.ID {
		t.Fatalf("by hash: %+v, %v", got, err)
	}

	got, err = m.GetCustomerByID(ctx, c.ID)
	if err != nil || got.Name != "atelier-north" {
		t.Fatalf("by id: %+v, %v", got, err)
	}

	if _, err := m.GetCustomerByAPIKeyHash(ctx, "nope"); err == nil {
		t.Error("unknown hash should fail")
	}
	if _, err := m.GetCustomerByID(ctx, uuid.New()); err == nil {
		t.Error("unknown id should fail")
	}
}
