package reprap

import (
	"context"
	"testing"
	"time"
)

func TestQueueDedupRejectsSameType(t *testing.T) {
	q := NewQueue("test")
	if err := q.Put(NewCommandItem(ToCommand("M105"), "temperature_poll", nil)); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	err := q.Put(NewCommandItem(ToCommand("M105"), "temperature_poll", nil))
	if err != ErrTypeAlreadyInQueue {
		t.Fatalf("second Put with the same type = %v, want ErrTypeAlreadyInQueue", err)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestQueueDedupIgnoredForEmptyType(t *testing.T) {
	q := NewQueue("test")
	if err := q.Put(NewCommandItem(ToCommand("G1 X1"), "", nil)); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := q.Put(NewCommandItem(ToCommand("G1 X2"), "", nil)); err != nil {
		t.Fatalf("second Put with empty type should not dedup: %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
}

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue("test")
	q.Put(NewCommandItem(ToCommand("G1 X1"), "", nil))
	q.Put(NewCommandItem(ToCommand("G1 X2"), "", nil))

	ctx := context.Background()
	first, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first.Command.Line() != "G1 X1" {
		t.Fatalf("first item = %q, want %q", first.Command.Line(), "G1 X1")
	}
	second, _ := q.Get(ctx)
	if second.Command.Line() != "G1 X2" {
		t.Fatalf("second item = %q, want %q", second.Command.Line(), "G1 X2")
	}
}

func TestQueueResendActivePriority(t *testing.T) {
	q := NewQueue("send")
	q.Put(NewCommandItem(ToCommand("G1 X3"), "", nil)) // freshly queued, "send"-targeted
	q.Put(NewResendItem(2, "G1 X2", nil))              // "resend"-targeted, enqueued second
	q.SetResendActive(true)

	ctx := context.Background()
	item, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.Target != "resend" || item.LineNumber != 2 {
		t.Fatalf("expected the resend item to be serviced first, got target=%q lineno=%d", item.Target, item.LineNumber)
	}

	next, _ := q.Get(ctx)
	if next.Command.Line() != "G1 X3" {
		t.Fatalf("expected the freshly queued item next, got %q", next.Command.Line())
	}
}

func TestQueueBlockedDoAtomicDrain(t *testing.T) {
	q := NewQueue("send")
	q.Put(NewCommandItem(ToCommand("G1 X1"), "", nil))

	var drained []*QueueItem
	q.BlockedDo(func(bq *Queue) {
		drained = bq.Drain()
	})

	if len(drained) != 1 {
		t.Fatalf("Drain() returned %d items, want 1", len(drained))
	}
	if q.Len() != 0 {
		t.Fatalf("Len() after Drain = %d, want 0", q.Len())
	}

	// The queue is unblocked again (BlockedDo's defer) and empty: Get must
	// not return until something new is Put, so it should time out here.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := q.Get(ctx); err == nil {
		t.Fatal("Get on an empty, unblocked queue should have blocked until ctx timed out")
	}
}
