package fifo

import "testing"

func TestPushPopPreservesOrder(t *testing.T) {
	q := New[string]()
	q.Push("a")
	q.Push("b")
	q.Push("c")

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("expected %q, got %q (ok=%v)", want, got, ok)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected an empty queue to report nothing left")
	}
}

func TestPushDeduplicates(t *testing.T) {
	q := New[string]()
	q.Push("a")
	q.Push("a")
	if q.Len() != 1 {
		t.Fatalf("expected a duplicate push to be a no-op, got len %d", q.Len())
	}
}

func TestRemoveFromMiddle(t *testing.T) {
	q := New[string]()
	q.Push("a")
	q.Push("b")
	q.Push("c")

	if !q.Remove("b") {
		t.Fatalf("expected removing a present value to report true")
	}
	if q.Remove("b") {
		t.Fatalf("expected removing an absent value to report false")
	}

	got, _ := q.Pop()
	if got != "a" {
		t.Fatalf("expected 'a' first, got %q", got)
	}
	got, _ = q.Pop()
	if got != "c" {
		t.Fatalf("expected 'c' after removing the middle element, got %q", got)
	}
}

func TestHasReflectsQueueState(t *testing.T) {
	q := New[int]()
	q.Push(1)
	if !q.Has(1) {
		t.Fatalf("expected Has(1) to be true after push")
	}
	q.Pop()
	if q.Has(1) {
		t.Fatalf("expected Has(1) to be false after pop")
	}
}

func TestRemoveLastElementUpdatesTail(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Remove(2)
	q.Push(3)

	for _, want := range []int{1, 3} {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("expected %d, got %d (ok=%v)", want, got, ok)
		}
	}
}
