// Package fifo provides a generic, deduplicating FIFO queue: the shape the
// coordinator's per-identity dispatch queues and the client worker's job
// ingest queue both need.
//
// Grounded on imagvfx-coco's queue.go (uniqueQueue: a has-map plus a
// singly-linked list, Push/Pop/Remove all O(1) except Remove's list walk),
// generalized from interface{} to a type parameter since this module
// targets go 1.21.
package fifo

// Queue is a FIFO queue that refuses to hold two equal values at once: a
// Push of a value already present is a no-op, matching the dedup semantics
// spec.md §4.3 requires for the client's (job_id, identity) ingest queue.
type Queue[T comparable] struct {
	has   map[T]bool
	first *item[T]
	last  *item[T]
}

type item[T comparable] struct {
	v    T
	next *item[T]
}

// New creates an empty Queue.
func New[T comparable]() *Queue[T] {
	return &Queue[T]{has: make(map[T]bool)}
}

// Push appends v, unless it is already queued.
func (q *Queue[T]) Push(v T) {
	if q.has[v] {
		return
	}
	q.has[v] = true
	it := &item[T]{v: v}
	if q.first == nil {
		q.first = it
	} else {
		q.last.next = it
	}
	q.last = it
}

// Pop removes and returns the oldest value, and whether one was present.
func (q *Queue[T]) Pop() (T, bool) {
	if q.first == nil {
		var zero T
		return zero, false
	}
	v := q.first.v
	delete(q.has, v)
	if q.first == q.last {
		q.first, q.last = nil, nil
	} else {
		q.first = q.first.next
	}
	return v, true
}

// Remove deletes v from the queue if present, reporting whether it was.
func (q *Queue[T]) Remove(v T) bool {
	if !q.has[v] {
		return false
	}
	delete(q.has, v)
	var prev *item[T]
	for it := q.first; it != nil; it = it.next {
		if it.v == v {
			if it == q.first {
				q.first = it.next
			} else {
				prev.next = it.next
			}
			if it == q.last {
				q.last = prev
			}
			break
		}
		prev = it
	}
	return true
}

// Has reports whether v is currently queued.
func (q *Queue[T]) Has(v T) bool { return q.has[v] }

// Len returns the number of queued values.
func (q *Queue[T]) Len() int { return len(q.has) }
