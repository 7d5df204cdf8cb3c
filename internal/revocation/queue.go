// Package revocation implements Titan's JWT revocation fabric: a wait-free
// cross-thread broadcast queue feeding per-worker blacklists. It is the only
// piece of mutable state that crosses worker boundaries (spec.md §1).
package revocation

import (
	"errors"
	"sync/atomic"
)

// ErrEmptyJTI is returned by Push when jti is the empty string; entries must
// carry a non-empty jti per spec.md §3.
var ErrEmptyJTI = errors.New("revocation: jti must not be empty")

// Entry is a (jti, exp) pair. Immutable once constructed.
type Entry struct {
	JTI string
	Exp uint64
}

// node is an intrusive LIFO stack node. The stack owns the node and the
// entry it carries; ownership transfers to the drain caller, which is the
// only thread permitted to free it (by letting it become unreachable).
type node struct {
	entry Entry
	next  *node
}

// Queue is a multi-producer/multi-consumer set of Entry with LIFO drain
// order, built on an atomic head pointer (spec.md §4.3, §9 "Intrusive atomic
// stack"). The orchestrator gives each worker its own Queue through
// Broadcaster.Register.
//
// push is wait-free. drain is lock-free and empties the entire chain
// observed at the moment of the swap; each entry is delivered to exactly
// one drain call — the queue is a single-consumer-per-entry primitive, not
// a broadcast primitive (spec.md §8 scenario 6). Broadcast is reconstructed
// one layer up by Broadcaster.
type Queue struct {
	head atomic.Pointer[node]
	size atomic.Int64 // approximate, advisory only (see HasPending)
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push enqueues entry. Wait-free: retries a CAS loop but never blocks or
// allocates beyond the single node allocation.
func (q *Queue) Push(entry Entry) error {
	if entry.JTI == "" {
		return ErrEmptyJTI
	}
	n := &node{entry: entry}
	for {
		old := q.head.Load()
		n.next = old
		if q.head.CompareAndSwap(old, n) {
			q.size.Add(1)
			return nil
		}
	}
}

// Drain atomically detaches the whole chain and returns it as an ordered
// slice, most-recently-pushed first (LIFO). A subsequent Drain with no
// intervening Push returns nil.
func (q *Queue) Drain() []Entry {
	n := q.head.Swap(nil)
	if n == nil {
		q.size.Store(0)
		return nil
	}

	var out []Entry
	for cur := n; cur != nil; {
		out = append(out, cur.entry)
		next := cur.next
		cur.next = nil // drop the link so the detached chain is freed as we walk it
		cur = next
	}
	q.size.Store(0)
	return out
}

// HasPending is a relaxed, advisory check: it may spuriously report true or
// false relative to a concurrent push/drain. Callers that need an
// authoritative answer must call Drain.
func (q *Queue) HasPending() bool {
	return q.size.Load() > 0
}
