package revocation

// List is a worker-local mapping from jti to exp. Exactly one goroutine may
// call any method on a given List — there is no internal synchronization
// (spec.md §4.4, "Thread confinement").
type List struct {
	blacklist map[string]uint64
}

// NewList returns an empty, worker-local revocation list.
func NewList() *List {
	return &List{blacklist: make(map[string]uint64)}
}

// Revoke inserts or updates jti's expiration. Last-writer-wins.
func (l *List) Revoke(jti string, exp uint64) {
	l.blacklist[jti] = exp
}

// IsRevoked reports whether jti is currently blacklisted. It does not check
// exp against the current time — the pipeline separately rejects tokens
// whose own exp has passed, so blacklisting an already-expired token is
// harmless (spec.md §4.4).
func (l *List) IsRevoked(jti string) bool {
	_, ok := l.blacklist[jti]
	return ok
}

// SyncFromQueue drains queue and folds every entry into the blacklist,
// returning how many entries were applied. The fast path — queue empty —
// costs a single relaxed atomic load and no allocation, since every loop
// iteration pays for it (spec.md §4.4).
func (l *List) SyncFromQueue(queue *Queue) int {
	if !queue.HasPending() {
		return 0
	}
	entries := queue.Drain()
	for _, e := range entries {
		l.Revoke(e.JTI, e.Exp)
	}
	return len(entries)
}

// CleanupExpired removes every entry with Exp <= now. O(n); called
// opportunistically and is not required for correctness.
func (l *List) CleanupExpired(now uint64) {
	for jti, exp := range l.blacklist {
		if exp <= now {
			delete(l.blacklist, jti)
		}
	}
}

// Size returns the current blacklist size, for metrics/debugging.
func (l *List) Size() int {
	return len(l.blacklist)
}
