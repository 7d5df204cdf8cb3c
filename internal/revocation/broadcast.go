package revocation

import "sync"

// Broadcaster fans a single admin-side revocation out to every worker's own
// Queue. spec.md §9 calls this out explicitly: the Queue by itself delivers
// each entry to exactly one drainer, so true cross-worker broadcast needs
// either one queue per worker (this implementation) or a versioned snapshot.
// The orchestrator constructs one Broadcaster, registers one Queue per
// worker at startup, and hands the admin listener only the Broadcaster (not
// the individual queues) so admin pushes always reach every worker.
type Broadcaster struct {
	mu      sync.RWMutex
	workers []*Queue
}

// NewBroadcaster returns a Broadcaster with no registered worker queues.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Register adds a worker queue to the fan-out set and returns it. Called
// once per worker at startup. A queue registered after a Push does not
// receive that Push's entry.
func (b *Broadcaster) Register() *Queue {
	q := NewQueue()
	b.mu.Lock()
	b.workers = append(b.workers, q)
	b.mu.Unlock()
	return q
}

// Push enqueues entry onto every registered worker queue. Returns the first
// error encountered (e.g. ErrEmptyJTI); still attempts to push to every
// queue so a single worker's failure does not prevent others from
// observing the revocation — though in practice the only failure mode
// (empty jti) is identical across every push.
func (b *Broadcaster) Push(entry Entry) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var firstErr error
	for _, q := range b.workers {
		if err := q.Push(entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WorkerCount returns how many worker queues are currently registered.
func (b *Broadcaster) WorkerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.workers)
}
