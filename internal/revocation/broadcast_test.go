package revocation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcasterRegisterTracksWorkerCount(t *testing.T) {
	b := NewBroadcaster()
	require.Equal(t, 0, b.WorkerCount())
	b.Register()
	b.Register()
	require.Equal(t, 2, b.WorkerCount())
}

func TestBroadcasterPushReachesEveryWorker(t *testing.T) {
	b := NewBroadcaster()
	q1 := b.Register()
	q2 := b.Register()
	q3 := b.Register()

	require.NoError(t, b.Push(Entry{JTI: "revoked-token", Exp: 9999}))

	for _, q := range []*Queue{q1, q2, q3} {
		entries := q.Drain()
		require.Len(t, entries, 1)
		require.Equal(t, "revoked-token", entries[0].JTI)
	}
}

// TestBroadcasterSingleQueueIsSingleConsumer documents the limitation
// spec.md §8 scenario 6 calls out: a bare Queue shared by two workers
// delivers each entry to whichever worker drains first, not to both. The
// Broadcaster exists precisely to avoid this by handing each worker its own
// Queue.
func TestBroadcasterSingleQueueIsSingleConsumer(t *testing.T) {
	shared := NewQueue()
	require.NoError(t, shared.Push(Entry{JTI: "tok", Exp: 1}))

	workerA := shared.Drain()
	workerB := shared.Drain()

	require.Len(t, workerA, 1)
	require.Empty(t, workerB, "second drainer sees nothing; a bare queue is not a broadcast primitive")
}

func TestBroadcasterPushWithNoWorkersIsNoop(t *testing.T) {
	b := NewBroadcaster()
	require.NoError(t, b.Push(Entry{JTI: "tok", Exp: 1}))
}

func TestBroadcasterPushRejectsEmptyJTI(t *testing.T) {
	b := NewBroadcaster()
	b.Register()
	require.ErrorIs(t, b.Push(Entry{JTI: "", Exp: 1}), ErrEmptyJTI)
}
