package revocation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueInitiallyEmpty(t *testing.T) {
	q := NewQueue()
	require.False(t, q.HasPending())
	require.Empty(t, q.Drain())
}

func TestQueuePushSingleEntry(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Push(Entry{JTI: "token123", Exp: 1234567890}))
	require.True(t, q.HasPending())

	entries := q.Drain()
	require.Len(t, entries, 1)
	require.Equal(t, "token123", entries[0].JTI)
	require.Equal(t, uint64(1234567890), entries[0].Exp)
	require.False(t, q.HasPending())
}

func TestQueueDrainIsLIFO(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Push(Entry{JTI: "t1", Exp: 1}))
	require.NoError(t, q.Push(Entry{JTI: "t2", Exp: 2}))
	require.NoError(t, q.Push(Entry{JTI: "t3", Exp: 3}))

	entries := q.Drain()
	require.Equal(t, []Entry{{"t3", 3}, {"t2", 2}, {"t1", 1}}, entries)
	require.Empty(t, q.Drain())
}

func TestQueueRejectsEmptyJTI(t *testing.T) {
	q := NewQueue()
	require.ErrorIs(t, q.Push(Entry{JTI: "", Exp: 1}), ErrEmptyJTI)
	require.False(t, q.HasPending())
}

func TestQueueConcurrentPush(t *testing.T) {
	q := NewQueue()
	const numGoroutines = 8
	const perGoroutine = 200

	var wg sync.WaitGroup
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_ = q.Push(Entry{JTI: "x", Exp: uint64(id*perGoroutine + i)})
			}
		}(g)
	}
	wg.Wait()

	require.True(t, q.HasPending())
	entries := q.Drain()
	require.Len(t, entries, numGoroutines*perGoroutine)
	require.Empty(t, q.Drain())
}

// TestQueueConcurrentDrainSplitsEntries verifies the multiset-union property
// from spec.md §8: with every entry pushed up front and then drained by
// several goroutines at once, every pushed entry is observed by exactly one
// drain call — the union of all drain results equals the pushed multiset,
// with no duplicates.
func TestQueueConcurrentDrainSplitsEntries(t *testing.T) {
	q := NewQueue()
	const total = 500
	for i := 0; i < total; i++ {
		require.NoError(t, q.Push(Entry{JTI: "x", Exp: uint64(i)}))
	}

	var mu sync.Mutex
	seen := make(map[uint64]int)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, e := range q.Drain() {
				mu.Lock()
				seen[e.Exp]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Empty(t, q.Drain())
	require.Len(t, seen, total)
	for _, count := range seen {
		require.Equal(t, 1, count, "each entry must be delivered to exactly one drain")
	}
}
