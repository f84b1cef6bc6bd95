package queue

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/rhythmbot/internal/domain/media"
)

func newEntries(names ...string) []*media.Entry {
	entries := make([]*media.Entry, len(names))
	for i, n := range names {
		entries[i] = media.NewEntry("ref-"+n, n, "")
	}
	return entries
}

func newQueue(entries ...*media.Entry) *Queue {
	q := NewWithRand(rand.New(rand.NewSource(1)))
	for _, e := range entries {
		q.Enqueue(e)
	}
	return q
}

func names(q *Queue) []string {
	result := make([]string, 0, q.Len())
	for _, e := range q.Entries() {
		result = append(result, e.DisplayName)
	}
	return result
}

func TestQueue_EnqueueReturnsPosition(t *testing.T) {
	q := newQueue()
	entries := newEntries("A", "B", "C")

	for i, e := range entries {
		assert.Equal(t, i+1, q.Enqueue(e))
	}
	assert.Equal(t, 3, q.Len())
}

func TestQueue_Dequeue(t *testing.T) {
	entries := newEntries("A", "B")
	q := newQueue(entries...)

	head, ok := q.Dequeue()
	require.True(t, ok)
	assert.Same(t, entries[0], head)

	head, ok = q.Dequeue()
	require.True(t, ok)
	assert.Same(t, entries[1], head)

	head, ok = q.Dequeue()
	assert.False(t, ok)
	assert.Nil(t, head)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_Remove(t *testing.T) {
	entries := newEntries("A", "B", "C")

	tests := []struct {
		name      string
		target    *media.Entry
		wantOK    bool
		wantNames []string
	}{
		{name: "head", target: entries[0], wantOK: true, wantNames: []string{"B", "C"}},
		{name: "middle", target: entries[1], wantOK: true, wantNames: []string{"A", "C"}},
		{name: "tail", target: entries[2], wantOK: true, wantNames: []string{"A", "B"}},
		{name: "not queued", target: media.NewEntry("ref-A", "A", ""), wantOK: false, wantNames: []string{"A", "B", "C"}},
		{name: "nil", target: nil, wantOK: false, wantNames: []string{"A", "B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQueue(entries...)
			removed, ok := q.Remove(tt.target)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Same(t, tt.target, removed)
			}
			assert.Equal(t, tt.wantNames, names(q))
		})
	}
}

func TestQueue_IndexOfUsesIdentity(t *testing.T) {
	a := media.NewEntry("same", "Same Title", "")
	b := media.NewEntry("same", "Same Title", "")
	q := newQueue(a, b)

	assert.Equal(t, 0, q.IndexOf(a))
	assert.Equal(t, 1, q.IndexOf(b))
	assert.Equal(t, -1, q.IndexOf(media.NewEntry("same", "Same Title", "")))
}

func TestQueue_Clear(t *testing.T) {
	q := newQueue(newEntries("A", "B")...)
	q.Clear()
	assert.Equal(t, 0, q.Len())
	_, ok := q.First()
	assert.False(t, ok)

	// Clearing an empty queue is a no-op.
	q.Clear()
	assert.Equal(t, 0, q.Len())
}

func TestQueue_Move(t *testing.T) {
	tests := []struct {
		name      string
		current   int
		target    int
		wantNames []string
	}{
		{name: "forward", current: 0, target: 2, wantNames: []string{"B", "C", "A", "D"}},
		{name: "backward", current: 3, target: 1, wantNames: []string{"A", "D", "B", "C"}},
		{name: "same index", current: 1, target: 1, wantNames: []string{"A", "B", "C", "D"}},
		{name: "target clamped high", current: 0, target: 99, wantNames: []string{"B", "C", "D", "A"}},
		{name: "current clamped low", current: -5, target: 1, wantNames: []string{"B", "A", "C", "D"}},
		{name: "both clamped equal", current: 10, target: 20, wantNames: []string{"A", "B", "C", "D"}},
		{name: "adjacent swap", current: 2, target: 3, wantNames: []string{"A", "B", "D", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQueue(newEntries("A", "B", "C", "D")...)
			q.Move(tt.current, tt.target)
			assert.Equal(t, tt.wantNames, names(q))
		})
	}
}

func TestQueue_MoveRoundTrip(t *testing.T) {
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			if i == j {
				continue
			}
			q := newQueue(newEntries("A", "B", "C", "D", "E")...)
			original := q.Entries()

			q.Move(i, j)
			q.Move(j, i)

			assert.Equal(t, original, q.Entries(), "move(%d,%d) then move(%d,%d)", i, j, j, i)
		}
	}
}

func TestQueue_MoveOnSmallQueues(t *testing.T) {
	q := newQueue()
	q.Move(0, 3)
	assert.Equal(t, 0, q.Len())

	q = newQueue(newEntries("A")...)
	q.Move(0, 3)
	assert.Equal(t, []string{"A"}, names(q))
}

func TestQueue_ShufflePreservesMembership(t *testing.T) {
	for size := 0; size <= 12; size++ {
		entries := make([]*media.Entry, size)
		for i := range entries {
			entries[i] = media.NewEntry("ref", "same", "")
		}
		q := NewWithRand(rand.New(rand.NewSource(int64(size))))
		for _, e := range entries {
			q.Enqueue(e)
		}

		q.Shuffle()

		assert.Equal(t, size, q.Len())
		assert.ElementsMatch(t, entries, q.Entries())
	}
}

func TestQueue_ShuffleIsUniform(t *testing.T) {
	entries := newEntries("A", "B", "C")
	q := NewWithRand(rand.New(rand.NewSource(42)))
	for _, e := range entries {
		q.Enqueue(e)
	}

	const rounds = 60000
	counts := make(map[string]int)
	for i := 0; i < rounds; i++ {
		q.Shuffle()
		key := ""
		for _, n := range names(q) {
			key += n
		}
		counts[key]++
	}

	// 3! permutations, each expected rounds/6 times.
	require.Len(t, counts, 6)
	expected := rounds / 6
	for perm, c := range counts {
		assert.InDelta(t, expected, c, float64(expected)*0.05, "permutation %s", perm)
	}
}

func TestQueue_LengthInvariant(t *testing.T) {
	q := newQueue()
	enqueued, removed := 0, 0

	entries := newEntries("A", "B", "C", "D", "E", "F")
	for _, e := range entries {
		q.Enqueue(e)
		enqueued++
	}
	if _, ok := q.Dequeue(); ok {
		removed++
	}
	if _, ok := q.Remove(entries[3]); ok {
		removed++
	}
	if _, ok := q.Remove(entries[3]); ok {
		removed++
	}
	assert.Equal(t, enqueued-removed, q.Len())

	q.Clear()
	_, ok := q.Dequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_AtAndFirst(t *testing.T) {
	entries := newEntries("A", "B")
	q := newQueue(entries...)

	first, ok := q.First()
	require.True(t, ok)
	assert.Same(t, entries[0], first)

	second, ok := q.At(1)
	require.True(t, ok)
	assert.Same(t, entries[1], second)

	_, ok = q.At(2)
	assert.False(t, ok)
	_, ok = q.At(-1)
	assert.False(t, ok)
}

func TestQueue_Contains(t *testing.T) {
	q := newQueue(newEntries("A")...)
	assert.True(t, q.Contains("ref-A"))
	assert.False(t, q.Contains("ref-B"))
}

func TestQueue_EntriesReturnsCopy(t *testing.T) {
	q := newQueue(newEntries("A", "B")...)
	snapshot := q.Entries()
	snapshot[0] = nil

	first, ok := q.First()
	require.True(t, ok)
	assert.Equal(t, "A", first.DisplayName)
}
