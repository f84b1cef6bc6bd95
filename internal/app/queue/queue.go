// Package queue provides the ordered media queue.
package queue

import (
	"math/rand"
	"time"

	"github.com/osa030/rhythmbot/internal/domain/media"
)

// Queue is an ordered collection of entries. Insertion order is play order and
// the head (position 0) is the only entry eligible for playback.
//
// Queue is not safe for concurrent use; the player serializes access.
type Queue struct {
	entries []*media.Entry
	rng     *rand.Rand
}

// New creates an empty queue.
func New() *Queue {
	return NewWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand creates an empty queue that shuffles with the given source.
func NewWithRand(rng *rand.Rand) *Queue {
	return &Queue{
		entries: make([]*media.Entry, 0),
		rng:     rng,
	}
}

// Enqueue appends e to the tail and returns its 1-based position.
func (q *Queue) Enqueue(e *media.Entry) int {
	q.entries = append(q.entries, e)
	return len(q.entries)
}

// Dequeue removes and returns the head. It reports false on an empty queue.
func (q *Queue) Dequeue() (*media.Entry, bool) {
	if len(q.entries) == 0 {
		return nil, false
	}
	head := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	return head, true
}

// Remove removes e wherever it sits. It reports false when e is not queued.
// Removing the head does not affect playback; stopping is the caller's job.
func (q *Queue) Remove(e *media.Entry) (*media.Entry, bool) {
	idx := q.IndexOf(e)
	if idx < 0 {
		return nil, false
	}
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	return e, true
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.entries = make([]*media.Entry, 0)
}

// Move moves the entry at current to target, clamping both indices into range.
// The relative order of all other entries is preserved.
func (q *Queue) Move(current, target int) {
	if len(q.entries) < 2 {
		return
	}
	current = q.clamp(current)
	target = q.clamp(target)
	if current == target {
		return
	}

	e := q.entries[current]
	q.entries = append(q.entries[:current], q.entries[current+1:]...)
	q.entries = append(q.entries[:target], append([]*media.Entry{e}, q.entries[target:]...)...)
}

// Shuffle permutes the entries uniformly at random (Fisher-Yates).
func (q *Queue) Shuffle() {
	for i := len(q.entries) - 1; i > 0; i-- {
		j := q.rng.Intn(i + 1)
		q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	}
}

// First returns the head entry.
func (q *Queue) First() (*media.Entry, bool) {
	return q.At(0)
}

// At returns the entry at the 0-based index.
func (q *Queue) At(idx int) (*media.Entry, bool) {
	if idx < 0 || idx >= len(q.entries) {
		return nil, false
	}
	return q.entries[idx], true
}

// IndexOf returns the 0-based index of e by identity, or -1.
func (q *Queue) IndexOf(e *media.Entry) int {
	if e == nil {
		return -1
	}
	for i, qe := range q.entries {
		if qe == e {
			return i
		}
	}
	return -1
}

// Contains reports whether any queued entry has the given reference.
func (q *Queue) Contains(reference string) bool {
	for _, qe := range q.entries {
		if qe.Reference == reference {
			return true
		}
	}
	return false
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the queued entries in play order.
func (q *Queue) Entries() []*media.Entry {
	result := make([]*media.Entry, len(q.entries))
	copy(result, q.entries)
	return result
}

func (q *Queue) clamp(idx int) int {
	if idx < 0 {
		return 0
	}
	if max := len(q.entries) - 1; idx > max {
		return max
	}
	return idx
}
