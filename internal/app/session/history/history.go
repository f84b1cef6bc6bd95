// Package history records recently played entries.
package history

import (
	"sync"

	"github.com/osa030/rhythmbot/internal/domain/media"
)

// DefaultSize is the number of entries kept when no size is given.
const DefaultSize = 20

// History keeps the most recently played entries, newest first.
type History struct {
	mu      sync.RWMutex
	size    int
	entries []*media.Entry
}

// New creates a history holding at most size entries.
func New(size int) *History {
	if size <= 0 {
		size = DefaultSize
	}
	return &History{size: size}
}

// Record adds e as the newest entry. An entry recorded twice in a row is kept once.
func (h *History) Record(e *media.Entry) {
	if e == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) > 0 && h.entries[0] == e {
		return
	}
	h.entries = append([]*media.Entry{e}, h.entries...)
	if len(h.entries) > h.size {
		h.entries = h.entries[:h.size]
	}
}

// Recent returns up to n entries, newest first.
func (h *History) Recent(n int) []*media.Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n = min(n, len(h.entries))
	if n <= 0 {
		return nil
	}
	return append([]*media.Entry(nil), h.entries[:n]...)
}

// All returns every recorded entry, newest first.
func (h *History) All() []*media.Entry {
	return h.Recent(h.Count())
}

// Count returns the number of recorded entries.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Clear forgets every entry.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}
