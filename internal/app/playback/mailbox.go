package playback

import "sync"

// envelope is a stream event tagged with the generation of the stream that reported it.
type envelope struct {
	gen   uint64
	event StreamEvent
}

// mailbox is an unbounded FIFO of stream events. push never blocks, so streams
// may report events from inside Destroy while the player holds its lock.
type mailbox struct {
	mu     sync.Mutex
	items  []envelope
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(e envelope) {
	m.mu.Lock()
	m.items = append(m.items, e)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}
