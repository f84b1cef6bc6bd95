// Package notification fans user facing notices out to delivery sinks.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single sink delivery.
const DefaultTimeout = 5 * time.Second

// Sink delivers notices, e.g. to a chat channel or a log. Send returns
// once ctx is done.
type Sink interface {
	Send(ctx context.Context, n Notice) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notice) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, n Notice) error {
	return f(ctx, n)
}

// subscription represents a registered sink.
type subscription struct {
	id   string
	sink Sink
}

// Manager manages sinks and broadcasts notices in submission order.
// Notify never blocks the caller; delivery happens on a dedicated goroutine.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex

	timeout time.Duration
	pending chan Notice

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a notification manager. timeout bounds each sink delivery.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		subscriptions: make(map[string]*subscription),
		timeout:       timeout,
		pending:       make(chan Notice, 128),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	go m.run()
	return m
}

// Subscribe adds a sink and returns the subscription ID.
func (m *Manager) Subscribe(sink Sink) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:   id,
		sink: sink,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// SubscriberCount returns the number of active sinks.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Notify queues a notice for delivery. Notices are dropped when the backlog is full.
// ctx only bounds the enqueue; delivery runs detached so callers holding locks never wait on sinks.
func (m *Manager) Notify(ctx context.Context, n Notice) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	m.sequenceNoMu.Lock()
	m.sequenceNo++
	n.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	select {
	case m.pending <- n:
	case <-m.ctx.Done():
	case <-ctx.Done():
	default:
		zlog.Warn().Msgf("notification: backlog full, dropping notice: kind=%s title=%q", n.Kind, n.Title)
	}
}

// Close stops delivery after flushing already queued notices.
func (m *Manager) Close() {
	m.cancel()
	<-m.done

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		select {
		case n := <-m.pending:
			m.broadcast(n)
		case <-m.ctx.Done():
			for {
				select {
				case n := <-m.pending:
					m.broadcast(n)
				default:
					return
				}
			}
		}
	}
}

// broadcast sends a notice to every sink in parallel and returns once every
// sink is done with it, so a sink never sees two notices at once. The timeout
// is handed to the sink through its context.
func (m *Manager) broadcast(n Notice) {
	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			defer cancel()

			err := s.sink.Send(ctx, n)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				zlog.Warn().Msgf("notification: sink timed out: subscription=%s kind=%s error=%v", s.id, n.Kind, err)
			default:
				zlog.Warn().Msgf("notification: sink failed: subscription=%s kind=%s error=%v", s.id, n.Kind, err)
			}
		}(sub)
	}

	wg.Wait()
}
