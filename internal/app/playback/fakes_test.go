package playback

import (
	"context"
	"sync"
	"time"

	"github.com/osa030/rhythmbot/internal/app/notification"
	"github.com/osa030/rhythmbot/internal/domain/media"
)

type fakeStream struct {
	mu         sync.Mutex
	entry      *media.Entry
	listener   Listener
	started    bool
	paused     bool
	destroyed  bool
	terminated bool
	volume     float64
	startErr   error
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	if s.startErr != nil {
		s.mu.Unlock()
		return s.startErr
	}
	s.started = true
	s.mu.Unlock()
	s.listener(StreamEvent{Kind: StreamStart})
	return nil
}

func (s *fakeStream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *fakeStream) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

func (s *fakeStream) SetVolume(multiplier float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = multiplier
	return nil
}

func (s *fakeStream) Elapsed() time.Duration {
	return 42 * time.Second
}

func (s *fakeStream) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	s.mu.Unlock()
	s.listener(StreamEvent{Kind: StreamClose})
}

// finish simulates the source running out.
func (s *fakeStream) finish() {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	s.mu.Unlock()
	s.listener(StreamEvent{Kind: StreamFinish})
}

// fail simulates a mid-playback error.
func (s *fakeStream) fail(err error) {
	s.listener(StreamEvent{Kind: StreamError, Detail: err})
}

func (s *fakeStream) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *fakeStream) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *fakeStream) currentVolume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

type fakeTransport struct {
	mu      sync.Mutex
	streams []*fakeStream
	opts    []StreamOptions
	fail    map[string]error
	gate    chan struct{} // when set, Acquire waits for it
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fail: make(map[string]error)}
}

func (t *fakeTransport) Acquire(ctx context.Context, e *media.Entry, opts StreamOptions, listener Listener) (Stream, error) {
	t.mu.Lock()
	gate := t.gate
	t.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts = append(t.opts, opts)
	if err, ok := t.fail[e.Reference]; ok {
		t.streams = append(t.streams, nil)
		return nil, err
	}
	s := &fakeStream{entry: e, listener: listener, volume: opts.Volume}
	t.streams = append(t.streams, s)
	return s, nil
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

func (t *fakeTransport) stream(i int) *fakeStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.streams) {
		return nil
	}
	return t.streams[i]
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notification.Notice
}

func (n *fakeNotifier) Notify(_ context.Context, notice notification.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *fakeNotifier) bodies() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make([]string, 0, len(n.notices))
	for _, notice := range n.notices {
		result = append(result, notice.Body)
	}
	return result
}

func (n *fakeNotifier) has(body string) bool {
	for _, b := range n.bodies() {
		if b == body {
			return true
		}
	}
	return false
}

func (n *fakeNotifier) ofKind(kind notification.Kind) []notification.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	var result []notification.Notice
	for _, notice := range n.notices {
		if notice.Kind == kind {
			result = append(result, notice)
		}
	}
	return result
}

type recordingPublisher struct {
	mu      sync.Mutex
	banners []string
}

func (p *recordingPublisher) Publish(_ context.Context, banner string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banners = append(p.banners, banner)
	return nil
}

func (p *recordingPublisher) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.banners) == 0 {
		return ""
	}
	return p.banners[len(p.banners)-1]
}
