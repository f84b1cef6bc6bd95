package playback

import (
	"context"
	"time"

	"github.com/osa030/rhythmbot/internal/app/notification"
	"github.com/osa030/rhythmbot/internal/domain/media"
)

// StreamEventKind is a lifecycle event reported by a stream.
type StreamEventKind int

const (
	StreamStart  StreamEventKind = iota // First audio delivered
	StreamError                         // Mid-playback failure; a terminal event follows
	StreamFinish                        // Source exhausted normally
	StreamClose                         // Stream released (destroyed or connection lost)
)

// String returns the string representation of the kind.
func (k StreamEventKind) String() string {
	switch k {
	case StreamStart:
		return "start"
	case StreamError:
		return "error"
	case StreamFinish:
		return "finish"
	case StreamClose:
		return "close"
	default:
		return "unknown"
	}
}

// StreamEvent is reported by a Stream through its listener.
type StreamEvent struct {
	Kind   StreamEventKind
	Detail error // Set for StreamError
}

// Listener receives the lifecycle events of one stream. It must not block.
type Listener func(StreamEvent)

// StreamOptions are the per-acquisition playback parameters.
type StreamOptions struct {
	Volume float64 // Gain multiplier, see VolumeToMultiplier
}

// Stream is an acquired, playable audio stream.
//
// A stream reports nothing until Start is called, then reports at most one
// StreamStart and exactly one terminal event (StreamFinish or StreamClose).
// Destroy after the terminal event is a no-op.
type Stream interface {
	Start() error
	Pause()
	Resume()
	SetVolume(multiplier float64) error
	Elapsed() time.Duration
	Destroy()
}

// Transport acquires streams for entries. Acquire may block for a long time.
type Transport interface {
	Acquire(ctx context.Context, entry *media.Entry, opts StreamOptions, listener Listener) (Stream, error)
}

// Notifier shows notices to users.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notice)
}
