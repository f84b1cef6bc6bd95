package playback

import (
	"time"

	"github.com/osa030/rhythmbot/internal/domain/media"
)

// EventType represents a playback event type.
type EventType int

const (
	EventNowPlaying   EventType = iota // Stream reported start
	EventTrackEnded                    // Stream finished naturally
	EventTrackSkipped                  // Head was skipped
	EventStateChanged                  // Playback state changed
	EventQueueDrained                  // Auto-advance found the queue empty
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventNowPlaying:
		return "now_playing"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackSkipped:
		return "track_skipped"
	case EventStateChanged:
		return "state_changed"
	case EventQueueDrained:
		return "queue_drained"
	default:
		return "unknown"
	}
}

// Event represents a playback event published to the session.
type Event struct {
	Type  EventType
	Entry *media.Entry // Entry concerned (nil for some events)
	State State        // Playback state after the event
	At    time.Time
}
