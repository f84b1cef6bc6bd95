// Package playback drives a single audio session: it owns the queue and the
// active stream and reacts to stream lifecycle events.
package playback

// State represents the playback state.
type State int

const (
	StateIdle     State = iota // No active stream (queue may be non-empty)
	StatePlaying               // Stream installed and running
	StatePaused                // Stream installed, frame delivery suspended
	StateStopping              // Phase of a stream torn down by Stop, until its terminal event arrives
	stateStale                 // Phase of events from a stream that is no longer current
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case stateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Active reports whether a stream is installed.
func (s State) Active() bool {
	return s == StatePlaying || s == StatePaused
}
