// Package state provides session state management.
package state

// Phase represents the session lifecycle phase.
type Phase int

const (
	PhaseIdle      Phase = iota // Not in a voice channel
	PhaseConnected              // Joined a voice channel
	PhaseClosed                 // Shut down; requests are refused
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnected:
		return "connected"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PauseCause tells who paused playback.
type PauseCause int

const (
	PauseNone  PauseCause = iota // Not paused by the session
	PauseAlone                   // Paused because nobody else is listening
)

// String returns the string representation of the pause cause.
func (c PauseCause) String() string {
	switch c {
	case PauseNone:
		return "none"
	case PauseAlone:
		return "alone"
	default:
		return "unknown"
	}
}
