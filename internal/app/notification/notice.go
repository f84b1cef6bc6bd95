package notification

import "github.com/osa030/rhythmbot/internal/domain/media"

// Kind represents the kind of a notice.
type Kind int

const (
	KindInfo        Kind = iota // Plain informational message
	KindError                   // Failure surfaced to users
	KindNowPlaying              // Playback started; carries reaction affordances
	KindTrackAdded              // Single entry enqueued
	KindTracksAdded             // Playlist expansion summary
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindError:
		return "error"
	case KindNowPlaying:
		return "now_playing"
	case KindTrackAdded:
		return "track_added"
	case KindTracksAdded:
		return "tracks_added"
	default:
		return "unknown"
	}
}

// Field is a labelled value rendered alongside the body.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Notice is a user facing message. Rendering and delivery are up to sinks.
type Notice struct {
	ID         string
	SequenceNo uint64
	Kind       Kind
	Channel    string // Destination channel reference; empty means log only
	Title      string
	Body       string
	Entry      *media.Entry // Entry the notice is about, if any
	Position   int          // 1-based queue position for track added notices
	Fields     []Field
	Reactions  []string // Emoji affordances to attach after delivery
}

// Info creates an informational notice.
func Info(channel, title, body string) Notice {
	return Notice{Kind: KindInfo, Channel: channel, Title: title, Body: body}
}

// Error creates an error notice.
func Error(channel, body string) Notice {
	return Notice{Kind: KindError, Channel: channel, Title: "Error", Body: body}
}
