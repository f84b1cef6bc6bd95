// Package media provides the queued media entry domain type.
package media

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnknownName is shown when the resolver could not determine a title.
const UnknownName = "Unknown"

// Requester represents the chat user who asked for an entry.
type Requester struct {
	ID   string // Chat platform user ID
	Name string // Display name
}

// Entry represents one queued unit of playable media.
// Entries are compared by pointer identity; two entries may share a title.
type Entry struct {
	ID          string        // Unique ID, used for logging and message tracking
	Reference   string        // Source locator (URL or identifier) understood by resolvers and the transport
	DisplayName string        // Human readable title
	Duration    string        // Display formatted duration, empty when unknown
	Length      time.Duration // Numeric duration, zero when unknown
	Artist      string        // Uploader or artist, empty when unknown
	Requester   Requester     // Who requested it
	AddedAt     time.Time     // Time when the entry was resolved
}

// NewEntry creates an entry, substituting a placeholder for a blank name.
func NewEntry(reference, displayName, duration string) *Entry {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = UnknownName
	}
	return &Entry{
		ID:          uuid.New().String(),
		Reference:   reference,
		DisplayName: name,
		Duration:    duration,
		AddedAt:     time.Now(),
	}
}

// WithRequester returns the entry after setting the requester.
func (e *Entry) WithRequester(r Requester) *Entry {
	e.Requester = r
	return e
}

// WithLength sets the numeric duration and, when unset, the display duration.
func (e *Entry) WithLength(d time.Duration) *Entry {
	if d <= 0 {
		return e
	}
	e.Length = d
	if e.Duration == "" {
		e.Duration = FormatDuration(d)
	}
	return e
}

// DurationOrUnknown returns the display duration, or a placeholder when unknown.
func (e *Entry) DurationOrUnknown() string {
	if e.Duration == "" {
		return "??:??:??"
	}
	return e.Duration
}

// String returns a short description for logs.
func (e *Entry) String() string {
	return fmt.Sprintf("%q (%s)", e.DisplayName, e.Reference)
}

// FormatDuration renders d as HH:MM:SS. Negative durations render as zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatSeconds renders a seconds count as HH:MM:SS, or empty when secs is not positive.
func FormatSeconds(secs float64) string {
	if secs <= 0 {
		return ""
	}
	return FormatDuration(time.Duration(secs * float64(time.Second)))
}
